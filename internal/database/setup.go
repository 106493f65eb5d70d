package database

import (
	"database/sql"
	"fmt"

	"concord-backend/internal/models"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func Setup(cfg *models.ConfigFile) (*sql.DB, error) {
	var db *sql.DB
	var err error

	if cfg.SelfContained {
		db, err = sql.Open("sqlite", "./database.db")
		if err != nil {
			return db, err
		}

		// there can be sqlite busy errors if this is not set to 1
		db.SetMaxOpenConns(1)

		err = setPragmaValues(db)
		if err != nil {
			return db, err
		}
	} else {
		db, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
		if err != nil {
			return db, err
		}

		db.SetMaxOpenConns(10)
	}

	err = SetupTables(db)
	if err != nil {
		return db, err
	}

	return db, nil
}

// OpenMemory opens a throwaway in-memory sqlite database, used by tests.
func OpenMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if err := SetupTables(db); err != nil {
		return nil, err
	}

	return db, nil
}

func SetupTables(db *sql.DB) error {
	var err error

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS profiles (
				id BIGINT PRIMARY KEY,
				name VARCHAR(64) NOT NULL,
				avatar_url TEXT NOT NULL DEFAULT ''
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS servers (
				id BIGINT PRIMARY KEY,
				owner_profile_id BIGINT NOT NULL,
				name VARCHAR(64) NOT NULL,
				image_url TEXT NOT NULL DEFAULT '',
				invite_code VARCHAR(36) NOT NULL UNIQUE,
				FOREIGN KEY (owner_profile_id) REFERENCES profiles(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS members (
				id BIGINT PRIMARY KEY,
				server_id BIGINT NOT NULL,
				profile_id BIGINT NOT NULL,
				role TINYINT NOT NULL DEFAULT 0,
				since TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (server_id, profile_id),
				FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
				FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	// name_key holds the lowercased name; uniqueness of channel names within
	// a server is case-insensitive.
	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS channels (
				id BIGINT PRIMARY KEY,
				server_id BIGINT NOT NULL,
				name VARCHAR(32) NOT NULL,
				name_key VARCHAR(32) NOT NULL,
				type TINYINT NOT NULL DEFAULT 0,
				UNIQUE (server_id, name_key),
				FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	// author_member_id has no foreign key on purpose: removing a member must
	// never rewrite or drop their historical messages.
	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS messages (
				id BIGINT PRIMARY KEY,
				channel_id BIGINT NOT NULL,
				author_member_id BIGINT NOT NULL,
				content TEXT NOT NULL,
				attachment_url TEXT NOT NULL DEFAULT '',
				edited BOOLEAN NOT NULL DEFAULT FALSE,
				deleted BOOLEAN NOT NULL DEFAULT FALSE,
				FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages (channel_id, id);`)
	if err != nil {
		return err
	}

	return nil
}
