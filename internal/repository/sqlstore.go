package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"concord-backend/internal/apperr"
	"concord-backend/internal/keyvalue"
	"concord-backend/internal/models"
	"concord-backend/internal/snowflake"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const memberCacheTTL = 15 * time.Minute

type SQLStore struct {
	db    *sql.DB
	sugar *zap.SugaredLogger
}

func NewSQLStore(db *sql.DB, sugar *zap.SugaredLogger) *SQLStore {
	return &SQLStore{db: db, sugar: sugar}
}

var _ Store = (*SQLStore)(nil)

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// wrapErr maps driver errors into the taxonomy: absent rows are NotFound,
// unique violations are Conflict, anything else is retryable Transient.
func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperr.NotFound("not_found")
	case isDuplicate(err):
		return apperr.Conflict("duplicate")
	default:
		return apperr.Transient("storage_unavailable", err)
	}
}

func (s *SQLStore) EnsureProfile(ctx context.Context, profile models.Profile) error {
	res, err := s.db.ExecContext(ctx, "UPDATE profiles SET name = ?, avatar_url = ? WHERE id = ?",
		profile.Name, profile.AvatarURL, profile.ID)
	if err != nil {
		return wrapErr(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if affected > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO profiles (id, name, avatar_url) VALUES (?, ?, ?)",
		profile.ID, profile.Name, profile.AvatarURL)
	if err != nil && !isDuplicate(err) {
		return wrapErr(err)
	}
	return nil
}

func (s *SQLStore) GetProfile(ctx context.Context, profileID int64) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.QueryRowContext(ctx, "SELECT id, name, avatar_url FROM profiles WHERE id = ?", profileID).
		Scan(&profile.ID, &profile.Name, &profile.AvatarURL)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &profile, nil
}

func (s *SQLStore) CreateServerWithOwner(ctx context.Context, ownerProfileID int64, name string, imageURL string) (*ServerGraph, error) {
	serverID, err := snowflake.Generate()
	if err != nil {
		return nil, apperr.Transient("id_generation", err)
	}
	channelID, err := snowflake.Generate()
	if err != nil {
		return nil, apperr.Transient("id_generation", err)
	}
	memberID, err := snowflake.Generate()
	if err != nil {
		return nil, apperr.Transient("id_generation", err)
	}

	server, err := models.NewServer(serverID, ownerProfileID, name, imageURL, uuid.NewString())
	if err != nil {
		return nil, err
	}
	general, err := models.NewChannel(channelID, serverID, models.ReservedChannelName, models.ChannelText)
	if err != nil {
		return nil, err
	}
	owner, err := models.NewMember(memberID, serverID, ownerProfileID, models.RoleAdmin)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "INSERT INTO servers (id, owner_profile_id, name, image_url, invite_code) VALUES (?, ?, ?, ?, ?)",
		server.ID, server.OwnerProfileID, server.Name, server.ImageURL, server.InviteCode)
	if err != nil {
		return nil, wrapErr(err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO channels (id, server_id, name, name_key, type) VALUES (?, ?, ?, ?, ?)",
		general.ID, general.ServerID, general.Name, models.ChannelNameKey(general.Name), general.Type)
	if err != nil {
		return nil, wrapErr(err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO members (id, server_id, profile_id, role) VALUES (?, ?, ?, ?)",
		owner.ID, owner.ServerID, owner.ProfileID, owner.Role)
	if err != nil {
		return nil, wrapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapErr(err)
	}

	return &ServerGraph{
		Server:   *server,
		Channels: []models.Channel{*general},
		Members:  []models.Member{*owner},
	}, nil
}

func (s *SQLStore) GetServer(ctx context.Context, serverID int64) (*models.Server, error) {
	var server models.Server
	err := s.db.QueryRowContext(ctx, "SELECT id, owner_profile_id, name, image_url, invite_code FROM servers WHERE id = ?", serverID).
		Scan(&server.ID, &server.OwnerProfileID, &server.Name, &server.ImageURL, &server.InviteCode)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &server, nil
}

func (s *SQLStore) GetServerWithChannelsAndMembers(ctx context.Context, serverID int64) (*ServerGraph, error) {
	server, err := s.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	channels, err := s.GetChannels(ctx, serverID)
	if err != nil {
		return nil, err
	}

	members, err := s.GetMembers(ctx, serverID)
	if err != nil {
		return nil, err
	}

	return &ServerGraph{Server: *server, Channels: channels, Members: members}, nil
}

func (s *SQLStore) GetServersForProfile(ctx context.Context, profileID int64) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT s.id, s.owner_profile_id, s.name, s.image_url, s.invite_code FROM servers s JOIN members m ON s.id = m.server_id WHERE m.profile_id = ?",
		profileID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		var server models.Server
		err := rows.Scan(&server.ID, &server.OwnerProfileID, &server.Name, &server.ImageURL, &server.InviteCode)
		if err != nil {
			return nil, wrapErr(err)
		}
		servers = append(servers, server)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return servers, nil
}

func (s *SQLStore) RenameServer(ctx context.Context, serverID int64, name string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE servers SET name = ? WHERE id = ?", name, serverID)
	if err != nil {
		return wrapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if affected == 0 {
		return apperr.NotFound("not_found")
	}
	return nil
}

func (s *SQLStore) DeleteServer(ctx context.Context, serverID int64) error {
	// channels, members and messages go with it through the cascades
	res, err := s.db.ExecContext(ctx, "DELETE FROM servers WHERE id = ?", serverID)
	if err != nil {
		return wrapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if affected == 0 {
		return apperr.NotFound("not_found")
	}
	return nil
}

func (s *SQLStore) RegenerateInvite(ctx context.Context, serverID int64) (string, error) {
	code := uuid.NewString()
	res, err := s.db.ExecContext(ctx, "UPDATE servers SET invite_code = ? WHERE id = ?", code, serverID)
	if err != nil {
		return "", wrapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", wrapErr(err)
	}
	if affected == 0 {
		return "", apperr.NotFound("not_found")
	}
	return code, nil
}

func (s *SQLStore) JoinByInvite(ctx context.Context, inviteCode string, profileID int64) (*models.Member, *models.Server, error) {
	var server models.Server
	err := s.db.QueryRowContext(ctx, "SELECT id, owner_profile_id, name, image_url, invite_code FROM servers WHERE invite_code = ?", inviteCode).
		Scan(&server.ID, &server.OwnerProfileID, &server.Name, &server.ImageURL, &server.InviteCode)
	if err != nil {
		return nil, nil, wrapErr(err)
	}

	existing, err := s.GetMember(ctx, server.ID, profileID)
	if err == nil {
		return existing, &server, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, nil, err
	}

	memberID, err := snowflake.Generate()
	if err != nil {
		return nil, nil, apperr.Transient("id_generation", err)
	}

	member, err := models.NewMember(memberID, server.ID, profileID, models.RoleGuest)
	if err != nil {
		return nil, nil, err
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO members (id, server_id, profile_id, role) VALUES (?, ?, ?, ?)",
		member.ID, member.ServerID, member.ProfileID, member.Role)
	if err != nil {
		return nil, nil, wrapErr(err)
	}

	if err := keyvalue.Delete(keyvalue.MemberKey(server.ID, profileID)); err != nil {
		s.sugar.Error(err)
	}

	return member, &server, nil
}

func (s *SQLStore) CreateChannel(ctx context.Context, channel *models.Channel) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO channels (id, server_id, name, name_key, type) VALUES (?, ?, ?, ?, ?)",
		channel.ID, channel.ServerID, channel.Name, models.ChannelNameKey(channel.Name), channel.Type)
	if err != nil {
		if isDuplicate(err) {
			return apperr.Conflict("duplicate_channel_name")
		}
		return wrapErr(err)
	}
	return nil
}

func (s *SQLStore) GetChannel(ctx context.Context, channelID int64) (*models.Channel, error) {
	var channel models.Channel
	err := s.db.QueryRowContext(ctx, "SELECT id, server_id, name, type FROM channels WHERE id = ?", channelID).
		Scan(&channel.ID, &channel.ServerID, &channel.Name, &channel.Type)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &channel, nil
}

func (s *SQLStore) GetChannels(ctx context.Context, serverID int64) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, server_id, name, type FROM channels WHERE server_id = ? ORDER BY id", serverID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var channel models.Channel
		err := rows.Scan(&channel.ID, &channel.ServerID, &channel.Name, &channel.Type)
		if err != nil {
			return nil, wrapErr(err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return channels, nil
}

func (s *SQLStore) RenameChannel(ctx context.Context, channel *models.Channel) error {
	res, err := s.db.ExecContext(ctx, "UPDATE channels SET name = ?, name_key = ? WHERE id = ?",
		channel.Name, models.ChannelNameKey(channel.Name), channel.ID)
	if err != nil {
		if isDuplicate(err) {
			return apperr.Conflict("duplicate_channel_name")
		}
		return wrapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if affected == 0 {
		return apperr.NotFound("not_found")
	}
	return nil
}

func (s *SQLStore) DeleteChannel(ctx context.Context, channelID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", channelID)
	if err != nil {
		return wrapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if affected == 0 {
		return apperr.NotFound("not_found")
	}
	return nil
}

func (s *SQLStore) GetMember(ctx context.Context, serverID int64, profileID int64) (*models.Member, error) {
	var member models.Member
	err := s.db.QueryRowContext(ctx,
		"SELECT m.id, m.server_id, m.profile_id, m.role, p.id, p.name, p.avatar_url FROM members m JOIN profiles p ON m.profile_id = p.id WHERE m.server_id = ? AND m.profile_id = ?",
		serverID, profileID).
		Scan(&member.ID, &member.ServerID, &member.ProfileID, &member.Role,
			&member.Profile.ID, &member.Profile.Name, &member.Profile.AvatarURL)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &member, nil
}

func (s *SQLStore) GetMemberByID(ctx context.Context, memberID int64) (*models.Member, error) {
	var member models.Member
	err := s.db.QueryRowContext(ctx,
		"SELECT m.id, m.server_id, m.profile_id, m.role, p.id, p.name, p.avatar_url FROM members m JOIN profiles p ON m.profile_id = p.id WHERE m.id = ?",
		memberID).
		Scan(&member.ID, &member.ServerID, &member.ProfileID, &member.Role,
			&member.Profile.ID, &member.Profile.Name, &member.Profile.AvatarURL)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &member, nil
}

func (s *SQLStore) GetMembers(ctx context.Context, serverID int64) ([]models.Member, error) {
	// admins first, then moderators, then guests, name as tie-break
	rows, err := s.db.QueryContext(ctx,
		"SELECT m.id, m.server_id, m.profile_id, m.role, p.id, p.name, p.avatar_url FROM members m JOIN profiles p ON m.profile_id = p.id WHERE m.server_id = ? ORDER BY m.role DESC, p.name",
		serverID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		var member models.Member
		err := rows.Scan(&member.ID, &member.ServerID, &member.ProfileID, &member.Role,
			&member.Profile.ID, &member.Profile.Name, &member.Profile.AvatarURL)
		if err != nil {
			return nil, wrapErr(err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return members, nil
}

func (s *SQLStore) UpdateMemberRole(ctx context.Context, memberID int64, role models.Role) (*models.Member, error) {
	member, err := s.GetMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	if err := member.ChangeRole(role); err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, "UPDATE members SET role = ? WHERE id = ?", member.Role, member.ID)
	if err != nil {
		return nil, wrapErr(err)
	}

	if err := keyvalue.Delete(keyvalue.MemberKey(member.ServerID, member.ProfileID)); err != nil {
		s.sugar.Error(err)
	}

	return member, nil
}

func (s *SQLStore) RemoveMember(ctx context.Context, memberID int64) (*models.Member, error) {
	member, err := s.GetMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	// messages keep their author_member_id; the reference orphans on purpose
	_, err = s.db.ExecContext(ctx, "DELETE FROM members WHERE id = ?", memberID)
	if err != nil {
		return nil, wrapErr(err)
	}

	if err := keyvalue.Delete(keyvalue.MemberKey(member.ServerID, member.ProfileID)); err != nil {
		s.sugar.Error(err)
	}

	return member, nil
}

func (s *SQLStore) IsServerMember(ctx context.Context, serverID int64, profileID int64) (bool, error) {
	key := keyvalue.MemberKey(serverID, profileID)

	value, err := keyvalue.Get(key)
	if err != nil {
		s.sugar.Error(err)
	} else if value == "y" {
		return true, nil
	}

	var isMember bool
	err = s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM members WHERE server_id = ? AND profile_id = ?)", serverID, profileID).
		Scan(&isMember)
	if err != nil {
		return false, wrapErr(err)
	}

	// only positive results are cached; member mutations delete the key
	if isMember {
		if err := keyvalue.Set(key, "y", memberCacheTTL); err != nil {
			s.sugar.Error(err)
		}
	}

	return isMember, nil
}

func (s *SQLStore) CreateMessage(ctx context.Context, message *models.Message) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, channel_id, author_member_id, content, attachment_url, edited, deleted) VALUES (?, ?, ?, ?, ?, ?, ?)",
		message.ID, message.ChannelID, message.AuthorMemberID, message.Content, message.AttachmentURL, message.Edited, message.Deleted)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

const messageSelect = `
	SELECT
		m.id, m.channel_id, m.author_member_id, m.content, m.attachment_url, m.edited, m.deleted,
		COALESCE(p.id, 0), COALESCE(p.name, ''), COALESCE(p.avatar_url, '')
	FROM messages m
	LEFT JOIN members mb ON m.author_member_id = mb.id
	LEFT JOIN profiles p ON mb.profile_id = p.id
`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var message models.Message
	err := row.Scan(&message.ID, &message.ChannelID, &message.AuthorMemberID,
		&message.Content, &message.AttachmentURL, &message.Edited, &message.Deleted,
		&message.Author.ID, &message.Author.Name, &message.Author.AvatarURL)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (s *SQLStore) GetMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	message, err := scanMessage(s.db.QueryRowContext(ctx, messageSelect+" WHERE m.id = ?", messageID))
	if err != nil {
		return nil, wrapErr(err)
	}
	return message, nil
}

func (s *SQLStore) UpdateMessage(ctx context.Context, message *models.Message) error {
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET content = ?, attachment_url = ?, edited = ?, deleted = ? WHERE id = ?",
		message.Content, message.AttachmentURL, message.Edited, message.Deleted, message.ID)
	if err != nil {
		return wrapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if affected == 0 {
		return apperr.NotFound("not_found")
	}
	return nil
}

func (s *SQLStore) SoftDeleteMessage(ctx context.Context, messageID int64) (*models.Message, error) {
	message, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if message.Deleted {
		return message, nil
	}

	message.SoftDelete()
	if err := s.UpdateMessage(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (s *SQLStore) FetchHistory(ctx context.Context, channelID int64, beforeID int64, limit int) ([]models.Message, error) {
	if beforeID <= 0 {
		beforeID = math.MaxInt64
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		messageSelect+" WHERE m.channel_id = ? AND m.id < ? ORDER BY m.id DESC LIMIT ?",
		channelID, beforeID, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		messages = append(messages, *message)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return messages, nil
}
