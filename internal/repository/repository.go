// Package repository is the narrow contract the core holds against durable
// storage. Calls are not transactional across each other; operations that
// must be atomic (server creation with owner enrollment) are single methods.
package repository

import (
	"context"

	"concord-backend/internal/models"
)

const (
	DefaultHistoryLimit = 25
	MaxHistoryLimit     = 50
)

// ServerGraph is a server with its channels and members loaded in one read.
type ServerGraph struct {
	Server   models.Server    `json:"server"`
	Channels []models.Channel `json:"channels"`
	Members  []models.Member  `json:"members"`
}

type Store interface {
	// EnsureProfile creates the profile row on first sighting and refreshes
	// display attributes afterwards.
	EnsureProfile(ctx context.Context, profile models.Profile) error
	GetProfile(ctx context.Context, profileID int64) (*models.Profile, error)

	// CreateServerWithOwner atomically creates the server, its reserved
	// "general" TEXT channel and the owner's ADMIN member.
	CreateServerWithOwner(ctx context.Context, ownerProfileID int64, name string, imageURL string) (*ServerGraph, error)
	GetServer(ctx context.Context, serverID int64) (*models.Server, error)
	GetServerWithChannelsAndMembers(ctx context.Context, serverID int64) (*ServerGraph, error)
	GetServersForProfile(ctx context.Context, profileID int64) ([]models.Server, error)
	RenameServer(ctx context.Context, serverID int64, name string) error
	DeleteServer(ctx context.Context, serverID int64) error
	RegenerateInvite(ctx context.Context, serverID int64) (string, error)
	// JoinByInvite resolves the invite code and enrolls the profile as a
	// GUEST member. Joining a server one is already a member of returns the
	// existing member.
	JoinByInvite(ctx context.Context, inviteCode string, profileID int64) (*models.Member, *models.Server, error)

	CreateChannel(ctx context.Context, channel *models.Channel) error
	GetChannel(ctx context.Context, channelID int64) (*models.Channel, error)
	GetChannels(ctx context.Context, serverID int64) ([]models.Channel, error)
	RenameChannel(ctx context.Context, channel *models.Channel) error
	DeleteChannel(ctx context.Context, channelID int64) error

	GetMember(ctx context.Context, serverID int64, profileID int64) (*models.Member, error)
	GetMemberByID(ctx context.Context, memberID int64) (*models.Member, error)
	GetMembers(ctx context.Context, serverID int64) ([]models.Member, error)
	UpdateMemberRole(ctx context.Context, memberID int64, role models.Role) (*models.Member, error)
	RemoveMember(ctx context.Context, memberID int64) (*models.Member, error)
	// IsServerMember is the hot-path membership check the fan-out service
	// uses on subscribe; positive results may be cached but are invalidated
	// by every member mutation.
	IsServerMember(ctx context.Context, serverID int64, profileID int64) (bool, error)

	CreateMessage(ctx context.Context, message *models.Message) error
	GetMessage(ctx context.Context, messageID int64) (*models.Message, error)
	UpdateMessage(ctx context.Context, message *models.Message) error
	// SoftDeleteMessage tombstones a message; deleting an already-deleted
	// message returns the same tombstone without error.
	SoftDeleteMessage(ctx context.Context, messageID int64) (*models.Message, error)
	// FetchHistory returns messages strictly older than beforeID (0 means
	// newest page), newest first, capped at limit.
	FetchHistory(ctx context.Context, channelID int64, beforeID int64, limit int) ([]models.Message, error)
}
