package models

import (
	"strings"

	"concord-backend/internal/apperr"
)

const (
	// ReservedChannelName is auto-created with every server and can neither
	// be renamed nor deleted.
	ReservedChannelName = "general"

	// DeletedMessageMarker replaces the content of a tombstoned message.
	DeletedMessageMarker = "[deleted]"

	maxServerNameLength  = 64
	maxChannelNameLength = 32
	maxMessageLength     = 2000
)

// Profile is a real-world identity, created on first sign-in by the external
// identity collaborator. This core only updates display attributes.
type Profile struct {
	ID        int64  `json:"id,string"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarURL"`
}

// Server is a community container owning channels and members.
type Server struct {
	ID             int64  `json:"id,string"`
	OwnerProfileID int64  `json:"ownerProfileID,string"`
	Name           string `json:"name"`
	ImageURL       string `json:"imageURL"`
	InviteCode     string `json:"inviteCode,omitempty"`
}

// Channel is a typed communication surface inside exactly one server. Name
// uniqueness within a server is case-insensitive.
type Channel struct {
	ID       int64       `json:"id,string"`
	ServerID int64       `json:"serverID,string"`
	Name     string      `json:"name"`
	Type     ChannelType `json:"type"`
}

// Member binds a profile to a server with a role. It has its own identity: a
// profile joining many servers yields one Member per server.
type Member struct {
	ID        int64   `json:"id,string"`
	ServerID  int64   `json:"serverID,string"`
	ProfileID int64   `json:"profileID,string"`
	Role      Role    `json:"role"`
	Profile   Profile `json:"profile,omitzero"`
}

// Message belongs to one channel and one authoring member. Soft-deleted
// messages keep their row as tombstones so ordering and thread continuity
// survive; the author reference may outlive the member (kick/leave never
// rewrites history).
type Message struct {
	ID             int64   `json:"id,string"`
	ChannelID      int64   `json:"channelID,string"`
	AuthorMemberID int64   `json:"authorMemberID,string"`
	Content        string  `json:"content"`
	AttachmentURL  string  `json:"attachmentURL,omitempty"`
	Edited         bool    `json:"edited"`
	Deleted        bool    `json:"deleted"`
	Author         Profile `json:"author"`
}

func validateName(name string, max int) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return apperr.Validation("empty_name")
	}
	if len(trimmed) > max {
		return apperr.Validation("long_name")
	}
	return nil
}

// ChannelNameKey is the case-insensitive uniqueness key for channel names.
func ChannelNameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsReservedChannelName matches the reserved name case-insensitively, the
// same way uniqueness is enforced.
func IsReservedChannelName(name string) bool {
	return ChannelNameKey(name) == ReservedChannelName
}

func NewServer(id int64, ownerProfileID int64, name string, imageURL string, inviteCode string) (*Server, error) {
	if err := validateName(name, maxServerNameLength); err != nil {
		return nil, err
	}
	if ownerProfileID == 0 {
		return nil, apperr.Validation("missing_owner")
	}
	if inviteCode == "" {
		return nil, apperr.Validation("missing_invite_code")
	}
	return &Server{
		ID:             id,
		OwnerProfileID: ownerProfileID,
		Name:           strings.TrimSpace(name),
		ImageURL:       imageURL,
		InviteCode:     inviteCode,
	}, nil
}

func (s *Server) Rename(name string) error {
	if err := validateName(name, maxServerNameLength); err != nil {
		return err
	}
	s.Name = strings.TrimSpace(name)
	return nil
}

func NewChannel(id int64, serverID int64, name string, typ ChannelType) (*Channel, error) {
	if err := validateName(name, maxChannelNameLength); err != nil {
		return nil, err
	}
	if !typ.Valid() {
		return nil, apperr.Validation("unknown_channel_type")
	}
	if serverID == 0 {
		return nil, apperr.Validation("missing_server")
	}
	return &Channel{
		ID:       id,
		ServerID: serverID,
		Name:     strings.TrimSpace(name),
		Type:     typ,
	}, nil
}

// Reserved reports whether this is the protected default channel.
func (c *Channel) Reserved() bool {
	return IsReservedChannelName(c.Name)
}

func (c *Channel) Rename(name string) error {
	if c.Reserved() {
		return apperr.Conflict("reserved_channel")
	}
	if IsReservedChannelName(name) {
		return apperr.Conflict("reserved_name")
	}
	if err := validateName(name, maxChannelNameLength); err != nil {
		return err
	}
	c.Name = strings.TrimSpace(name)
	return nil
}

func NewMember(id int64, serverID int64, profileID int64, role Role) (*Member, error) {
	if serverID == 0 || profileID == 0 {
		return nil, apperr.Validation("missing_identity")
	}
	if !role.Valid() {
		return nil, apperr.Validation("unknown_role")
	}
	return &Member{ID: id, ServerID: serverID, ProfileID: profileID, Role: role}, nil
}

func (m *Member) ChangeRole(role Role) error {
	if !role.Valid() {
		return apperr.Validation("unknown_role")
	}
	m.Role = role
	return nil
}

// NewMessage requires the author to belong to the channel's server, and only
// TEXT channels carry a message feed.
func NewMessage(id int64, channel *Channel, author *Member, content string, attachmentURL string) (*Message, error) {
	if channel == nil || author == nil {
		return nil, apperr.Validation("missing_identity")
	}
	if author.ServerID != channel.ServerID {
		return nil, apperr.Validation("wrong_server")
	}
	if channel.Type != ChannelText {
		return nil, apperr.Conflict("not_text_channel")
	}
	content = strings.TrimSpace(content)
	if content == "" && attachmentURL == "" {
		return nil, apperr.Validation("empty_message")
	}
	if len(content) > maxMessageLength {
		return nil, apperr.Validation("long_message")
	}
	return &Message{
		ID:             id,
		ChannelID:      channel.ID,
		AuthorMemberID: author.ID,
		Content:        content,
		AttachmentURL:  attachmentURL,
	}, nil
}

func (m *Message) Edit(content string) error {
	if m.Deleted {
		return apperr.Conflict("message_deleted")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return apperr.Validation("empty_message")
	}
	if len(content) > maxMessageLength {
		return apperr.Validation("long_message")
	}
	m.Content = content
	m.Edited = true
	return nil
}

// SoftDelete tombstones the message. Calling it on an already-deleted message
// leaves the same tombstoned state and is not an error.
func (m *Message) SoftDelete() {
	if m.Deleted {
		return
	}
	m.Deleted = true
	m.Content = DeletedMessageMarker
	m.AttachmentURL = ""
}
