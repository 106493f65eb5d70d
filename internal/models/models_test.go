package models_test

import (
	"strings"
	"testing"

	"concord-backend/internal/apperr"
	"concord-backend/internal/models"
)

func TestNewServer(t *testing.T) {
	tests := []struct {
		name           string
		serverName     string
		ownerProfileID int64
		inviteCode     string
		expectedCode   string
	}{
		{name: "Valid server", serverName: "Gaming Hub", ownerProfileID: 1, inviteCode: "abc"},
		{name: "Name gets trimmed", serverName: "  Gaming Hub  ", ownerProfileID: 1, inviteCode: "abc"},
		{name: "Empty name", serverName: "", ownerProfileID: 1, inviteCode: "abc", expectedCode: "empty_name"},
		{name: "Whitespace only name", serverName: "   ", ownerProfileID: 1, inviteCode: "abc", expectedCode: "empty_name"},
		{name: "Too long name", serverName: strings.Repeat("a", 65), ownerProfileID: 1, inviteCode: "abc", expectedCode: "long_name"},
		{name: "Missing owner", serverName: "Gaming Hub", ownerProfileID: 0, inviteCode: "abc", expectedCode: "missing_owner"},
		{name: "Missing invite code", serverName: "Gaming Hub", ownerProfileID: 1, inviteCode: "", expectedCode: "missing_invite_code"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, err := models.NewServer(1, tc.ownerProfileID, tc.serverName, "", tc.inviteCode)
			if code := apperr.CodeOf(err); code != tc.expectedCode {
				t.Fatalf("NewServer() error code = %q, want %q", code, tc.expectedCode)
			}
			if tc.expectedCode == "" && server.Name != "Gaming Hub" {
				t.Errorf("NewServer() name = %q, want %q", server.Name, "Gaming Hub")
			}
		})
	}
}

func TestNewChannel(t *testing.T) {
	tests := []struct {
		name         string
		channelName  string
		channelType  models.ChannelType
		expectedCode string
	}{
		{name: "Text channel", channelName: "off-topic", channelType: models.ChannelText},
		{name: "Audio channel", channelName: "voice-lounge", channelType: models.ChannelAudio},
		{name: "Video channel", channelName: "standup", channelType: models.ChannelVideo},
		{name: "Empty name", channelName: "", channelType: models.ChannelText, expectedCode: "empty_name"},
		{name: "Too long name", channelName: strings.Repeat("a", 33), channelType: models.ChannelText, expectedCode: "long_name"},
		{name: "Unknown type", channelName: "off-topic", channelType: models.ChannelType(9), expectedCode: "unknown_channel_type"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := models.NewChannel(1, 10, tc.channelName, tc.channelType)
			if code := apperr.CodeOf(err); code != tc.expectedCode {
				t.Fatalf("NewChannel() error code = %q, want %q", code, tc.expectedCode)
			}
		})
	}
}

func TestChannelRename(t *testing.T) {
	tests := []struct {
		name         string
		current      string
		newName      string
		expectedCode string
		expectedKind apperr.Kind
	}{
		{name: "Rename regular channel", current: "off-topic", newName: "memes"},
		{name: "Rename reserved channel", current: "general", newName: "memes", expectedCode: "reserved_channel", expectedKind: apperr.KindConflict},
		{name: "Reserved name matched case-insensitively", current: "General", newName: "memes", expectedCode: "reserved_channel", expectedKind: apperr.KindConflict},
		{name: "Rename onto the reserved name", current: "off-topic", newName: "General", expectedCode: "reserved_name", expectedKind: apperr.KindConflict},
		{name: "Rename to empty", current: "off-topic", newName: " ", expectedCode: "empty_name", expectedKind: apperr.KindValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			channel := &models.Channel{ID: 1, ServerID: 10, Name: tc.current, Type: models.ChannelText}

			err := channel.Rename(tc.newName)
			if code := apperr.CodeOf(err); code != tc.expectedCode {
				t.Fatalf("Rename() error code = %q, want %q", code, tc.expectedCode)
			}
			if err != nil {
				if kind := apperr.KindOf(err); kind != tc.expectedKind {
					t.Errorf("Rename() error kind = %s, want %s", kind, tc.expectedKind)
				}
				if channel.Name != tc.current {
					t.Errorf("failed rename changed the name to %q", channel.Name)
				}
			}
		})
	}
}

func TestNewMessage(t *testing.T) {
	textChannel := &models.Channel{ID: 1, ServerID: 10, Name: "off-topic", Type: models.ChannelText}
	audioChannel := &models.Channel{ID: 2, ServerID: 10, Name: "voice-lounge", Type: models.ChannelAudio}
	author := &models.Member{ID: 5, ServerID: 10, ProfileID: 500, Role: models.RoleGuest}
	stranger := &models.Member{ID: 6, ServerID: 11, ProfileID: 600, Role: models.RoleGuest}

	tests := []struct {
		name         string
		channel      *models.Channel
		author       *models.Member
		content      string
		attachment   string
		expectedCode string
	}{
		{name: "Valid message", channel: textChannel, author: author, content: "hello"},
		{name: "Attachment only", channel: textChannel, author: author, attachment: "https://cdn.example.com/cat.png"},
		{name: "Author from another server", channel: textChannel, author: stranger, content: "hello", expectedCode: "wrong_server"},
		{name: "Audio channel has no feed", channel: audioChannel, author: author, content: "hello", expectedCode: "not_text_channel"},
		{name: "Empty message", channel: textChannel, author: author, content: "   ", expectedCode: "empty_message"},
		{name: "Too long message", channel: textChannel, author: author, content: strings.Repeat("a", 2001), expectedCode: "long_message"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			message, err := models.NewMessage(100, tc.channel, tc.author, tc.content, tc.attachment)
			if code := apperr.CodeOf(err); code != tc.expectedCode {
				t.Fatalf("NewMessage() error code = %q, want %q", code, tc.expectedCode)
			}
			if tc.expectedCode == "" && message.AuthorMemberID != tc.author.ID {
				t.Errorf("NewMessage() author member ID = %d, want %d", message.AuthorMemberID, tc.author.ID)
			}
		})
	}
}

func TestMessageSoftDelete(t *testing.T) {
	message := &models.Message{
		ID:            100,
		ChannelID:     1,
		Content:       "hello",
		AttachmentURL: "https://cdn.example.com/cat.png",
	}

	message.SoftDelete()

	if !message.Deleted {
		t.Fatal("SoftDelete() did not mark the message deleted")
	}
	if message.Content != models.DeletedMessageMarker {
		t.Errorf("SoftDelete() content = %q, want %q", message.Content, models.DeletedMessageMarker)
	}
	if message.AttachmentURL != "" {
		t.Errorf("SoftDelete() kept the attachment %q", message.AttachmentURL)
	}

	// deleting a tombstone is a no-op, not an error
	message.SoftDelete()
	if message.Content != models.DeletedMessageMarker || !message.Deleted {
		t.Error("second SoftDelete() changed the tombstoned state")
	}
}

func TestMessageEditAfterDelete(t *testing.T) {
	message := &models.Message{ID: 100, ChannelID: 1, Content: "hello"}
	message.SoftDelete()

	err := message.Edit("edited")
	if code := apperr.CodeOf(err); code != "message_deleted" {
		t.Fatalf("Edit() error code = %q, want %q", code, "message_deleted")
	}
	if kind := apperr.KindOf(err); kind != apperr.KindConflict {
		t.Errorf("Edit() error kind = %s, want %s", kind, apperr.KindConflict)
	}
	if message.Content != models.DeletedMessageMarker {
		t.Errorf("failed edit changed the content to %q", message.Content)
	}
}

func TestMessageEdit(t *testing.T) {
	message := &models.Message{ID: 100, ChannelID: 1, Content: "hello"}

	if err := message.Edit("hello again"); err != nil {
		t.Fatalf("Edit() returned %v", err)
	}
	if message.Content != "hello again" {
		t.Errorf("Edit() content = %q, want %q", message.Content, "hello again")
	}
	if !message.Edited {
		t.Error("Edit() did not set the edited flag")
	}
}

func TestRoleOrdering(t *testing.T) {
	if !models.RoleAdmin.Outranks(models.RoleModerator) || !models.RoleModerator.Outranks(models.RoleGuest) {
		t.Error("role ranks are not ordered GUEST < MODERATOR < ADMIN")
	}
	if models.RoleGuest.Outranks(models.RoleGuest) {
		t.Error("Outranks() must be strict")
	}
	if !models.RoleModerator.AtLeast(models.RoleModerator) {
		t.Error("AtLeast() must include the role itself")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input        string
		expectedRole models.Role
		expectedCode string
	}{
		{input: "GUEST", expectedRole: models.RoleGuest},
		{input: "MODERATOR", expectedRole: models.RoleModerator},
		{input: "ADMIN", expectedRole: models.RoleAdmin},
		{input: "OWNER", expectedCode: "unknown_role"},
		{input: "", expectedCode: "unknown_role"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			role, err := models.ParseRole(tc.input)
			if code := apperr.CodeOf(err); code != tc.expectedCode {
				t.Fatalf("ParseRole(%q) error code = %q, want %q", tc.input, code, tc.expectedCode)
			}
			if tc.expectedCode == "" && role != tc.expectedRole {
				t.Errorf("ParseRole(%q) = %s, want %s", tc.input, role, tc.expectedRole)
			}
		})
	}
}

func TestParseChannelType(t *testing.T) {
	tests := []struct {
		input        string
		expectedType models.ChannelType
		expectedCode string
	}{
		{input: "TEXT", expectedType: models.ChannelText},
		{input: "AUDIO", expectedType: models.ChannelAudio},
		{input: "VIDEO", expectedType: models.ChannelVideo},
		{input: "FORUM", expectedCode: "unknown_channel_type"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			typ, err := models.ParseChannelType(tc.input)
			if code := apperr.CodeOf(err); code != tc.expectedCode {
				t.Fatalf("ParseChannelType(%q) error code = %q, want %q", tc.input, code, tc.expectedCode)
			}
			if tc.expectedCode == "" && typ != tc.expectedType {
				t.Errorf("ParseChannelType(%q) = %s, want %s", tc.input, typ, tc.expectedType)
			}
		})
	}
}
