package handlers

import (
	"net/http"
	"strconv"

	"concord-backend/internal/apperr"
	"concord-backend/internal/authz"
	"concord-backend/internal/hub"
	"concord-backend/internal/models"
	"concord-backend/internal/snowflake"
)

func CreateMessage(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	var req struct {
		ChannelID     int64  `json:"channelID,string" validate:"required"`
		Content       string `json:"content" validate:"required_without=AttachmentURL,max=2000"`
		AttachmentURL string `json:"attachmentURL" validate:"omitempty,url"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	channel, err := store.GetChannel(r.Context(), req.ChannelID)
	if err != nil {
		writeError(w, err)
		return
	}

	author, err := actingMember(r.Context(), channel.ServerID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := authz.Authorize(author, authz.ActionPostMessage, authz.Target{ServerID: channel.ServerID}).Err(); err != nil {
		writeError(w, err)
		return
	}

	messageID, err := snowflake.Generate()
	if err != nil {
		writeError(w, apperr.Transient("id_generation", err))
		return
	}

	message, err := models.NewMessage(messageID, channel, author, req.Content, req.AttachmentURL)
	if err != nil {
		writeError(w, err)
		return
	}
	message.Author = author.Profile

	// storage failure is surfaced as retryable before any ordering position
	// is taken; once Publish assigns the seq the event always lands or is
	// recorded as a gap
	if err := store.CreateMessage(r.Context(), message); err != nil {
		writeError(w, err)
		return
	}

	if _, err := fanout.Publish(hub.ChannelStream(channel.ID), hub.MessageCreated, message); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, message)
}

func EditMessage(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	messageID, err := queryID(r, "messageID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Content string `json:"content" validate:"required,max=2000"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	message, err := store.GetMessage(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}

	channel, err := store.GetChannel(r.Context(), message.ChannelID)
	if err != nil {
		writeError(w, err)
		return
	}

	actor, err := actingMember(r.Context(), channel.ServerID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	decision := authz.Authorize(actor, authz.ActionEditMessage, authz.Target{
		ServerID:       channel.ServerID,
		AuthorMemberID: message.AuthorMemberID,
	})
	if err := decision.Err(); err != nil {
		writeError(w, err)
		return
	}

	if err := message.Edit(req.Content); err != nil {
		writeError(w, err)
		return
	}

	if err := store.UpdateMessage(r.Context(), message); err != nil {
		writeError(w, err)
		return
	}

	if _, err := fanout.Publish(hub.ChannelStream(message.ChannelID), hub.MessageUpdated, message); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, message)
}

func DeleteMessage(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	messageID, err := queryID(r, "messageID")
	if err != nil {
		writeError(w, err)
		return
	}

	message, err := store.GetMessage(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}

	channel, err := store.GetChannel(r.Context(), message.ChannelID)
	if err != nil {
		writeError(w, err)
		return
	}

	actor, err := actingMember(r.Context(), channel.ServerID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	decision := authz.Authorize(actor, authz.ActionDeleteMessage, authz.Target{
		ServerID:       channel.ServerID,
		AuthorMemberID: message.AuthorMemberID,
	})
	if err := decision.Err(); err != nil {
		writeError(w, err)
		return
	}

	alreadyDeleted := message.Deleted

	tombstone, err := store.SoftDeleteMessage(r.Context(), messageID)
	if err != nil {
		writeError(w, err)
		return
	}

	// deleting a tombstone again returns the same state without a new event
	if !alreadyDeleted {
		if _, err := fanout.Publish(hub.ChannelStream(message.ChannelID), hub.MessageDeleted, tombstone); err != nil {
			sugar.Error(err)
		}
	}

	writeJSON(w, tombstone)
}

// GetMessageHistory pages backwards through a channel's feed. Message IDs
// are the cursor; the same key orders live events, so pages never overlap
// the live stream.
func GetMessageHistory(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)
	sessionID := sessionIDFrom(r)

	channelID, err := queryID(r, "channelID")
	if err != nil {
		writeError(w, err)
		return
	}

	var beforeID int64
	if cursor := r.URL.Query().Get("before"); cursor != "" {
		beforeID, err = strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			writeError(w, apperr.Validation("invalid_cursor"))
			return
		}
	}

	var limit int
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil {
			writeError(w, apperr.Validation("invalid_limit"))
			return
		}
	}

	channel, err := store.GetChannel(r.Context(), channelID)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := actingMember(r.Context(), channel.ServerID, profileID); err != nil {
		writeError(w, err)
		return
	}

	if channel.Type != models.ChannelText {
		writeError(w, apperr.Conflict("not_text_channel"))
		return
	}

	// subscribe before reading the page: a message created in between then
	// shows up on the live stream (and possibly also in the page, where the
	// shared ID key lets the client collapse it) instead of in neither
	err = fanout.SubscribeSession(r.Context(), hub.ChannelStream(channelID), channel.ServerID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	messages, err := store.FetchHistory(r.Context(), channelID, beforeID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]any{
		"messages": messages,
		"seq":      fanout.CurrentSeq(hub.ChannelStream(channelID)),
	})
}
