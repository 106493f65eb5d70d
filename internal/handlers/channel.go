package handlers

import (
	"net/http"

	"concord-backend/internal/apperr"
	"concord-backend/internal/authz"
	"concord-backend/internal/chanrouter"
	"concord-backend/internal/hub"
	"concord-backend/internal/models"
	"concord-backend/internal/snowflake"
)

func CreateChannel(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	serverID, err := queryID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Name string `json:"name" validate:"required,max=32"`
		Type string `json:"type" validate:"required,oneof=TEXT AUDIO VIDEO"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	actor, err := actingMember(r.Context(), serverID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := authz.Authorize(actor, authz.ActionCreateChannel, authz.Target{ServerID: serverID}).Err(); err != nil {
		writeError(w, err)
		return
	}

	// only the auto-created default may carry the reserved name
	if models.IsReservedChannelName(req.Name) {
		writeError(w, apperr.Conflict("reserved_name"))
		return
	}

	channelType, err := models.ParseChannelType(req.Type)
	if err != nil {
		writeError(w, apperr.Validation("unknown_channel_type"))
		return
	}

	channelID, err := snowflake.Generate()
	if err != nil {
		writeError(w, apperr.Transient("id_generation", err))
		return
	}

	channel, err := models.NewChannel(channelID, serverID, req.Name, channelType)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := store.CreateChannel(r.Context(), channel); err != nil {
		writeError(w, err)
		return
	}

	if _, err := fanout.Publish(hub.ServerStream(serverID), hub.ChannelCreated, channel); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, channel)
}

func RenameChannel(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	channelID, err := queryID(r, "channelID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Name string `json:"name" validate:"required,max=32"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	channel, err := store.GetChannel(r.Context(), channelID)
	if err != nil {
		writeError(w, err)
		return
	}

	actor, err := actingMember(r.Context(), channel.ServerID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	decision := authz.Authorize(actor, authz.ActionRenameChannel, authz.Target{
		ServerID:        channel.ServerID,
		ReservedChannel: channel.Reserved(),
	})
	if decision.Reason == authz.ReasonReservedChannel {
		writeError(w, apperr.Conflict("reserved_channel"))
		return
	}
	if err := decision.Err(); err != nil {
		writeError(w, err)
		return
	}

	if err := channel.Rename(req.Name); err != nil {
		writeError(w, err)
		return
	}

	if err := store.RenameChannel(r.Context(), channel); err != nil {
		writeError(w, err)
		return
	}

	if _, err := fanout.Publish(hub.ServerStream(channel.ServerID), hub.ChannelRenamed, channel); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, channel)
}

func DeleteChannel(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	channelID, err := queryID(r, "channelID")
	if err != nil {
		writeError(w, err)
		return
	}

	channel, err := store.GetChannel(r.Context(), channelID)
	if err != nil {
		writeError(w, err)
		return
	}

	actor, err := actingMember(r.Context(), channel.ServerID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	decision := authz.Authorize(actor, authz.ActionDeleteChannel, authz.Target{
		ServerID:        channel.ServerID,
		ReservedChannel: channel.Reserved(),
	})
	// "general" survives every role, deleting it is a conflict not a
	// permission problem
	if decision.Reason == authz.ReasonReservedChannel {
		writeError(w, apperr.Conflict("reserved_channel"))
		return
	}
	if err := decision.Err(); err != nil {
		writeError(w, err)
		return
	}

	if err := store.DeleteChannel(r.Context(), channelID); err != nil {
		writeError(w, err)
		return
	}

	fanout.DropStream(hub.ChannelStream(channelID))
	if _, err := fanout.Publish(hub.ServerStream(channel.ServerID), hub.ChannelDeleted, channelID); err != nil {
		sugar.Error(err)
	}
}

func GetChannelList(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)
	sessionID := sessionIDFrom(r)

	serverID, err := queryID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := actingMember(r.Context(), serverID, profileID); err != nil {
		writeError(w, err)
		return
	}

	channels, err := store.GetChannels(r.Context(), serverID)
	if err != nil {
		writeError(w, err)
		return
	}

	err = fanout.SubscribeSession(r.Context(), hub.ServerStream(serverID), serverID, sessionID)
	if err != nil {
		sugar.Error(err)
		writeError(w, err)
		return
	}

	writeJSON(w, channels)
}

// ViewChannel resolves the one behavioral mode a channel has. Feed mode
// attaches the session to live message events; room mode hands back the
// media-room descriptor and attaches nothing.
func ViewChannel(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)
	sessionID := sessionIDFrom(r)

	channelID, err := queryID(r, "channelID")
	if err != nil {
		writeError(w, err)
		return
	}

	channel, err := store.GetChannel(r.Context(), channelID)
	if err != nil {
		writeError(w, err)
		return
	}

	member, err := actingMember(r.Context(), channel.ServerID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := chanrouter.Route(channel)
	if err != nil {
		writeError(w, err)
		return
	}

	switch view.Mode {
	case chanrouter.ModeFeed:
		err = fanout.SubscribeSession(r.Context(), hub.ChannelStream(channelID), channel.ServerID, sessionID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, map[string]any{
			"mode": view.Mode.String(),
			"feed": view.Feed,
			"seq":  fanout.CurrentSeq(hub.ChannelStream(channelID)),
		})
	case chanrouter.ModeRoom:
		descriptor, err := rooms.Descriptor(view.Room, member)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, map[string]any{
			"mode": view.Mode.String(),
			"room": descriptor,
		})
	}
}
