package handlers

import (
	"net/http"

	"concord-backend/internal/authz"
	"concord-backend/internal/hub"
	"concord-backend/internal/models"
)

func GetMemberList(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	serverID, err := queryID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := actingMember(r.Context(), serverID, profileID); err != nil {
		writeError(w, err)
		return
	}

	members, err := store.GetMembers(r.Context(), serverID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, members)
}

func UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	memberID, err := queryID(r, "memberID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Role string `json:"role" validate:"required,oneof=GUEST MODERATOR ADMIN"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	// both roles come from the current read, never from the session
	target, err := store.GetMemberByID(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}

	actor, err := actingMember(r.Context(), target.ServerID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	decision := authz.Authorize(actor, authz.ActionChangeRole, authz.Target{
		ServerID: target.ServerID,
		Member:   target,
		NewRole:  role,
	})
	if err := decision.Err(); err != nil {
		sugar.Warnf("Profile ID [%d] was denied role change on member ID [%d]: %s", profileID, memberID, decision.Reason)
		writeError(w, err)
		return
	}

	updated, err := store.UpdateMemberRole(r.Context(), memberID, role)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := fanout.Publish(hub.ServerStream(target.ServerID), hub.MemberRoleChanged, updated); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, updated)
}

func KickMember(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	memberID, err := queryID(r, "memberID")
	if err != nil {
		writeError(w, err)
		return
	}

	target, err := store.GetMemberByID(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}

	actor, err := actingMember(r.Context(), target.ServerID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	decision := authz.Authorize(actor, authz.ActionKickMember, authz.Target{
		ServerID: target.ServerID,
		Member:   target,
	})
	if err := decision.Err(); err != nil {
		sugar.Warnf("Profile ID [%d] was denied kick on member ID [%d]: %s", profileID, memberID, decision.Reason)
		writeError(w, err)
		return
	}

	removed, err := store.RemoveMember(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}

	// the kicked member's live subscriptions go with them; their messages
	// stay
	fanout.DropMemberSubscriptions(target.ServerID, removed.ProfileID)
	if _, err := fanout.Publish(hub.ServerStream(target.ServerID), hub.MemberRemoved, removed); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, removed)
}
