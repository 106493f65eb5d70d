package handlers

import (
	"net/http"

	"concord-backend/internal/apperr"
	"concord-backend/internal/authz"
	"concord-backend/internal/hub"
)

func CreateServer(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	var req struct {
		Name     string `json:"name" validate:"required,max=64"`
		ImageURL string `json:"imageURL" validate:"omitempty,url"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	// server + "general" + owner admin member land atomically
	graph, err := store.CreateServerWithOwner(r.Context(), profileID, req.Name, req.ImageURL)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, graph)
}

func GetServerList(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	servers, err := store.GetServersForProfile(r.Context(), profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	// invite codes are only handed out through the invite endpoints
	for i := range servers {
		servers[i].InviteCode = ""
	}

	writeJSON(w, servers)
}

func GetServerGraph(w http.ResponseWriter, r *http.Request) {
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

	graph, err := store.GetServerWithChannelsAndMembers(r.Context(), serverID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, graph)
}

func DeleteServer(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	serverID, err := queryID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	actor, err := actingMember(r.Context(), serverID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	decision := authz.Authorize(actor, authz.ActionDeleteServer, authz.Target{ServerID: serverID})
	if err := decision.Err(); err != nil {
		sugar.Warnf("Profile ID [%d] was denied %s on server ID [%d]: %s", profileID, "DeleteServer", serverID, decision.Reason)
		writeError(w, err)
		return
	}

	if err := store.DeleteServer(r.Context(), serverID); err != nil {
		writeError(w, err)
		return
	}

	if _, err := fanout.Publish(hub.ServerStream(serverID), hub.ServerDeleted, serverID); err != nil {
		sugar.Error(err)
	}
	// the server stream and every channel stream under it go together
	fanout.DropServerStreams(serverID)
}

func RenameServer(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	serverID, err := queryID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Name string `json:"name" validate:"required,max=64"`
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

	if err := authz.Authorize(actor, authz.ActionRenameServer, authz.Target{ServerID: serverID}).Err(); err != nil {
		writeError(w, err)
		return
	}

	server, err := store.GetServer(r.Context(), serverID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := server.Rename(req.Name); err != nil {
		writeError(w, err)
		return
	}

	if err := store.RenameServer(r.Context(), serverID, server.Name); err != nil {
		writeError(w, err)
		return
	}

	server.InviteCode = ""
	if _, err := fanout.Publish(hub.ServerStream(serverID), hub.ServerUpdated, server); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, server)
}

func RegenerateInvite(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	serverID, err := queryID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	actor, err := actingMember(r.Context(), serverID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := authz.Authorize(actor, authz.ActionRegenerateInvite, authz.Target{ServerID: serverID}).Err(); err != nil {
		writeError(w, err)
		return
	}

	code, err := store.RegenerateInvite(r.Context(), serverID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]string{"inviteCode": code})
}

func JoinServer(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	inviteCode := r.URL.Query().Get("invite")
	if inviteCode == "" {
		writeError(w, apperr.Validation("invalid_invite"))
		return
	}

	member, server, err := store.JoinByInvite(r.Context(), inviteCode, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := fanout.Publish(hub.ServerStream(server.ID), hub.ServerUpdated, server.ID); err != nil {
		sugar.Error(err)
	}

	writeJSON(w, member)
}

// LeaveServer is the dedicated self path: kicking or demoting yourself
// through the admin actions is a conflict, leaving is not.
func LeaveServer(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	serverID, err := queryID(r, "serverID")
	if err != nil {
		writeError(w, err)
		return
	}

	member, err := actingMember(r.Context(), serverID, profileID)
	if err != nil {
		writeError(w, err)
		return
	}

	server, err := store.GetServer(r.Context(), serverID)
	if err != nil {
		writeError(w, err)
		return
	}
	if server.OwnerProfileID == profileID {
		writeError(w, apperr.Conflict("owner_cannot_leave"))
		return
	}

	removed, err := store.RemoveMember(r.Context(), member.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	fanout.DropMemberSubscriptions(serverID, profileID)
	if _, err := fanout.Publish(hub.ServerStream(serverID), hub.MemberRemoved, removed); err != nil {
		sugar.Error(err)
	}
}
