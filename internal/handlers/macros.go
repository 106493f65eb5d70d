package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"concord-backend/internal/apperr"
	"concord-backend/internal/models"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps the taxonomy to a status and puts the enumerated code in
// the body; distinct reasons are never collapsed into a generic failure.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == 0 {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if kind == apperr.KindTransient {
		sugar.Error(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	encodeErr := json.NewEncoder(w).Encode(errorResponse{
		Error: apperr.CodeOf(err),
		Kind:  kind.String(),
	})
	if encodeErr != nil {
		sugar.Error(encodeErr)
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		sugar.Error(err)
	}
}

func profileIDFrom(r *http.Request) int64 {
	return r.Context().Value(ProfileIDKeyType{}).(int64)
}

func sessionIDFrom(r *http.Request) int64 {
	return r.Context().Value(SessionIDKeyType{}).(int64)
}

func queryID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid_" + name)
	}
	return id, nil
}

// actingMember loads the caller's member row for a server, re-reading the
// stored role on every request so stale privileges can't be replayed.
func actingMember(ctx context.Context, serverID int64, profileID int64) (*models.Member, error) {
	member, err := store.GetMember(ctx, serverID, profileID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Unauthorized("not_member")
		}
		return nil, err
	}
	return member, nil
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return apperr.Validation("bad_request_body")
	}
	if err := validate.Struct(into); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid_request", err)
	}
	return nil
}
