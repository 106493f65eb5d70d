package handlers

import (
	"net/http"
)

func HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	profileID := profileIDFrom(r)

	fanout.HandleClient(w, r, profileID)
}
