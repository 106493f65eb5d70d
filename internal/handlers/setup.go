package handlers

import (
	"net/http"
	"time"

	"concord-backend/internal/hub"
	"concord-backend/internal/mediaroom"
	"concord-backend/internal/models"
	"concord-backend/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var sugar *zap.SugaredLogger
var store repository.Store
var fanout *hub.Hub
var rooms *mediaroom.Service
var validate = validator.New()

// Setup wires the client-facing surface and returns the router; main owns
// the http.Server so shutdown can drain the hub first.
func Setup(cfg *models.ConfigFile, _sugar *zap.SugaredLogger, _store repository.Store, _fanout *hub.Hub, _rooms *mediaroom.Service) http.Handler {
	sugar = _sugar
	store = _store
	fanout = _fanout
	rooms = _rooms

	r := chi.NewRouter()
	if cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(r chi.Router) {
			r.With(ProfileVerifier).Get("/newSession", NewSession)
			r.With(ProfileVerifier).Get("/isLoggedIn", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})

		api.Route("/server", func(r chi.Router) {
			r.Use(ProfileVerifier)
			r.Post("/create", CreateServer)
			r.With(SessionVerifier).Get("/fetch", GetServerList)
			r.Get("/graph", GetServerGraph)
			r.Post("/delete", DeleteServer)
			r.Post("/rename", RenameServer)
			r.Post("/invite", RegenerateInvite)
			r.Post("/join", JoinServer)
			r.Post("/leave", LeaveServer)
		})

		api.Route("/channel", func(r chi.Router) {
			r.Use(ProfileVerifier)
			r.Post("/create", CreateChannel)
			r.Post("/rename", RenameChannel)
			r.Post("/delete", DeleteChannel)
			r.With(SessionVerifier).Get("/fetch", GetChannelList)
			r.With(SessionVerifier).Get("/view", ViewChannel)
		})

		api.Route("/message", func(r chi.Router) {
			r.Use(ProfileVerifier)
			r.Post("/create", CreateMessage)
			r.Post("/edit", EditMessage)
			r.Post("/delete", DeleteMessage)
			r.With(SessionVerifier).Get("/fetch", GetMessageHistory)
		})

		api.Route("/members", func(r chi.Router) {
			r.Use(ProfileVerifier)
			r.Get("/fetch", GetMemberList)
			r.Post("/role", UpdateMemberRole)
			r.Post("/kick", KickMember)
		})
	})

	r.With(ProfileVerifier).Get("/ws", HandleWebSocket)

	return r
}
