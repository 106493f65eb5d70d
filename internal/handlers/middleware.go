package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"concord-backend/internal/jwt"
	"concord-backend/internal/keyvalue"
	"concord-backend/internal/models"
	"concord-backend/internal/snowflake"
)

type SessionIDKeyType struct{}
type ProfileIDKeyType struct{}

// ProfileVerifier resolves the identity token to a profile. The profile row
// is created on first sighting; no token at all routes the caller back to
// the external sign-in flow with a plain 401.
func ProfileVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtCookie, err := r.Cookie("JWT")
		if err != nil {
			sugar.Debug(err)
			switch {
			case errors.Is(err, http.ErrNoCookie):
				http.Error(w, "No jwt cookie was provided", http.StatusUnauthorized)
			default:
				http.Error(w, "Couldn't read jwt cookie", http.StatusInternalServerError)
			}
			return
		}

		profileToken, err := jwt.VerifyToken(jwtCookie.Value)
		if err != nil {
			sugar.Debug(err)
			http.Error(w, "Couldn't verify JWT", http.StatusUnauthorized)
			return
		}

		expired := time.Now().UTC().After(profileToken.ExpiresAt.UTC())
		if expired {
			http.Error(w, "Login expired", http.StatusUnauthorized)
			return
		}

		// ensure the profile row exists, skipping the write for profiles
		// seen recently
		key := fmt.Sprintf("profile_exists:%d", profileToken.ProfileID)

		value, err := keyvalue.Get(key)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		if value == "" {
			err = store.EnsureProfile(r.Context(), models.Profile{
				ID:        profileToken.ProfileID,
				Name:      profileToken.Name,
				AvatarURL: profileToken.AvatarURL,
			})
			if err != nil {
				sugar.Error(err)
				writeError(w, err)
				return
			}
			if err := keyvalue.Set(key, "y", 15*time.Minute); err != nil {
				sugar.Error(err)
			}
		}

		ctx := context.WithValue(r.Context(), ProfileIDKeyType{}, profileToken.ProfileID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionVerifier requires the caller to be connected to the hub; handlers
// behind it subscribe the session to live streams.
func SessionVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionCookie, err := r.Cookie("session")
		if err != nil {
			sugar.Debug(err)
			switch {
			case errors.Is(err, http.ErrNoCookie):
				http.Error(w, "No session cookie was provided", http.StatusUnauthorized)
			default:
				http.Error(w, "Couldn't read session cookie", http.StatusInternalServerError)
			}
			return
		}

		sessionID, err := strconv.ParseInt(sessionCookie.Value, 10, 64)
		if err != nil {
			sugar.Error(err)
			http.Error(w, "Session cookie is in improper format", http.StatusBadRequest)
			return
		}

		_, exists := fanout.GetClient(sessionID)
		if exists {
			ctx := context.WithValue(r.Context(), SessionIDKeyType{}, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		} else {
			http.Error(w, "You are not connected to websocket", http.StatusUnauthorized)
			return
		}
	})
}

func NewSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	sessionCookie := http.Cookie{
		Name:     "session",
		Value:    fmt.Sprint(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, &sessionCookie)
}
