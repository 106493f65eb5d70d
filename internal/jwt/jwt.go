// Package jwt is the boundary to the external identity collaborator: it
// verifies the signed profile token the sign-in flow issues. A missing or
// invalid token is a terminal unauthorized state for this core, not an error
// to recover from.
package jwt

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ProfileToken struct {
	ProfileID int64  `json:"profileID"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarURL"`
	jwt.RegisteredClaims
}

var jwtSecret []byte
var isHttps bool

func Setup(_key string, _isHttps bool) {
	jwtSecret = []byte(_key)
	isHttps = _isHttps
}

// CreateToken mints a profile token cookie. Production sign-in lives with
// the identity provider; this is used by local development and tests.
func CreateToken(profileID int64, name string, avatarURL string) (http.Cookie, error) {
	currentTime := time.Now().UTC()
	expirationDate := currentTime.Add(24 * time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, ProfileToken{
		ProfileID: profileID,
		Name:      name,
		AvatarURL: avatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expirationDate),
		},
	})

	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		return http.Cookie{}, err
	}

	cookie := http.Cookie{
		Name:     "JWT",
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHttps,
		SameSite: http.SameSiteLaxMode,
		Expires:  expirationDate,
	}

	return cookie, nil
}

func VerifyToken(tokenString string) (ProfileToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ProfileToken{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil {
		return ProfileToken{}, err
	} else if claims, ok := token.Claims.(*ProfileToken); ok {
		return *claims, nil
	} else {
		return ProfileToken{}, errors.New("invalid token")
	}
}
