// Package mediaroom hands clients off to the external media transport.
// This core only arbitrates room membership: it derives the audio/video
// capabilities from the channel type and signs a short-lived access token
// naming the room and the member. Media packets never pass through here.
package mediaroom

import (
	"fmt"
	"time"

	"concord-backend/internal/apperr"
	"concord-backend/internal/chanrouter"
	"concord-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const tokenLifetime = 10 * time.Minute

type Service struct {
	secret  []byte
	baseURL string
}

func New(secret string, baseURL string) *Service {
	return &Service{secret: []byte(secret), baseURL: baseURL}
}

// Descriptor is everything a client needs to attach to the external media
// room for a channel.
type Descriptor struct {
	RoomID    string `json:"roomID"`
	ChannelID int64  `json:"channelID,string"`
	Audio     bool   `json:"audio"`
	Video     bool   `json:"video"`
	URL       string `json:"url"`
	Token     string `json:"token"`
}

type roomClaims struct {
	Room     string `json:"room"`
	MemberID int64  `json:"memberID"`
	Audio    bool   `json:"audio"`
	Video    bool   `json:"video"`
	jwt.RegisteredClaims
}

// Descriptor builds the room hand-off for a channel already routed to room
// mode. Feed-mode views never reach here.
func (s *Service) Descriptor(view *chanrouter.RoomView, member *models.Member) (Descriptor, error) {
	if view == nil || member == nil {
		return Descriptor{}, apperr.Validation("missing_room_view")
	}

	roomID := fmt.Sprintf("channel-%d", view.ChannelID)
	now := time.Now().UTC()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, roomClaims{
		Room:     roomID,
		MemberID: member.ID,
		Audio:    view.Audio,
		Video:    view.Video,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Descriptor{}, err
	}

	return Descriptor{
		RoomID:    roomID,
		ChannelID: view.ChannelID,
		Audio:     view.Audio,
		Video:     view.Video,
		URL:       s.baseURL,
		Token:     signed,
	}, nil
}
