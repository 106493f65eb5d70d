// Package chanrouter maps a channel's type to exactly one behavioral mode:
// TEXT attaches to the message feed, AUDIO and VIDEO hand the client off to
// the external media room. Routing is resolved once per channel view and is
// exhaustive; an unknown type is an error, never a silent default.
package chanrouter

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/models"
)

type Mode uint8

const (
	ModeFeed Mode = iota + 1
	ModeRoom
)

func (m Mode) String() string {
	switch m {
	case ModeFeed:
		return "feed"
	case ModeRoom:
		return "room"
	default:
		return "unknown"
	}
}

// FeedView attaches the client to live message events plus history paging.
type FeedView struct {
	ChannelID int64 `json:"channelID,string"`
}

// RoomView is handed to the media-room collaborator; no message feed is
// attached in this mode.
type RoomView struct {
	ChannelID int64 `json:"channelID,string"`
	Audio     bool  `json:"audio"`
	Video     bool  `json:"video"`
}

// View is a tagged union: exactly one of Feed or Room is set, matching Mode.
type View struct {
	Mode Mode      `json:"mode"`
	Feed *FeedView `json:"feed,omitempty"`
	Room *RoomView `json:"room,omitempty"`
}

func Route(ch *models.Channel) (View, error) {
	switch ch.Type {
	case models.ChannelText:
		return View{Mode: ModeFeed, Feed: &FeedView{ChannelID: ch.ID}}, nil
	case models.ChannelAudio:
		return View{Mode: ModeRoom, Room: &RoomView{ChannelID: ch.ID, Audio: true}}, nil
	case models.ChannelVideo:
		return View{Mode: ModeRoom, Room: &RoomView{ChannelID: ch.ID, Audio: true, Video: true}}, nil
	default:
		return View{}, apperr.Validation("unknown_channel_type")
	}
}
