package models

import (
	"encoding/json"
	"fmt"

	"concord-backend/internal/apperr"
)

// ChannelType is fixed at channel creation. Changing it would invalidate the
// feed/room routing contract, so there is no setter anywhere.
type ChannelType uint8

const (
	ChannelText ChannelType = iota
	ChannelAudio
	ChannelVideo
)

var channelTypeNames = map[ChannelType]string{
	ChannelText:  "TEXT",
	ChannelAudio: "AUDIO",
	ChannelVideo: "VIDEO",
}

func (t ChannelType) String() string {
	if name, ok := channelTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ChannelType(%d)", uint8(t))
}

func (t ChannelType) Valid() bool {
	_, ok := channelTypeNames[t]
	return ok
}

func ParseChannelType(s string) (ChannelType, error) {
	for typ, name := range channelTypeNames {
		if name == s {
			return typ, nil
		}
	}
	return 0, apperr.Validation("unknown_channel_type")
}

func (t ChannelType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown_channel_type")
	}
	return json.Marshal(t.String())
}

func (t *ChannelType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	typ, err := ParseChannelType(s)
	if err != nil {
		return err
	}
	*t = typ
	return nil
}
