package hub

type EventType string

const (
	MessageCreated EventType = "MessageCreated"
	MessageUpdated EventType = "MessageUpdated"
	MessageDeleted EventType = "MessageDeleted"

	MemberRoleChanged EventType = "MemberRoleChanged"
	MemberRemoved     EventType = "MemberRemoved"

	ChannelCreated EventType = "ChannelCreated"
	ChannelRenamed EventType = "ChannelRenamed"
	ChannelDeleted EventType = "ChannelDeleted"

	ServerUpdated EventType = "ServerUpdated"
	ServerDeleted EventType = "ServerDeleted"
)

// Scope separates the two stream families: channel streams carry message
// events, server streams carry channel/member/server changes visible to
// everyone in the server.
type Scope string

const (
	ScopeChannel Scope = "channel"
	ScopeServer  Scope = "server"
)

// StreamID identifies one ordered event stream. All subscribers of a stream
// observe its events in the same relative order; no ordering holds across
// streams.
type StreamID struct {
	Scope Scope
	ID    int64
}

func ChannelStream(channelID int64) StreamID {
	return StreamID{Scope: ScopeChannel, ID: channelID}
}

func ServerStream(serverID int64) StreamID {
	return StreamID{Scope: ScopeServer, ID: serverID}
}

// Event is one entry of a stream. Seq is assigned by the stream's single
// ordering authority; a subscriber seeing a discontinuity in Seq has missed
// events (a gap) and must resync through a history fetch.
type Event struct {
	Seq     int64     `json:"seq"`
	Type    EventType `json:"type"`
	Scope   Scope     `json:"scope"`
	ID      int64     `json:"id,string"`
	Payload any       `json:"payload"`
}
