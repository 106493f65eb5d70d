// Package hub is the real-time fan-out service: it keeps the per-stream
// subscriber registries and sequence counters, linearizes publishes to the
// same stream, and delivers events to every subscriber without letting a
// slow connection stall the publish path.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"concord-backend/internal/apperr"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// subscriberBuffer bounds each subscriber's delivery queue; overflowing
	// it disconnects that subscriber instead of blocking the stream.
	subscriberBuffer = 64

	// backlogSize bounds the reconnect grace window: a subscriber whose last
	// acknowledged event is still inside the backlog gets a backfill,
	// anything older must fall back to a history fetch.
	backlogSize = 256

	mirrorAttempts = 3
)

// ErrGapTooOld means the missed events left the backlog; the client must
// fetch history and resume live from the current sequence number.
var ErrGapTooOld = apperr.NotFound("backlog_expired")

// MembershipChecker verifies, against current storage, that a profile is a
// member of a server. The hub re-checks on every subscribe so stale
// privileges can't be exploited through an old connection.
type MembershipChecker interface {
	IsServerMember(ctx context.Context, serverID int64, profileID int64) (bool, error)
}

type Hub struct {
	sugar   *zap.SugaredLogger
	members MembershipChecker

	// mirror, when set, receives a copy of every published frame for
	// external read-only consumers. Ordering is still assigned locally;
	// the hub stays the single ordering authority per stream.
	mirror    *redis.Client
	mirrorCtx context.Context

	mu      sync.RWMutex
	streams map[StreamID]*stream
	closed  bool

	clientsMu sync.Mutex
	clients   map[int64]*Client
}

type stream struct {
	id       StreamID
	serverID int64

	mu      sync.Mutex
	seq     int64
	subs    map[int64]*Subscription
	backlog []Event
	gaps    int64
}

// Subscription is a connection's live membership in one stream. It exists
// only while the connection is up; nothing about it is persisted.
type Subscription struct {
	Stream    StreamID
	SessionID int64
	ProfileID int64

	// C delivers events in publish order. It is closed on unsubscribe,
	// overflow disconnect, or hub shutdown.
	C chan Event

	lastAck int64
	closed  bool
}

func New(sugar *zap.SugaredLogger, members MembershipChecker, mirror *redis.Client) *Hub {
	return &Hub{
		sugar:     sugar,
		members:   members,
		mirror:    mirror,
		mirrorCtx: context.Background(),
		streams:   make(map[StreamID]*stream),
		clients:   make(map[int64]*Client),
	}
}

func (h *Hub) getOrCreateStream(id StreamID, serverID int64) (*stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, apperr.Conflict("hub_closed")
	}

	st, exists := h.streams[id]
	if !exists {
		st = &stream{id: id, serverID: serverID, subs: make(map[int64]*Subscription)}
		h.streams[id] = st
	} else if st.serverID == 0 {
		st.serverID = serverID
	}
	return st, nil
}

func (h *Hub) getStream(id StreamID) *stream {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.streams[id]
}

// Subscribe attaches a session to a stream after re-checking membership.
// Subscribing twice with the same session is idempotent: the existing
// subscription is returned.
func (h *Hub) Subscribe(ctx context.Context, id StreamID, serverID int64, sessionID int64, profileID int64) (*Subscription, error) {
	isMember, err := h.members.IsServerMember(ctx, serverID, profileID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Unauthorized("not_member")
	}

	st, err := h.getOrCreateStream(id, serverID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.subs[sessionID]; ok {
		return existing, nil
	}

	sub := &Subscription{
		Stream:    id,
		SessionID: sessionID,
		ProfileID: profileID,
		C:         make(chan Event, subscriberBuffer),
		lastAck:   st.seq,
	}
	st.subs[sessionID] = sub

	h.sugar.Debugf("Session ID %d subscribed to %s %d", sessionID, id.Scope, id.ID)
	return sub, nil
}

// Unsubscribe detaches a session. Unsubscribing an absent subscription is
// treated as success.
func (h *Hub) Unsubscribe(id StreamID, sessionID int64) {
	st := h.getStream(id)
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.removeLocked(sessionID)
}

func (st *stream) removeLocked(sessionID int64) {
	sub, ok := st.subs[sessionID]
	if !ok {
		return
	}
	delete(st.subs, sessionID)
	if !sub.closed {
		sub.closed = true
		close(sub.C)
	}
}

// Publish appends an event to the stream and fans it out. The sequence
// number is assigned under the stream lock, so concurrent publishes to one
// stream are linearized while different streams proceed in parallel. Once
// the position is assigned the publish is not cancellable: the event either
// reaches a subscriber or is recorded as a gap for it.
func (h *Hub) Publish(id StreamID, eventType EventType, payload any) (int64, error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0, apperr.Conflict("hub_closed")
	}
	h.mu.RUnlock()

	st, err := h.getOrCreateStream(id, 0)
	if err != nil {
		return 0, err
	}

	st.mu.Lock()
	st.seq++
	event := Event{
		Seq:     st.seq,
		Type:    eventType,
		Scope:   id.Scope,
		ID:      id.ID,
		Payload: payload,
	}

	st.backlog = append(st.backlog, event)
	if len(st.backlog) > backlogSize {
		st.backlog = st.backlog[len(st.backlog)-backlogSize:]
	}

	var overflowed []int64
	for sessionID, sub := range st.subs {
		select {
		case sub.C <- event:
		default:
			// a full queue means this subscriber can't keep up; cut it
			// loose so the channel doesn't stall, it must resync via
			// history fetch
			overflowed = append(overflowed, sessionID)
		}
	}
	for _, sessionID := range overflowed {
		st.gaps++
		st.removeLocked(sessionID)
		h.sugar.Warnf("Session ID %d overflowed on %s %d at seq %d, disconnecting subscriber", sessionID, id.Scope, id.ID, event.Seq)
	}
	st.mu.Unlock()

	if h.mirror != nil {
		go h.mirrorPublish(event)
	}

	return event.Seq, nil
}

// mirrorPublish copies the event to redis for external consumers, retrying
// with bounded attempts before recording the loss as a gap.
func (h *Hub) mirrorPublish(event Event) {
	frame, err := Frame(event)
	if err != nil {
		h.sugar.Error(err)
		return
	}

	key := fmt.Sprintf("%s:%d", event.Scope, event.ID)
	for attempt := 1; attempt <= mirrorAttempts; attempt++ {
		err = h.mirror.Publish(h.mirrorCtx, key, frame).Err()
		if err == nil {
			return
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	h.sugar.Warnf("Dropping mirrored event seq %d on %s after %d attempts, recording gap: %v", event.Seq, key, mirrorAttempts, err)
}

// Resume backfills the events a reconnecting subscriber missed since
// lastAck. Beyond the backlog window it returns ErrGapTooOld.
func (h *Hub) Resume(id StreamID, sessionID int64, lastAck int64) ([]Event, error) {
	st := h.getStream(id)
	if st == nil {
		return nil, ErrGapTooOld
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if lastAck >= st.seq {
		return []Event{}, nil
	}

	if len(st.backlog) == 0 || st.backlog[0].Seq > lastAck+1 {
		return nil, ErrGapTooOld
	}

	missed := []Event{}
	for _, event := range st.backlog {
		if event.Seq > lastAck {
			missed = append(missed, event)
		}
	}

	if sub, ok := st.subs[sessionID]; ok {
		sub.lastAck = st.seq
	}

	return missed, nil
}

// Ack records the highest sequence number a subscriber has confirmed, the
// key Resume backfills from.
func (h *Hub) Ack(id StreamID, sessionID int64, seq int64) {
	st := h.getStream(id)
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if sub, ok := st.subs[sessionID]; ok && seq > sub.lastAck {
		sub.lastAck = seq
	}
}

// CurrentSeq reports the stream's latest assigned sequence number, the point
// a client resumes live delivery from after a history fetch.
func (h *Hub) CurrentSeq(id StreamID) int64 {
	st := h.getStream(id)
	if st == nil {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.seq
}

// DropStream tears down a stream and all its subscriptions, used when the
// underlying channel or server is deleted.
func (h *Hub) DropStream(id StreamID) {
	h.mu.Lock()
	st := h.streams[id]
	delete(h.streams, id)
	h.mu.Unlock()

	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for sessionID := range st.subs {
		st.removeLocked(sessionID)
	}
}

// DropServerStreams tears down the server's own stream and every channel
// stream belonging to it, used when the server is deleted. Streams learn
// their server on first subscribe, so any stream with live subscribers is
// covered.
func (h *Hub) DropServerStreams(serverID int64) {
	h.mu.Lock()
	dropped := []*stream{}
	for id, st := range h.streams {
		if st.serverID == serverID || id == ServerStream(serverID) {
			delete(h.streams, id)
			dropped = append(dropped, st)
		}
	}
	h.mu.Unlock()

	for _, st := range dropped {
		st.mu.Lock()
		for sessionID := range st.subs {
			st.removeLocked(sessionID)
		}
		st.mu.Unlock()
	}
}

// DropMemberSubscriptions removes every subscription a profile holds on
// streams of one server. Kick and leave cascade here so a removed member
// stops receiving events immediately.
func (h *Hub) DropMemberSubscriptions(serverID int64, profileID int64) {
	h.mu.RLock()
	streams := make([]*stream, 0, len(h.streams))
	for _, st := range h.streams {
		if st.serverID == serverID {
			streams = append(streams, st)
		}
	}
	h.mu.RUnlock()

	for _, st := range streams {
		st.mu.Lock()
		for sessionID, sub := range st.subs {
			if sub.ProfileID == profileID {
				st.removeLocked(sessionID)
			}
		}
		st.mu.Unlock()
	}
}

// Shutdown tears down all subscriptions. In-flight publishes hold their
// stream lock, so walking every stream drains them before the registries
// are cleared.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	streams := h.streams
	h.streams = make(map[StreamID]*stream)
	h.mu.Unlock()

	for _, st := range streams {
		st.mu.Lock()
		if st.gaps > 0 {
			h.sugar.Warnf("Stream %s %d shutting down with %d recorded gaps", st.id.Scope, st.id.ID, st.gaps)
		}
		for sessionID := range st.subs {
			st.removeLocked(sessionID)
		}
		st.mu.Unlock()
	}

	h.clientsMu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[int64]*Client)
	h.clientsMu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

// Frame encodes an event the way clients read it off the wire: the event
// type on its own line, then the JSON body.
func Frame(event Event) ([]byte, error) {
	jsonBytes, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(event.Type)+1+len(jsonBytes))
	frame = append(frame, event.Type...)
	frame = append(frame, '\n')
	frame = append(frame, jsonBytes...)
	return frame, nil
}
