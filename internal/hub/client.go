package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one live WebSocket connection. A session holds at most one
// channel-scoped and one server-scoped subscription at a time, matching what
// a single client view needs; switching channels implicitly unsubscribes the
// previous one.
type Client struct {
	SessionID int64
	ProfileID int64

	hub  *Hub
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu             sync.Mutex
	currentChannel int64
	currentServer  int64
	subs           map[StreamID]*Subscription
}

// clientCommand is what the read loop accepts from the wire: acknowledgement
// of delivered events and backfill requests after a reconnect.
type clientCommand struct {
	Op    string `json:"op"`
	Scope Scope  `json:"scope"`
	ID    int64  `json:"id,string"`
	Seq   int64  `json:"seq"`
}

func (h *Hub) setClient(sessionID int64, client *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[sessionID] = client
}

func (h *Hub) deleteClient(sessionID int64) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	delete(h.clients, sessionID)
}

func (h *Hub) GetClient(sessionID int64) (*Client, bool) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	client, exists := h.clients[sessionID]
	return client, exists
}

// HandleClient upgrades the request and runs the connection until it drops.
// Connection loss cancels every subscription the session holds.
func (h *Hub) HandleClient(w http.ResponseWriter, r *http.Request, profileID int64) {
	h.sugar.Debugf("Connecting profile ID [%d] to WebSocket", profileID)

	sessionCookie, err := r.Cookie("session")
	if err != nil {
		h.sugar.Debug(err)
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
		h.sugar.Error(err)
		http.Error(w, "Session cookie is in improper format", http.StatusBadRequest)
		return
	}

	var upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sugar.Error(err)
		return
	}
	defer conn.Close()

	clientCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &Client{
		SessionID: sessionID,
		ProfileID: profileID,
		hub:       h,
		conn:      conn,
		ctx:       clientCtx,
		cancel:    cancel,
		subs:      make(map[StreamID]*Subscription),
	}

	h.setClient(sessionID, client)

	// listening to incoming commands directly from client
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.sugar.Debug(err)
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			h.sugar.Debug(err)
			continue
		}
		client.handleCommand(cmd)
	}

	h.deleteClient(sessionID)
	client.close()
}

func (c *Client) handleCommand(cmd clientCommand) {
	id := StreamID{Scope: cmd.Scope, ID: cmd.ID}

	switch cmd.Op {
	case "ack":
		c.hub.Ack(id, c.SessionID, cmd.Seq)
	case "resume":
		missed, err := c.hub.Resume(id, c.SessionID, cmd.Seq)
		if err != nil {
			// backlog no longer covers the gap; tell the client to fall
			// back to a history fetch and carry on from the current seq
			c.writeFrame([]byte("ResyncRequired\n{\"seq\":" + strconv.FormatInt(c.hub.CurrentSeq(id), 10) + "}"))
			return
		}
		for _, event := range missed {
			frame, err := Frame(event)
			if err != nil {
				c.hub.sugar.Error(err)
				return
			}
			if !c.writeFrame(frame) {
				return
			}
		}
	default:
		c.hub.sugar.Debugf("Session ID %d sent unknown op %q", c.SessionID, cmd.Op)
	}
}

// SubscribeSession attaches a connected session to a stream, keeping the
// one-channel/one-server invariant: a new subscription in a scope replaces
// the previous subscription of that scope.
func (h *Hub) SubscribeSession(ctx context.Context, id StreamID, serverID int64, sessionID int64) error {
	client, exists := h.GetClient(sessionID)
	if !exists {
		return fmt.Errorf("session ID [%d] tried to subscribe to %s [%d] but the session isn't connected to hub", sessionID, id.Scope, id.ID)
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	switch id.Scope {
	case ScopeChannel:
		if client.currentChannel == id.ID {
			break
		}
		client.dropLocked(ChannelStream(client.currentChannel))
		client.currentChannel = id.ID
	case ScopeServer:
		if client.currentServer == id.ID {
			break
		}
		client.dropLocked(ServerStream(client.currentServer))
		client.currentServer = id.ID
	}

	if _, ok := client.subs[id]; ok {
		return nil
	}

	sub, err := h.Subscribe(ctx, id, serverID, sessionID, client.ProfileID)
	if err != nil {
		return err
	}

	client.subs[id] = sub
	go client.pump(sub)
	return nil
}

func (c *Client) dropLocked(id StreamID) {
	if sub, ok := c.subs[id]; ok {
		delete(c.subs, id)
		c.hub.Unsubscribe(sub.Stream, c.SessionID)
	}
}

// pump drains one subscription onto the wire. The subscription channel
// closing (unsubscribe, overflow, shutdown) ends it.
func (c *Client) pump(sub *Subscription) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			frame, err := Frame(event)
			if err != nil {
				c.hub.sugar.Error(err)
				continue
			}
			if !c.writeFrame(frame) {
				return
			}
		}
	}
}

func (c *Client) writeFrame(frame []byte) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err := c.conn.WriteMessage(websocket.TextMessage, frame)
	if err != nil {
		c.hub.sugar.Debug(err)
		c.cancel()
		return false
	}
	return true
}

func (c *Client) close() {
	c.cancel()

	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[StreamID]*Subscription)
	c.mu.Unlock()

	for id := range subs {
		c.hub.Unsubscribe(id, c.SessionID)
	}

	c.conn.Close()
}
