package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"concord-backend/internal/database"
	"concord-backend/internal/handlers"
	"concord-backend/internal/hub"
	"concord-backend/internal/jwt"
	"concord-backend/internal/keyvalue"
	"concord-backend/internal/mediaroom"
	"concord-backend/internal/models"
	"concord-backend/internal/repository"
	"concord-backend/internal/snowflake"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	keyvalue.Setup(zap.NewNop().Sugar(), nil, true)
	jwt.Setup("test-secret", false)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}

	nop := zap.NewNop().Sugar()
	store := repository.NewSQLStore(db, nop)
	fanout := hub.New(nop, store, nil)
	rooms := mediaroom.New("room-secret", "wss://media.example.com")

	router := handlers.Setup(&models.ConfigFile{}, nop, store, fanout, rooms)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		fanout.Shutdown(context.Background())
		db.Close()
	})
	return srv
}

type testClient struct {
	t       *testing.T
	srv     *httptest.Server
	cookies string
	ws      *websocket.Conn
}

// connect mints an identity token, opens a session and attaches the
// WebSocket, the same hand-shake a real client performs.
func connect(t *testing.T, srv *httptest.Server, name string) *testClient {
	t.Helper()

	profileID, err := snowflake.Generate()
	if err != nil {
		t.Fatal(err)
	}
	token, err := jwt.CreateToken(profileID, name, "")
	if err != nil {
		t.Fatal(err)
	}

	client := &testClient{t: t, srv: srv, cookies: "JWT=" + token.Value}

	resp := client.do(http.MethodGet, "/api/auth/newSession", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("newSession returned status %d", resp.StatusCode)
	}
	var session *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session" {
			session = cookie
		}
	}
	if session == nil {
		t.Fatal("newSession did not set a session cookie")
	}
	client.cookies = fmt.Sprintf("JWT=%s; session=%s", token.Value, session.Value)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Cookie": []string{client.cookies}}
	ws, wsResp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (%v)", err, wsResp)
	}
	t.Cleanup(func() { ws.Close() })
	client.ws = ws

	// the connection registers with the hub just after the upgrade; wait
	// until session-gated endpoints accept us
	for i := 0; i < 50; i++ {
		resp := client.do(http.MethodGet, "/api/server/fetch", "")
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return client
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("session never registered with the hub")
	return nil
}

func (c *testClient) do(method string, path string, body string) *http.Response {
	c.t.Helper()

	req, err := http.NewRequest(method, c.srv.URL+path, strings.NewReader(body))
	if err != nil {
		c.t.Fatal(err)
	}
	req.Header.Set("Cookie", c.cookies)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	return resp
}

func (c *testClient) doJSON(method string, path string, body string, into any) {
	c.t.Helper()

	resp := c.do(method, path, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("%s %s returned status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		c.t.Fatal(err)
	}
}

// readFrame reads one event frame off the WebSocket.
func (c *testClient) readFrame() (string, []byte) {
	c.t.Helper()

	c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatal(err)
	}
	newline := bytes.IndexByte(payload, '\n')
	if newline < 0 {
		c.t.Fatalf("frame %q is missing the type line", payload)
	}
	return string(payload[:newline]), payload[newline+1:]
}

// The verified identity token creates the profile on first sighting, and a
// history fetch leaves the session attached to the live stream: a message
// created right after the page comes back arrives over the WebSocket with a
// sequence number past the page's seq.
func TestHistoryThenLiveDelivery(t *testing.T) {
	srv := newTestServer(t)
	client := connect(t, srv, "alice")

	var graph repository.ServerGraph
	client.doJSON(http.MethodPost, "/api/server/create", `{"name":"Gaming Hub"}`, &graph)
	general := graph.Channels[0]

	var page struct {
		Messages []models.Message `json:"messages"`
		Seq      int64            `json:"seq"`
	}
	client.doJSON(http.MethodGet, fmt.Sprintf("/api/message/fetch?channelID=%d", general.ID), "", &page)
	if len(page.Messages) != 0 {
		t.Fatalf("fresh channel returned %d messages", len(page.Messages))
	}

	var created models.Message
	client.doJSON(http.MethodPost, "/api/message/create",
		fmt.Sprintf(`{"channelID":"%d","content":"hello"}`, general.ID), &created)
	if created.Author.Name != "alice" {
		t.Errorf("message author = %q, want %q", created.Author.Name, "alice")
	}

	frameType, body := client.readFrame()
	if frameType != string(hub.MessageCreated) {
		t.Fatalf("frame type = %q, want %q", frameType, hub.MessageCreated)
	}

	var event struct {
		Seq     int64          `json:"seq"`
		Payload models.Message `json:"payload"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		t.Fatal(err)
	}
	if event.Seq <= page.Seq {
		t.Errorf("live event seq = %d, want past the page seq %d", event.Seq, page.Seq)
	}
	if event.Payload.ID != created.ID {
		t.Errorf("live event carries message %d, want %d", event.Payload.ID, created.ID)
	}
}

func TestProfileVerifierRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/server/fetch")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("request without a token returned status %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
