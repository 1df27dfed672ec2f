package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/docgate/internal/document"
	"github.com/nerrad567/docgate/internal/infrastructure/config"
	"github.com/nerrad567/docgate/internal/infrastructure/logging"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// waitForClients polls until the hub holds n clients.
func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

// ─── Upgrade Guard ─────────────────────────────────────────────────

func TestUpgrade_ValidSubprotocolToken(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	proto := "token_" + env.issue(t, "alice")
	dialer := websocket.Dialer{Subprotocols: []string{proto}}
	conn, resp, err := dialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want 101", resp.StatusCode)
	}
	if conn.Subprotocol() != proto {
		t.Errorf("negotiated subprotocol = %q, want the offered token protocol", conn.Subprotocol())
	}
	waitForClients(t, env.srv.Hub(), 1)

	// A committed change reaches the connection.
	if _, err := env.store.Insert(context.Background(), "notes", document.Document{"title": "hi"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	msg := readEvent(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != document.ActionInsert {
		t.Errorf("message = %+v, want insert event", msg)
	}
	change, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if change["collection"] != "notes" || change["count"] != float64(1) {
		t.Errorf("payload = %v, want notes change with count 1", msg.Payload)
	}
}

func TestUpgrade_Rejected(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	tests := []struct {
		name   string
		protos []string
	}{
		{name: "expired token", protos: []string{"token_" + expiredToken(t, "alice")}},
		{name: "garbage token", protos: []string{"token_garbage"}},
		{name: "no token", protos: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := websocket.Dialer{Subprotocols: tt.protos}
			conn, resp, err := dialer.Dial(wsURL(ts), nil)
			if err == nil {
				conn.Close()
				t.Fatal("Dial() succeeded, want handshake rejection")
			}
			if !errors.Is(err, websocket.ErrBadHandshake) {
				t.Fatalf("Dial() error = %v, want ErrBadHandshake", err)
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("response = %+v, want 401", resp)
			}
			if resp.Status != "401 Web Socket Protocol Handshake" {
				t.Errorf("status line = %q", resp.Status)
			}
		})
	}

	if n := env.srv.Hub().ClientCount(); n != 0 {
		t.Errorf("client count = %d, want 0 after rejected handshakes", n)
	}
}

func TestUpgrade_CookieToken(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	header := http.Header{}
	header.Set("Cookie", "token="+env.issue(t, "alice"))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if conn.Subprotocol() != "" {
		t.Errorf("subprotocol = %q, want none when not offered", conn.Subprotocol())
	}
	waitForClients(t, env.srv.Hub(), 1)
}

func TestRejectUpgrade_NoHijacker(t *testing.T) {
	w := httptest.NewRecorder()
	rejectUpgrade(w)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestUpgradeGuard_Authorize(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Sec-WebSocket-Protocol", "chat, token_"+env.issue(t, "alice"))
	username, err := env.srv.guard.Authorize(req)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if username != "alice" {
		t.Errorf("username = %q, want alice", username)
	}
}

func TestWSClient_MalformedMessage(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	dialer := websocket.Dialer{Subprotocols: []string{"token_" + env.issue(t, "alice")}}
	conn, _, err := dialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if msg := readEvent(t, conn); msg.Type != WSTypeError {
		t.Errorf("reply type = %q, want error", msg.Type)
	}

	// The connection survives and still answers pings.
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if msg := readEvent(t, conn); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("reply = %+v, want pong p1", msg)
	}
}

// ─── Hub ───────────────────────────────────────────────────────────

func newTestClient(hub *Hub, collections ...string) *WSClient {
	client := hub.newClient(nil, "alice")
	for _, c := range collections {
		client.subscriptions[c] = struct{}{}
	}
	return client
}

func TestHub_NotifyRespectsSubscriptions(t *testing.T) {
	hub := testHub(t)

	everything := newTestClient(hub)
	booksOnly := newTestClient(hub, "books")
	hub.Register(everything)
	hub.Register(booksOnly)

	hub.Notify(document.Change{Action: document.ActionUpdate, Collection: "notes", Count: 1})

	select {
	case msg := <-everything.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != document.ActionUpdate {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, document.ActionUpdate)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for change")
	}

	select {
	case <-booksOnly.send:
		t.Error("client subscribed to books should not receive notes changes")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_BroadcastReachesAll(t *testing.T) {
	hub := testHub(t)
	a, b := newTestClient(hub), newTestClient(hub, "books")
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast("maintenance", map[string]any{"in": "5m"})

	for _, c := range []*WSClient{a, b} {
		select {
		case <-c.send:
		case <-time.After(time.Second):
			t.Errorf("client %s missed broadcast", c.id)
		}
	}
}

func TestHub_Send(t *testing.T) {
	hub := testHub(t)
	client := newTestClient(hub)
	hub.Register(client)

	if err := hub.Send(client.id, WSTypeResponse, map[string]string{"hello": "alice"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	select {
	case <-client.send:
	case <-time.After(time.Second):
		t.Error("timed out waiting for direct message")
	}

	if err := hub.Send("missing", WSTypeResponse, nil); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("Send(unknown) error = %v, want ErrClientNotFound", err)
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := newTestClient(hub)
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	// A second unregister must not double-close the send channel.
	hub.Unregister(client)
}
