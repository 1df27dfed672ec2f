package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/docgate/internal/audit"
	"github.com/nerrad567/docgate/internal/auth"
	"github.com/nerrad567/docgate/internal/document"
	"github.com/nerrad567/docgate/internal/infrastructure/config"
	"github.com/nerrad567/docgate/internal/infrastructure/logging"
)

// WebSocket constants.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// upgradeRejection is written verbatim to a hijacked connection whose
// handshake carries no valid token.
const upgradeRejection = "HTTP/1.1 401 Web Socket Protocol Handshake\r\n" +
	"Upgrade: WebSocket\r\n" +
	"Connection: Upgrade\r\n" +
	"\r\n"

// ErrClientNotFound is returned by Hub.Send for an unknown connection ID.
var ErrClientNotFound = errors.New("websocket client not found")

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
// A client with no subscriptions receives changes for every collection.
type WSSubscribePayload struct {
	Collections []string `json:"collections"`
}

// Hub is the registry of authenticated WebSocket connections.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[string]*WSClient
	mu      sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	id            string
	username      string
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*WSClient),
	}
}

// newClient creates a client with a fresh connection ID.
func (h *Hub) newClient(conn *websocket.Conn, username string) *WSClient {
	return &WSClient{
		id:            uuid.NewString(),
		username:      username,
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.logger.Debug("websocket client connected",
		"client_id", client.id,
		"username", client.username,
		"clients", h.ClientCount(),
	)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	current, existed := h.clients[client.id]
	existed = existed && current == client
	if existed {
		delete(h.clients, client.id)
	}
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "client_id", client.id, "clients", h.ClientCount())
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(eventType string, payload any) {
	h.deliver(eventType, payload, func(*WSClient) bool { return true })
}

// Notify relays a committed document change to clients watching its
// collection. It implements document.Notifier and never blocks.
func (h *Hub) Notify(change document.Change) {
	h.deliver(change.Action, change, func(c *WSClient) bool {
		return c.isSubscribed(change.Collection)
	})
}

// Send delivers a message to one client.
func (h *Hub) Send(id, msgType string, payload any) error {
	h.mu.RLock()
	client, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return ErrClientNotFound
	}
	client.sendResponse("", msgType, payload)
	return nil
}

// deliver marshals one event and offers it to every client accepted by want.
// The hub lock is released before any per-client lock is taken.
func (h *Hub) deliver(eventType string, payload any, want func(*WSClient) bool) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sentCount := 0
	for _, client := range clients {
		if want(client) {
			client.trySend(data)
			sentCount++
		}
	}
	if sentCount > 0 {
		h.logger.Debug("broadcast sent", "event_type", eventType, "recipients", sentCount)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, id)
	}
}

// UpgradeGuard authorises WebSocket handshakes. A handshake without a valid
// token is answered with a raw 401 on the hijacked connection; no WebSocket
// connection is created. Accepted connections are registered with the hub.
type UpgradeGuard struct {
	extractor *auth.TokenExtractor
	tokens    *auth.TokenService
	hub       *Hub
	cfg       config.WebSocketConfig
	logger    *logging.Logger
	upgrader  websocket.Upgrader
	audit     func(action, username, source string, details map[string]any)
}

// NewUpgradeGuard creates a guard that registers accepted connections with hub.
func NewUpgradeGuard(extractor *auth.TokenExtractor, tokens *auth.TokenService, hub *Hub, cfg config.WebSocketConfig, logger *logging.Logger) *UpgradeGuard {
	return &UpgradeGuard{
		extractor: extractor,
		tokens:    tokens,
		hub:       hub,
		cfg:       cfg,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// The token, not the origin, authorises the handshake
				return true
			},
		},
	}
}

// Authorize extracts and verifies the handshake token, returning the
// username it was issued for.
func (g *UpgradeGuard) Authorize(r *http.Request) (string, error) {
	token, _, _ := g.extractor.Extract(r)
	payload, err := g.tokens.Verify(token)
	if err != nil {
		return "", err
	}
	username, _ := payload["username"].(string) //nolint:errcheck // missing username reads as empty
	return username, nil
}

// ServeHTTP authorises the handshake and, on success, upgrades it.
func (g *UpgradeGuard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username, err := g.Authorize(r)
	if err != nil {
		g.logger.Info("websocket upgrade rejected", "reason", auth.PublicMessage(err))
		g.record(audit.ActionUpgradeRejected, "", map[string]any{"reason": auth.PublicMessage(err)})
		rejectUpgrade(w)
		return
	}

	// Browsers drop the connection unless the offered token subprotocol
	// is echoed back.
	var header http.Header
	if proto, ok := g.extractor.Subprotocol(r); ok {
		header = http.Header{}
		header.Set("Sec-WebSocket-Protocol", proto)
	}

	conn, err := g.upgrader.Upgrade(w, r, header)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := g.hub.newClient(conn, username)
	g.hub.Register(client)
	g.record(audit.ActionUpgrade, username, map[string]any{"client_id": client.id})

	go client.writePump(g.cfg)
	go client.readPump(g.cfg)
}

func (g *UpgradeGuard) record(action, username string, details map[string]any) {
	if g.audit != nil {
		g.audit(action, username, "websocket", details)
	}
}

// rejectUpgrade writes the raw 401 handshake response and closes the
// connection. Writers that cannot be hijacked get a plain 401.
func rejectUpgrade(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		writeText(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	conn, buf, err := hj.Hijack()
	if err != nil {
		writeText(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}
	defer conn.Close()

	//nolint:errcheck // Best-effort write; the connection is closed either way
	buf.WriteString(upgradeRejection)
	//nolint:errcheck // Best-effort flush; the connection is closed either way
	buf.Flush()
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message. Malformed input
// gets an error reply; the connection stays open.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.updateSubscriptions(msg, true)
	case WSTypeUnsubscribe:
		c.updateSubscriptions(msg, false)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// updateSubscriptions adds or removes the collections named in msg.
func (c *WSClient) updateSubscriptions(msg WSMessage, add bool) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}

	var sub WSSubscribePayload
	if err := json.Unmarshal(payloadBytes, &sub); err != nil {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return
	}

	c.mu.Lock()
	for _, coll := range sub.Collections {
		if add {
			c.subscriptions[coll] = struct{}{}
		} else {
			delete(c.subscriptions, coll)
		}
	}
	c.mu.Unlock()

	key := "subscribed"
	if !add {
		key = "unsubscribed"
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: sub.Collections})
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// isSubscribed reports whether the client wants changes for collection.
func (c *WSClient) isSubscribed(collection string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	_, ok := c.subscriptions[collection]
	return ok
}

// sendResponse sends a response message to the client.
// Routes through trySend to safely handle closed channels during shutdown.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
