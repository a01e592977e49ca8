package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"interview-copilot-service/internal/observability/logging"
	"interview-copilot-service/internal/observability/metrics"
	"interview-copilot-service/internal/service/copilot"
	"interview-copilot-service/internal/service/transcript"
)

const (
	eventsConnection = "websocket_events"
	clientBuffer     = 64
)

// Message types sent to UI clients.
const (
	MessageSnapshot = "snapshot"
	MessageTurn     = "turn"
	MessageCleared  = "cleared"
	MessageStatus   = "status"
)

// Message is one UI update.
type Message struct {
	Type   string            `json:"type"`
	Change string            `json:"change,omitempty"`
	Index  *int              `json:"index,omitempty"`
	Turn   *transcript.Turn  `json:"turn,omitempty"`
	Turns  []transcript.Turn `json:"turns,omitempty"`
	Status *copilot.Status   `json:"status,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans transcript changes and session status out to websocket clients.
// A client that falls behind is disconnected.
type Hub struct {
	store   *transcript.Store
	status  func() copilot.Status
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub snapshotting store and status for new clients.
func NewHub(store *transcript.Store, status func() copilot.Status, m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Hub{
		store:   store,
		status:  status,
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

// PublishChange is a transcript.Listener.
func (h *Hub) PublishChange(ch transcript.Change) {
	if ch.Kind == transcript.ChangeCleared {
		h.broadcast(Message{Type: MessageCleared})
		return
	}
	turn, index := ch.Turn, ch.Index
	h.broadcast(Message{Type: MessageTurn, Change: ch.Kind.String(), Index: &index, Turn: &turn})
}

// PublishStatus is a session status listener.
func (h *Hub) PublishStatus(st copilot.Status) {
	h.broadcast(Message{Type: MessageStatus, Status: &st})
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger := logging.WithComponent("hub")
		logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to encode message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logger := logging.WithComponent("hub")
			logger.Warn().Msg("Client too slow, disconnecting")
			h.metrics.RecordLimitExceeded("client_buffer")
			delete(h.clients, c)
			c.close()
		}
	}
}

// register adds c and queues the snapshot under the hub lock, so no update
// is lost or delivered ahead of it.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	snap := Message{Type: MessageSnapshot, Turns: h.store.Turns()}
	if h.status != nil {
		st := h.status()
		snap.Status = &st
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return false
	}
	c.send <- data
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// ServeHTTP upgrades same-origin requests and streams messages until either
// side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, newUpgrader(nil))
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader) {
	logger := logging.WithComponent("hub")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	start := time.Now()
	h.metrics.RecordConnectionStart(eventsConnection)
	logger.Info().Str("remoteAddr", r.RemoteAddr).Int("clients", h.Len()).Msg("Client connected")

	// Reads only detect disconnects.
	go func() {
		defer h.unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	clean := true
	for data := range c.send {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			clean = false
			h.unregister(c)
			break
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	conn.Close()

	h.metrics.RecordConnectionEnd(eventsConnection, clean, time.Since(start).Seconds())
	logger.Info().Int("clients", h.Len()).Msg("Client disconnected")
}
