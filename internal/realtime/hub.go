package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/robjohncolson/statrelay/pkg/logger"
	"github.com/robjohncolson/statrelay/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 << 10 // control frames only

	defaultBufferSize = 64
)

// Message is a JSON payload fanned out to stream subscribers.
type Message struct {
	Stream string `json:"stream"`
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub coordinates best-effort fan-out of write events to subscribed clients.
// Delivery is advisory: a dropped message only delays a client until its next
// cached read.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*connection]struct{}
	upgrader      websocket.Upgrader
	log           *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Quiz clients connect from school-managed origins; reads are public.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the HTTP connection and registers the client with the
// provided initial streams. Further subscriptions arrive as control frames.
func (h *Hub) Serve(username string, streams []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := &connection{
		hub:      h,
		socket:   conn,
		username: username,
		send:     make(chan Message, defaultBufferSize),
		streams:  make(map[string]struct{}),
	}
	h.subscribe(client, streams)
	metrics.RealtimeConnections.Inc()

	go client.writeLoop()
	client.readLoop()
}

// Broadcast delivers a message to every subscriber of the stream.
func (h *Hub) Broadcast(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.subscriptions[stream] {
		select {
		case client.send <- message:
		default:
			// Slow consumer; drop it rather than blocking the fan-out.
			// close() re-acquires the hub lock, so it must run outside it.
			h.log.Warn("dropping backpressure client", zap.String("username", client.username))
			go client.close()
		}
	}
}

func (h *Hub) subscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, exists := client.streams[stream]; exists {
			continue
		}

		if h.subscriptions[stream] == nil {
			h.subscriptions[stream] = make(map[*connection]struct{})
		}
		client.streams[stream] = struct{}{}
		h.subscriptions[stream][client] = struct{}{}
	}
}

func (h *Hub) unsubscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range streams {
		h.removeSubscriptionLocked(client, normalizeStream(stream))
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range client.streams {
		h.removeSubscriptionLocked(client, stream)
	}
}

func (h *Hub) removeSubscriptionLocked(client *connection, stream string) {
	if stream == "" {
		return
	}

	clients, ok := h.subscriptions[stream]
	if !ok {
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(h.subscriptions, stream)
	}
	delete(client.streams, stream)
}

// SubscriberCount reports the number of connections on a stream.
func (h *Hub) SubscriberCount(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[normalizeStream(stream)])
}

type connection struct {
	hub      *Hub
	socket   *websocket.Conn
	username string
	streams  map[string]struct{}
	send     chan Message
	once     sync.Once
}

func (c *connection) close() {
	// send stays open so concurrent broadcasts never panic; writeLoop exits
	// via the socket write error instead.
	c.once.Do(func() {
		c.hub.unregister(c)
		metrics.RealtimeConnections.Dec()
		_ = c.socket.Close()
	})
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.String("username", c.username), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			select {
			case c.send <- Message{Event: "pong"}:
			default:
			}
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}
