package sink

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"github.com/l7mp/difflow/pkg/dataflow"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is a batch of updates as sent to WebSocket clients.
type Message struct {
	Run     string          `json:"run"`
	Updates []UpdateMessage `json:"updates"`
}

// UpdateMessage is a single update of a Message.
type UpdateMessage struct {
	Data any    `json:"data"`
	Time uint64 `json:"time"`
	Diff int64  `json:"diff"`
}

// connection supports one concurrent reader and one concurrent writer.
type connection struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *connection) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Hub broadcasts messages to the connected WebSocket clients. It is an http.Handler that
// upgrades every request to a WebSocket connection. Messages from clients are ignored; clients
// that cannot keep up are dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*connection]struct{}
	closed  bool
	log     logr.Logger
}

// NewHub creates an empty hub.
func NewHub(logger logr.Logger) *Hub {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Hub{clients: map[*connection]struct{}{}, log: logger.WithName("hub")}
}

// ServeHTTP implements http.Handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.V(2).Info("upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}

	c := &connection{conn: conn}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.V(2).Info("client connected", "remote", r.RemoteAddr)

	// read until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
	h.log.V(2).Info("client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) drop(c *connection) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.conn.Close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends v as JSON to every client.
func (h *Hub) Broadcast(v any) {
	h.mu.Lock()
	clients := make([]*connection, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.send(v); err != nil {
			h.log.V(2).Info("dropping client", "error", err.Error())
			h.drop(c)
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = map[*connection]struct{}{}
	h.mu.Unlock()

	for c := range clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"), time.Now().Add(writeTimeout))
		c.mu.Unlock()
		c.conn.Close()
	}
}

// Broadcaster is a sink that sends every batch to the clients of a hub.
type Broadcaster[T comparable] struct {
	hub *Hub
	run string
}

// NewBroadcaster creates a sink that tags its messages with a run ID.
func NewBroadcaster[T comparable](hub *Hub, run string) *Broadcaster[T] {
	return &Broadcaster[T]{hub: hub, run: run}
}

// Write implements Sink.
func (b *Broadcaster[T]) Write(ctx context.Context, ups []dataflow.Update[T]) error {
	if len(ups) == 0 {
		return ctx.Err()
	}
	msg := Message{Run: b.run, Updates: make([]UpdateMessage, len(ups))}
	for i, u := range ups {
		msg.Updates[i] = UpdateMessage{Data: u.Data, Time: u.Time.Outer(), Diff: u.Diff}
	}
	b.hub.Broadcast(msg)
	return ctx.Err()
}
