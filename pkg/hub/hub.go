package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	// Registered clients, owned by Run
	clients map[*Client]bool

	broadcast  chan Message
	seed       chan Message
	register   chan *Client
	unregister chan *Client

	// retain keeps the last message and replays it to new clients, so a
	// late subscriber sees the current state without waiting for a change.
	retain bool
	last   *Message

	count   atomic.Int32
	running atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithRetain replays the most recent message to newly connected clients.
func WithRetain() Option {
	return func(h *Hub) { h.retain = true }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// New creates a new Hub.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		seed:       make(chan Message, 1),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub", "hub", name)
	return h
}

// Run starts the hub's main loop and blocks until ctx is done.
// All clients are disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.count.Store(0)
		h.running.Store(false)
		h.once.Do(func() { close(h.done) })
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			if h.retain && h.last != nil {
				client.send <- *h.last
			}
			n := h.count.Add(1)
			h.logger.Debug("client connected", "clients", n)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Add(-1)
			}
			h.logger.Debug("client disconnected", "clients", h.count.Load())

		case message := <-h.seed:
			if h.last != nil {
				h.logger.Debug("stale seed ignored")
				continue
			}
			h.last = &message
			h.deliver(message)

		case message := <-h.broadcast:
			if h.retain {
				m := message
				h.last = &m
			}
			h.deliver(message)
		}
	}
}

func (h *Hub) deliver(message Message) {
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Too slow: drop the client rather than block everyone.
			close(client.send)
			delete(h.clients, client)
			h.count.Add(-1)
			h.logger.Warn("dropped slow client")
		}
	}
}

// Broadcast sends a message to all connected clients. Messages are dropped
// when the broadcast queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// SeedJSON sets the retained message only if nothing has been broadcast
// yet, so a snapshot taken before a newer broadcast never replaces it.
func (h *Hub) SeedJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.seed <- NewJSONMessage(data):
	default:
		h.logger.Debug("seed already pending, dropping")
	}
	return nil
}

// BroadcastJSON encodes and broadcasts a JSON message.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts binary data such as JPEG frames.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// IsRunning returns whether the hub loop is running.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
