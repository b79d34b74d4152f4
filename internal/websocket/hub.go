package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/infrastructure"
)

// Message types pushed to clients
const (
	TypeConnection = "connection"
	TypeStage      = "stage"
	TypeQuality    = "quality"
)

const broadcastBuffer = 256

// Message is the envelope of every push
type Message struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	TraceID   string `json:"trace_id,omitempty"`
}

// HubStats counts hub activity since start
type HubStats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	Dropped          int64 `json:"dropped"`
}

// Hub maintains the set of connected clients and broadcasts to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	stats  HubStats
	logger *slog.Logger

	quit    chan struct{}
	running bool
}

// NewHub creates a hub. Start must be called before clients connect.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in its own goroutine
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.stats.TotalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			ctx := infrastructure.WithTraceID(context.Background(), c.traceID)
			h.logger.InfoContext(ctx, "client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", c.id),
				slog.String("remote_addr", c.remoteAddr),
			)
			if data, err := encode(TypeConnection, map[string]string{"status": "connected", "client_id": c.id}, c.traceID); err == nil {
				select {
				case c.send <- data:
				default:
					h.logger.WarnContext(ctx, "client buffer full on connect", slog.String("client_id", c.id))
				}
			}

		case c := <-h.unregister:
			if h.drop(c) {
				h.logger.Info("client unregistered",
					slog.String("client_id", c.id),
					slog.Duration("connection_duration", time.Since(c.connectedAt)),
				)
			}

		case message := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					slow = append(slow, c)
				}
			}
			sent := len(h.clients) - len(slow)
			h.mu.RUnlock()

			h.mu.Lock()
			h.stats.MessagesSent += int64(sent)
			h.mu.Unlock()
			for _, c := range slow {
				if h.drop(c) {
					h.logger.Warn("client send buffer full, disconnecting", slog.String("client_id", c.id))
				}
			}
		}
	}
}

// drop removes c and closes its send channel once
func (h *Hub) drop(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// Register adds a client. It returns false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Publish queues a message for every client. When the queue is full the
// message is dropped.
func (h *Hub) Publish(ctx context.Context, msgType string, data any) {
	traceID := infrastructure.GetTraceID(ctx)
	payload, err := encode(msgType, data, traceID)
	if err != nil {
		h.logger.ErrorContext(ctx, "encode message failed",
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.mu.Lock()
		h.stats.Dropped++
		h.mu.Unlock()
		h.logger.DebugContext(ctx, "broadcast queue full, message dropped", slog.String("type", msgType))
	}
}

func encode(msgType string, data any, traceID string) ([]byte, error) {
	return json.Marshal(Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TraceID:   traceID,
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.stats
	s.ActiveClients = len(h.clients)
	return s
}

// Stop ends the hub loop and disconnects every client
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
