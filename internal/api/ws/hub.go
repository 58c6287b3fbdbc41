package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from another origin
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	// optional filter on dto.WSEvent.Type
	eventType string
}

type message struct {
	eventType string
	data      []byte
}

// Hub maintains active WebSocket clients and broadcasts alert and detection events.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop until ctx is cancelled. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "filter", client.eventType)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.eventType != "" && client.eventType != msg.eventType {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Client buffer full, disconnect
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		observability.WSConnections.Dec()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues event for every matching client. It drops the event when
// the hub is backed up rather than stall the caller.
func (h *Hub) Broadcast(event dto.WSEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{eventType: event.Type, data: data}:
	default:
		slog.Warn("ws broadcast queue full, dropping event", "type", event.Type)
	}
}

// PublishAlert implements alert.Publisher.
func (h *Hub) PublishAlert(_ context.Context, ev alert.Event) error {
	a := ev.Alert
	h.Broadcast(dto.WSEvent{
		Type:   dto.WSTypeAlert,
		Kind:   string(ev.Kind),
		Camera: a.Camera,
		Alert:  &a,
	})
	return nil
}

// PublishDetections forwards a frame's detections to the live feed.
func (h *Hub) PublishDetections(_ context.Context, task models.DetectionTask) error {
	h.Broadcast(dto.WSEvent{
		Type:       dto.WSTypeDetection,
		Camera:     task.Camera,
		Detections: task.Detections,
		Timestamp:  task.Timestamp.UTC().Format(time.RFC3339),
	})
	return nil
}

// HandleWS handles WebSocket upgrade requests. ?type=alert or ?type=detection
// narrows the feed.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan []byte, 64),
		eventType: c.Query("type"),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reading detects disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
