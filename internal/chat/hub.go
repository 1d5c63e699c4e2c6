// Package chat implements the WebSocket echo/broadcast chat.
package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// welcomeMessage is sent to every client on connect.
const welcomeMessage = "Welcome to the WebSocket chat!"

// incomingMessage is the JSON frame clients send.
type incomingMessage struct {
	Content string `json:"content"`
}

// client wraps a connection with a write lock; gorilla permits only one
// concurrent writer per connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *client) writeText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Hub tracks connected chat clients and relays messages between them.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]bool
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The chat page is served same-origin; cross-origin upgrades
			// are rejected by gorilla's default origin check.
		},
		log: log,
	}
}

// HandleWS upgrades the request and serves the chat protocol: each JSON
// message is echoed back to the sender as a bot reply and broadcast to
// every other client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.register(c)
	h.log.Info("chat client connected", zap.String("remote", conn.RemoteAddr().String()))

	if err := c.writeText(welcomeMessage); err != nil {
		h.drop(c)
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.log.Info("chat client disconnected", zap.String("remote", conn.RemoteAddr().String()))
			h.drop(c)
			return
		}

		var msg incomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.log.Warn("invalid chat message", zap.Error(err))
			if err := c.writeJSON(map[string]string{"error": "Invalid JSON"}); err != nil {
				h.drop(c)
				return
			}
			continue
		}

		content := msg.Content
		if content == "" {
			content = string(raw)
		}

		reply := map[string]string{"bot": fmt.Sprintf("You said: %q", content)}
		if err := c.writeJSON(reply); err != nil {
			h.drop(c)
			return
		}

		h.broadcast(c, map[string]string{"broadcast": content})
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// drop unregisters and closes a client.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}

// broadcast sends v to every client except the sender. Dead connections
// are dropped on write failure.
func (h *Hub) broadcast(sender *client, v any) {
	h.mu.Lock()
	receivers := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c != sender {
			receivers = append(receivers, c)
		}
	}
	h.mu.Unlock()

	for _, c := range receivers {
		if err := c.writeJSON(v); err != nil {
			h.drop(c)
		}
	}
}
