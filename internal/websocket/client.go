package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clashsync/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// Client represents a WebSocket client connection for one signed-in user
type Client struct {
	id      string
	userID  string
	isAdmin bool
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	logger  *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, user *domain.User, logger *slog.Logger) *Client {
	return &Client{
		id:      uuid.New().String(),
		userID:  user.ID,
		isAdmin: user.IsAdmin(),
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		logger:  logger,
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		// Parse client message
		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.logger.Warn("invalid message format", "error", err)
			c.sendError("invalid message format")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// handleMessage processes incoming client messages
func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.Topic == "" {
			c.sendError("topic required for subscribe")
			return
		}
		if err := authorizeTopic(c.userID, c.isAdmin, msg.Topic); err != nil {
			c.logger.Debug("subscription denied", "client_id", c.id, "topic", msg.Topic, "error", err)
			c.sendError("subscription denied: " + err.Error())
			return
		}
		c.hub.Subscribe(c, msg.Topic)

	case MessageTypeUnsubscribe:
		if msg.Topic != "" {
			c.hub.Unsubscribe(c, msg.Topic)
		}

	case MessageTypePing:
		c.enqueue(&Message{Type: MessageTypePong, Timestamp: time.Now()})

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame so clients can decode each directly
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendRaw queues an encoded message, dropping it if the buffer is full
func (c *Client) sendRaw(data []byte) {
	select {
	case c.send <- data:
	default:
		// Client's buffer is full, skip
		c.logger.Warn("client buffer full, skipping", "client_id", c.id)
	}
}

// enqueue encodes and queues a message for this client only
func (c *Client) enqueue(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}
	c.sendRaw(data)
}

// sendError sends an error message to the client
func (c *Client) sendError(errMsg string) {
	c.enqueue(&Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": errMsg},
		Timestamp: time.Now(),
	})
}

// ServeWs upgrades an authenticated request and attaches the connection to
// the hub.
func ServeWs(hub *Hub, user *domain.User, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, user, logger)
	hub.Register(client)

	// Start client goroutines
	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id, "user_id", user.ID)
}
