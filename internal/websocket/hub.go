package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Presence records which users hold open connections
type Presence interface {
	Touch(ctx context.Context, userID string, ttl time.Duration) error
	Remove(ctx context.Context, userID string) error
}

// HubConfig holds connection settings for the hub
type HubConfig struct {
	AllowedOrigins []string
	PresenceTTL    time.Duration
}

// Hub maintains the set of active clients and routes topic messages to them
type Hub struct {
	// Subscribed clients by topic
	topics map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Open connection count per user
	userConns map[string]int

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages to route
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	presence    Presence
	presenceTTL time.Duration
	upgrader    websocket.Upgrader

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	topic  string
}

// NewHub creates a new Hub. presence may be nil.
func NewHub(cfg HubConfig, presence Presence, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = 90 * time.Second
	}
	h := &Hub{
		topics:      make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		userConns:   make(map[string]int),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		presence:    presence,
		presenceTTL: cfg.PresenceTTL,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// originChecker allows requests without an Origin header and those whose
// origin is listed. A "*" entry allows every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")

	// Refresh presence well before keys expire
	refresh := time.NewTicker(h.presenceTTL / 3)
	defer refresh.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.userConns[client.userID]++
			first := h.userConns[client.userID] == 1
			h.mu.Unlock()
			if first {
				go h.touchPresence(client.userID)
			}
			h.logger.Debug("client registered", "client_id", client.id, "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			last := false
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all topic subscriptions
				for topic, clients := range h.topics {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.topics, topic)
						}
					}
				}
				h.userConns[client.userID]--
				if h.userConns[client.userID] <= 0 {
					delete(h.userConns, client.userID)
					last = true
				}
				close(client.send)
			}
			h.mu.Unlock()
			if last {
				go h.removePresence(client.userID)
			}
			h.logger.Debug("client unregistered", "client_id", client.id, "user_id", client.userID)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.allClients[req.client]; ok {
				if _, ok := h.topics[req.topic]; !ok {
					h.topics[req.topic] = make(map[*Client]bool)
				}
				h.topics[req.topic][req.client] = true
				req.client.enqueue(&Message{Type: MessageTypeSubscribed, Topic: req.topic, Timestamp: time.Now()})
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "topic", req.topic)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.topics[req.topic]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.topics, req.topic)
				}
			}
			if _, ok := h.allClients[req.client]; ok {
				req.client.enqueue(&Message{Type: MessageTypeUnsubscribed, Topic: req.topic, Timestamp: time.Now()})
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "topic", req.topic)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-refresh.C:
			h.mu.RLock()
			users := make([]string, 0, len(h.userConns))
			for userID := range h.userConns {
				users = append(users, userID)
			}
			h.mu.RUnlock()
			if len(users) > 0 {
				go h.touchPresence(users...)
			}
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) touchPresence(userIDs ...string) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	defer cancel()
	for _, id := range userIDs {
		if err := h.presence.Touch(ctx, id, h.presenceTTL); err != nil {
			h.logger.Warn("failed to refresh presence", "user_id", id, "error", err)
		}
	}
}

func (h *Hub) removePresence(userID string) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.presence.Remove(ctx, userID); err != nil {
		h.logger.Warn("failed to clear presence", "user_id", userID, "error", err)
	}
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	// If message has a topic, only send to subscribed clients
	if message.Topic != "" {
		for client := range h.topics[message.Topic] {
			client.sendRaw(data)
		}
		return
	}

	// Broadcast to all clients
	for client := range h.allClients {
		client.sendRaw(data)
	}
}

// Publish queues a message for every subscriber of topic
func (h *Hub) Publish(topic, messageType string, data any) {
	message := &Message{
		Type:      messageType,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "topic", topic, "type", messageType)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a topic
func (h *Hub) Subscribe(client *Client, topic string) {
	select {
	case h.subscribe <- &subscriptionRequest{client: client, topic: topic}:
	case <-h.ctx.Done():
	}
}

// Unsubscribe removes a client from a topic
func (h *Hub) Unsubscribe(client *Client, topic string) {
	select {
	case h.unsubscribe <- &subscriptionRequest{client: client, topic: topic}:
	case <-h.ctx.Done():
	}
}

// GetSubscriberCount returns the number of subscribers for a topic
func (h *Hub) GetSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// IsConnected reports whether userID holds at least one connection
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userConns[userID] > 0
}
