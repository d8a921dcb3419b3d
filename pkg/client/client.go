// Package client is a Go client for the ClashSync API. It keeps a local
// replica of the caller's threads and messages that reflects sends
// immediately and reconciles with the server's realtime stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clashsync/internal/domain"
	"github.com/clashsync/internal/replica"
	ws "github.com/clashsync/internal/websocket"
)

// APIError is a non-success response from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clashsync: %d %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type event struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Client talks to one ClashSync server on behalf of one user
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
	logger  *slog.Logger

	// Threads holds the caller's inbox
	Threads *replica.Store[*domain.Thread]

	mu       sync.Mutex
	messages map[string]*replica.Store[*domain.Message]

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// New creates a client for the server at baseURL authenticating with token
func New(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     &http.Client{Timeout: 15 * time.Second},
		dialer:   websocket.DefaultDialer,
		logger:   logger,
		Threads:  replica.New(threadKey, (*domain.Thread).Version),
		messages: make(map[string]*replica.Store[*domain.Message]),
	}
}

func threadKey(t *domain.Thread) string { return t.ID }
func messageKey(m *domain.Message) string { return m.ID }

// Messages returns the replica of a thread's messages
func (c *Client) Messages(threadID string) *replica.Store[*domain.Message] {
	c.mu.Lock()
	defer c.mu.Unlock()
	store, ok := c.messages[threadID]
	if !ok {
		store = replica.New(messageKey, (*domain.Message).Version)
		c.messages[threadID] = store
	}
	return store
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, &payload)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
	}
	return nil
}

// Me returns the caller's profile
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindOrCreateThread opens the caller's thread with otherID
func (c *Client) FindOrCreateThread(ctx context.Context, otherID string) (*domain.Thread, error) {
	var thread domain.Thread
	body := map[string]string{"other_user_id": otherID}
	if err := c.do(ctx, http.MethodPost, "/threads", body, &thread); err != nil {
		return nil, err
	}
	c.Threads.Confirm(&thread)
	return &thread, nil
}

// RefreshThreads reloads the inbox from the server
func (c *Client) RefreshThreads(ctx context.Context) error {
	var threads []*domain.Thread
	if err := c.do(ctx, http.MethodGet, "/threads", nil, &threads); err != nil {
		return err
	}
	c.Threads.ApplySnapshot(threads)
	return nil
}

// LoadMessages fetches the latest page of a thread into its replica
func (c *Client) LoadMessages(ctx context.Context, threadID string) (*domain.MessagePage, error) {
	var page domain.MessagePage
	if err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/messages", nil, &page); err != nil {
		return nil, err
	}
	store := c.Messages(threadID)
	for i := range page.Messages {
		store.Confirm(&page.Messages[i])
	}
	return &page, nil
}

// SendMessage shows the message locally at once, then posts it. On failure
// the local copy and the thread preview are rolled back.
func (c *Client) SendMessage(ctx context.Context, me *domain.User, threadID string, req domain.SendMessageRequest) (*domain.Message, error) {
	now := time.Now().UTC()
	tempID := "local-" + uuid.NewString()
	if req.ContentType == "" {
		req.ContentType = domain.ContentTypeText
	}

	messages := c.Messages(threadID)
	rollbackMsg := messages.Optimistic(&domain.Message{
		ID:            tempID,
		ThreadID:      threadID,
		SenderID:      me.ID,
		SenderProfile: me.Summary(),
		Content:       req.Content,
		ContentType:   req.ContentType,
		BattleID:      req.BattleID,
		BattleMode:    req.BattleMode,
		Timestamp:     now,
		ReadBy:        []string{},
	})

	rollbackThread := c.previewThread(threadID, &domain.LastMessage{
		ID:          tempID,
		SenderID:    me.ID,
		Content:     req.Content,
		ContentType: req.ContentType,
		Timestamp:   now,
	})

	var msg domain.Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", req, &msg); err != nil {
		rollbackMsg()
		rollbackThread()
		return nil, err
	}
	messages.Resolve(tempID, &msg)

	// The store keeps microsecond precision.
	stamp := msg.Timestamp.Truncate(time.Microsecond)
	if pushed, ok := c.Threads.Confirmed(threadID); ok && !pushed.Version().Before(stamp) {
		// the thread update already arrived
		rollbackThread()
		return &msg, nil
	}

	// Re-stamp the preview with the server time so the pushed thread update
	// replaces it.
	c.previewThread(threadID, &domain.LastMessage{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		Content:     msg.Content,
		ContentType: msg.ContentType,
		Timestamp:   stamp,
	})
	return &msg, nil
}

// previewThread overlays last on the cached thread, if any
func (c *Client) previewThread(threadID string, last *domain.LastMessage) (rollback func()) {
	current, ok := c.Threads.Get(threadID)
	if !ok {
		return func() {}
	}
	preview := *current
	preview.LastMessage = last
	preview.UpdatedAt = last.Timestamp
	return c.Threads.Optimistic(&preview)
}

// Connect opens the realtime stream and subscribes to the caller's topic
func (c *Client) Connect(ctx context.Context, userID string) error {
	wsURL, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	q := wsURL.Query()
	q.Set("token", c.token)
	wsURL.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing websocket: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	return c.Subscribe(ws.UserTopic(userID))
}

// Subscribe adds a topic to the realtime stream
func (c *Client) Subscribe(topic string) error {
	return c.send(ws.ClientMessage{Type: ws.MessageTypeSubscribe, Topic: topic})
}

// Watch subscribes to a thread's messages and typing updates
func (c *Client) Watch(threadID string) error {
	return c.Subscribe(ws.ThreadTopic(threadID))
}

func (c *Client) send(msg ws.ClientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	return c.conn.WriteJSON(msg)
}

// Listen applies realtime events to the replicas until the connection
// closes or ctx is cancelled.
func (c *Client) Listen(ctx context.Context) error {
	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading event: %w", err)
		}
		c.apply(ev)
	}
}

func (c *Client) apply(ev event) {
	switch ev.Type {
	case ws.MessageTypeThreadUpdate:
		var thread domain.Thread
		if err := json.Unmarshal(ev.Data, &thread); err != nil {
			c.logger.Warn("bad thread event", "error", err)
			return
		}
		c.Threads.Confirm(&thread)

	case ws.MessageTypeMessage:
		var msg domain.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			c.logger.Warn("bad message event", "error", err)
			return
		}
		c.Messages(msg.ThreadID).Confirm(&msg)

	case ws.MessageTypeError:
		c.logger.Warn("server rejected request", "data", string(ev.Data))
	}
}

// Close shuts the realtime connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
