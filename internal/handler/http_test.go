package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clashsync/internal/config"
	"github.com/clashsync/internal/domain"
	authmw "github.com/clashsync/internal/handler/middleware"
	"github.com/clashsync/internal/websocket"
)

const testSecret = "handler-secret"

type directory struct {
	users map[string]*domain.User
}

func (d *directory) EnsureUser(_ context.Context, identity domain.Identity) (*domain.User, error) {
	if u, ok := d.users[identity.UserID]; ok {
		return u, nil
	}
	return nil, domain.ErrInvalidUserID
}

type fakeUsers struct {
	UserAPI
	dir *directory
}

func (f *fakeUsers) GetProfile(_ context.Context, id string) (*domain.User, error) {
	if u, ok := f.dir.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUsers) ListUsers(context.Context, *domain.User) ([]domain.User, error) {
	out := make([]domain.User, 0, len(f.dir.users))
	for _, u := range f.dir.users {
		out = append(out, *u)
	}
	return out, nil
}

type fakeThreads struct {
	ThreadAPI
	lastCursor *domain.MessageCursor
	lastLimit  int
}

func (f *fakeThreads) FindOrCreate(_ context.Context, actor *domain.User, otherID string) (*domain.Thread, error) {
	key, err := domain.NewThreadKey(actor.ID, otherID)
	if err != nil {
		return nil, err
	}
	return &domain.Thread{ID: key.ID, ParticipantIDs: key.Participants()}, nil
}

func (f *fakeThreads) ListMessages(_ context.Context, actor *domain.User, threadID string, cursor *domain.MessageCursor, limit int) (*domain.MessagePage, error) {
	if _, err := domain.ParseThreadID(threadID); err != nil {
		return nil, err
	}
	f.lastCursor = cursor
	f.lastLimit = limit
	return &domain.MessagePage{Messages: []domain.Message{}}, nil
}

type fakeBattles struct {
	BattleAPI
	approved *domain.BattlePatch
}

func (f *fakeBattles) RequestBattle(_ context.Context, actor *domain.User, req domain.CreateBattleRequest) (*domain.Battle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &domain.Battle{ID: "b1", CreatorAID: actor.ID, CreatorBID: req.OpponentID, Status: domain.BattleStatusPending}, nil
}

func (f *fakeBattles) Accept(context.Context, *domain.User, string) (*domain.Battle, error) {
	return nil, fmt.Errorf("updating battle: %w", domain.ErrInvalidTransition)
}

func (f *fakeBattles) ApproveModification(_ context.Context, _ *domain.User, id string, edited *domain.BattlePatch) (*domain.Battle, error) {
	f.approved = edited
	return &domain.Battle{ID: "b1"}, nil
}

type fakeLeaderboard struct {
	LeaderboardAPI
	lastN int
}

func (f *fakeLeaderboard) GetTopN(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	f.lastN = n
	return []domain.LeaderboardEntry{{Rank: 1, UserID: "alice", Diamonds: 10}}, nil
}

type testServer struct {
	srv      *httptest.Server
	threads  *fakeThreads
	battles  *fakeBattles
	board    *fakeLeaderboard
	readyErr error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := &directory{users: map[string]*domain.User{
		"alice": {ID: "alice", FullName: "Alice", Role: domain.RoleCreator},
		"bob":   {ID: "bob", FullName: "Bob", Role: domain.RoleCreator},
		"root":  {ID: "root", FullName: "Root", Role: domain.RoleAdmin},
	}}

	ts := &testServer{
		threads: &fakeThreads{},
		battles: &fakeBattles{},
		board:   &fakeLeaderboard{},
	}
	auth := authmw.NewAuthenticator(&config.AuthConfig{JWTSecret: testSecret}, dir, logger)
	hub := websocket.NewHub(websocket.HubConfig{}, nil, logger)
	ready := map[string]ReadyCheck{
		"postgres": func(context.Context) error { return ts.readyErr },
	}

	h := NewHandler(Services{
		Users:       &fakeUsers{dir: dir},
		Threads:     ts.threads,
		Battles:     ts.battles,
		Leaderboard: ts.board,
	}, auth, hub, ready, logger)

	ts.srv = httptest.NewServer(h.Router())
	t.Cleanup(ts.srv.Close)
	return ts
}

func token(t *testing.T, sub string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, user, body string) (int, APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	status, resp := ts.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)

	status, _ = ts.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, status)

	ts.readyErr = errors.New("connection refused")
	status, resp = ts.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.False(t, resp.Success)
}

func TestAPIRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	status, resp := ts.do(t, http.MethodGet, "/api/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, resp.Success)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/me", "stranger", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, resp = ts.do(t, http.MethodGet, "/api/v1/me", "alice", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", resp.Data.(map[string]any)["id"])
}

func TestFindOrCreateThreadRoutes(t *testing.T) {
	ts := newTestServer(t)

	status, resp := ts.do(t, http.MethodPost, "/api/v1/threads", "bob", `{"other_user_id":"alice"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice_bob", resp.Data.(map[string]any)["id"])

	status, resp = ts.do(t, http.MethodPost, "/api/v1/threads", "bob", `{"other_user_id":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, domain.ErrSelfThread.Error(), resp.Error)

	status, _ = ts.do(t, http.MethodPost, "/api/v1/threads", "bob", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListMessagesParsesPaging(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodGet, "/api/v1/threads/alice_bob/messages?before=2026-01-02T03:04:05Z&before_id=m-7&limit=20", "alice", "")
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, ts.threads.lastCursor)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ts.threads.lastCursor.Before.UTC())
	assert.Equal(t, "m-7", ts.threads.lastCursor.BeforeID)
	assert.Equal(t, 20, ts.threads.lastLimit)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/threads/alice_bob/messages", "alice", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, ts.threads.lastCursor)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/threads/alice_bob/messages?before=yesterday", "alice", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBattleRoutes(t *testing.T) {
	ts := newTestServer(t)

	status, resp := ts.do(t, http.MethodPost, "/api/v1/battles", "alice",
		`{"request_type":"Direct","opponent_id":"bob","date_time":"2026-11-01T20:00:00Z","mode":"Standard"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "b1", resp.Data.(map[string]any)["id"])

	status, resp = ts.do(t, http.MethodPost, "/api/v1/battles/b1/accept", "bob", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "updating battle: "+domain.ErrInvalidTransition.Error(), resp.Error)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodGet, "/api/v1/admin/users", "alice", "")
	assert.Equal(t, http.StatusForbidden, status)

	status, resp := ts.do(t, http.MethodGet, "/api/v1/admin/users", "root", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, resp.Data, 3)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/admin/ws/stats", "root", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestApproveModificationOptionalBody(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodPost, "/api/v1/admin/modifications/m1/approve", "root", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, ts.battles.approved)

	status, _ = ts.do(t, http.MethodPost, "/api/v1/admin/modifications/m1/approve", "root", `{"mode":"Team"}`)
	assert.Equal(t, http.StatusOK, status)
	require.NotNil(t, ts.battles.approved)
	require.NotNil(t, ts.battles.approved.Mode)
	assert.Equal(t, domain.BattleMode("Team"), *ts.battles.approved.Mode)
}

func TestLeaderboardTopPassesLimit(t *testing.T) {
	ts := newTestServer(t)

	status, resp := ts.do(t, http.MethodGet, "/api/v1/leaderboard/top?limit=25", "alice", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 25, ts.board.lastN)
	assert.Len(t, resp.Data, 1)

	ts.do(t, http.MethodGet, "/api/v1/leaderboard/top?limit=-3", "alice", "")
	assert.Equal(t, 0, ts.board.lastN)
}

func TestWriteServiceErrorMapping(t *testing.T) {
	h := &Handler{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidRequest, http.StatusBadRequest},
		{domain.ErrInvalidThreadID, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrNotParticipant, http.StatusForbidden},
		{domain.ErrBlocked, http.StatusForbidden},
		{fmt.Errorf("loading: %w", domain.ErrThreadNotFound), http.StatusNotFound},
		{domain.ErrAlreadyReviewed, http.StatusConflict},
		{domain.ErrChannelExists, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.writeServiceError(rec, "test", tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}

	rec := httptest.NewRecorder()
	h.writeServiceError(rec, "test", errors.New("disk on fire"))
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}
