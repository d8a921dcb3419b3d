package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clashsync/internal/domain"
	authmw "github.com/clashsync/internal/handler/middleware"
	"github.com/clashsync/internal/websocket"
)

// ReadyCheck reports whether a dependency is reachable
type ReadyCheck func(ctx context.Context) error

// Services groups the application services the API exposes
type Services struct {
	Users       UserAPI
	Battles     BattleAPI
	Threads     ThreadAPI
	Channels    ChannelAPI
	Leaderboard LeaderboardAPI
}

// Handler provides HTTP handlers for the ClashSync API
type Handler struct {
	users       UserAPI
	battles     BattleAPI
	threads     ThreadAPI
	channels    ChannelAPI
	leaderboard LeaderboardAPI
	auth        *authmw.Authenticator
	hub         *websocket.Hub
	ready       map[string]ReadyCheck
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler. ready maps dependency names to
// their readiness probes.
func NewHandler(
	svc Services,
	auth *authmw.Authenticator,
	hub *websocket.Hub,
	ready map[string]ReadyCheck,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		users:       svc.Users,
		battles:     svc.Battles,
		threads:     svc.Threads,
		channels:    svc.Channels,
		leaderboard: svc.Leaderboard,
		auth:        auth,
		hub:         hub,
		ready:       ready,
		logger:      logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint, authenticated by the token query parameter
	r.With(h.auth.Middleware).Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(h.auth.Middleware)

		r.Route("/me", func(r chi.Router) {
			r.Get("/", h.GetMe)
			r.Patch("/", h.UpdateMe)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/search", h.SearchUsers)
			r.Get("/{userID}", h.GetUser)
			r.Put("/{userID}/block", h.BlockUser)
			r.Delete("/{userID}/block", h.UnblockUser)
		})

		r.Route("/threads", func(r chi.Router) {
			r.Post("/", h.FindOrCreateThread)
			r.Get("/", h.ListThreads)

			r.Route("/{threadID}", func(r chi.Router) {
				r.Get("/", h.GetThread)
				r.Get("/messages", h.ListMessages)
				r.Post("/messages", h.SendMessage)
				r.Get("/typing", h.GetTyping)
				r.Post("/typing", h.SetTyping)
				r.Post("/read", h.MarkRead)
				r.Put("/mute", h.MuteThread)
				r.Delete("/mute", h.UnmuteThread)
			})
		})

		r.Route("/battles", func(r chi.Router) {
			r.Post("/", h.RequestBattle)
			r.Get("/open", h.ListOpenBattles)
			r.Get("/upcoming", h.ListUpcomingBattles)
			r.Get("/mine", h.ListMyBattles)
			r.Get("/incoming", h.ListIncomingRequests)

			r.Route("/{battleID}", func(r chi.Router) {
				r.Get("/", h.GetBattle)
				r.Post("/accept", h.AcceptBattle)
				r.Post("/decline", h.DeclineBattle)
				r.Post("/start", h.StartBattle)
				r.Post("/complete", h.CompleteBattle)
				r.Post("/modifications", h.SubmitModification)
			})
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", h.ListChannels)
			r.Post("/", h.CreateChannel)
			r.Get("/{channelID}/messages", h.ListChatMessages)
			r.Post("/{channelID}/messages", h.PostChatMessage)
		})

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/top", h.GetTop)
			r.Get("/stats", h.GetStats)
			r.Get("/users/{userID}", h.GetUserRank)
			r.Get("/users/{userID}/around", h.GetAroundUser)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authmw.RequireAdmin)

			r.Get("/users", h.AdminListUsers)
			r.Patch("/users/{userID}", h.AdminUpdateUser)

			r.Get("/battles", h.AdminListBattles)
			r.Patch("/battles/{battleID}", h.AdminUpdateBattle)
			r.Delete("/battles/{battleID}", h.AdminDeleteBattle)

			r.Get("/modifications", h.AdminListModifications)
			r.Post("/modifications/{modificationID}/approve", h.AdminApproveModification)
			r.Post("/modifications/{modificationID}/deny", h.AdminDenyModification)

			r.Put("/threads/{threadID}/flag", h.AdminFlagThread)

			r.Post("/diamonds", h.AdminAwardDiamonds)
			r.Post("/diamonds/batch", h.AdminAwardDiamondsBatch)

			// WebSocket info endpoint
			r.Get("/ws/stats", h.GetWebSocketStats)
		})
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeCreated writes a 201 JSON response
func (h *Handler) writeCreated(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps a service error to its HTTP status. Unknown errors
// are logged and hidden behind a generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeError(w, http.StatusUnauthorized, err)
	case domain.IsForbiddenError(err):
		h.writeError(w, http.StatusForbidden, err)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// decodeJSON reads the request body into v
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return false
	}
	return true
}

// actor returns the authenticated caller
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user, ok := authmw.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return nil, false
	}
	return user, true
}

// queryInt parses a positive integer query parameter, falling back to def
func queryInt(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// queryTime parses an RFC 3339 query parameter. A missing value yields nil.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, domain.ErrInvalidRequest
	}
	return &t, nil
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := h.actor(w, r)
	if !ok {
		return
	}
	websocket.ServeWs(h.hub, user, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"total_connections":       h.hub.GetTotalConnections(),
		"leaderboard_subscribers": h.hub.GetSubscriberCount(websocket.TopicLeaderboard),
		"battle_subscribers":      h.hub.GetSubscriberCount(websocket.TopicBattles),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck probes every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.ready)+1)
	healthy := true
	for name, check := range h.ready {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			status[name] = "unavailable"
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		status["status"] = "not ready"
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{Success: false, Data: status, Error: "dependencies unavailable"})
		return
	}
	status["status"] = "ready"
	h.writeSuccess(w, status)
}
