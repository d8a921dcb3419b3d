package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clashsync/internal/domain"
)

// GetTop returns the top N users by diamonds
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboard.GetTopN(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.writeServiceError(w, "get top", err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetStats returns leaderboard statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.leaderboard.GetStats(r.Context())
	if err != nil {
		h.writeServiceError(w, "get stats", err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetUserRank returns a user's rank and balance
func (h *Handler) GetUserRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.leaderboard.GetUserRank(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, "get user rank", err)
		return
	}
	h.writeSuccess(w, entry)
}

// GetAroundUser returns users ranked near a user
func (h *Handler) GetAroundUser(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboard.GetAroundUser(r.Context(), chi.URLParam(r, "userID"), queryInt(r, "range", 0))
	if err != nil {
		h.writeServiceError(w, "get around user", err)
		return
	}
	h.writeSuccess(w, entries)
}

// AdminAwardDiamonds adjusts one user's balance
func (h *Handler) AdminAwardDiamonds(w http.ResponseWriter, r *http.Request) {
	var award domain.DiamondAward
	if !h.decodeJSON(w, r, &award) {
		return
	}

	balance, err := h.leaderboard.AwardDiamonds(r.Context(), award)
	if err != nil {
		h.writeServiceError(w, "award diamonds", err)
		return
	}
	h.writeSuccess(w, map[string]any{"user_id": award.UserID, "diamonds": balance})
}

// AdminAwardDiamondsBatch applies many awards at once
func (h *Handler) AdminAwardDiamondsBatch(w http.ResponseWriter, r *http.Request) {
	var batch domain.BatchDiamondAward
	if !h.decodeJSON(w, r, &batch) {
		return
	}

	if len(batch.Awards) == 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	applied, err := h.leaderboard.AwardDiamondsBatch(r.Context(), batch)
	if err != nil {
		h.writeServiceError(w, "award diamonds batch", err)
		return
	}
	h.writeSuccess(w, map[string]any{
		"received": len(batch.Awards),
		"applied":  applied,
	})
}
