package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clashsync/internal/domain"
)

// GetMe returns the caller's profile
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetProfile(r.Context(), actor.ID)
	if err != nil {
		h.writeServiceError(w, "get profile", err)
		return
	}
	h.writeSuccess(w, user)
}

// UpdateMe applies profile edits for the caller
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var update domain.ProfileUpdate
	if !h.decodeJSON(w, r, &update) {
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), actor, update)
	if err != nil {
		h.writeServiceError(w, "update profile", err)
		return
	}
	h.writeSuccess(w, user)
}

// SearchUsers finds users by name or TikTok handle prefix
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	users, err := h.users.Search(r.Context(), actor, r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, "search users", err)
		return
	}
	h.writeSuccess(w, users)
}

// GetUser returns another user's profile
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, "get user", err)
		return
	}
	h.writeSuccess(w, user)
}

// BlockUser blocks a user for the caller
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

// UnblockUser lifts a block
func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.users.SetBlocked(r.Context(), actor, chi.URLParam(r, "userID"), blocked); err != nil {
		h.writeServiceError(w, "set blocked", err)
		return
	}
	h.writeSuccess(w, map[string]bool{"blocked": blocked})
}

// MuteThread mutes notifications for a thread
func (h *Handler) MuteThread(w http.ResponseWriter, r *http.Request) {
	h.setMuted(w, r, true)
}

// UnmuteThread unmutes a thread
func (h *Handler) UnmuteThread(w http.ResponseWriter, r *http.Request) {
	h.setMuted(w, r, false)
}

func (h *Handler) setMuted(w http.ResponseWriter, r *http.Request, muted bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.users.SetMuted(r.Context(), actor, chi.URLParam(r, "threadID"), muted); err != nil {
		h.writeServiceError(w, "set muted", err)
		return
	}
	h.writeSuccess(w, map[string]bool{"muted": muted})
}

// AdminListUsers returns every user
func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	users, err := h.users.ListUsers(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, "list users", err)
		return
	}
	h.writeSuccess(w, users)
}

// AdminUpdateUser sets a user's role and diamond balance
func (h *Handler) AdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var update domain.AdminUserUpdate
	if !h.decodeJSON(w, r, &update) {
		return
	}

	user, err := h.users.AdminUpdate(r.Context(), actor, chi.URLParam(r, "userID"), update)
	if err != nil {
		h.writeServiceError(w, "admin update user", err)
		return
	}
	h.writeSuccess(w, user)
}
