package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clashsync/internal/domain"
)

type findOrCreateThreadRequest struct {
	OtherUserID string `json:"other_user_id"`
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// FindOrCreateThread returns the caller's thread with another user
func (h *Handler) FindOrCreateThread(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req findOrCreateThreadRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	thread, err := h.threads.FindOrCreate(r.Context(), actor, req.OtherUserID)
	if err != nil {
		h.writeServiceError(w, "find or create thread", err)
		return
	}
	h.writeSuccess(w, thread)
}

// ListThreads returns the caller's threads, newest first
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	threads, err := h.threads.ListThreads(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, "list threads", err)
		return
	}
	h.writeSuccess(w, threads)
}

// GetThread returns a single thread
func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	thread, err := h.threads.GetThread(r.Context(), actor, chi.URLParam(r, "threadID"))
	if err != nil {
		h.writeServiceError(w, "get thread", err)
		return
	}
	h.writeSuccess(w, thread)
}

// ListMessages returns a page of a thread's messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	before, err := queryTime(r, "before")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var cursor *domain.MessageCursor
	if before != nil {
		cursor = &domain.MessageCursor{Before: *before, BeforeID: r.URL.Query().Get("before_id")}
	}

	page, err := h.threads.ListMessages(r.Context(), actor, chi.URLParam(r, "threadID"), cursor, queryInt(r, "limit", 0))
	if err != nil {
		h.writeServiceError(w, "list messages", err)
		return
	}
	h.writeSuccess(w, page)
}

// SendMessage posts a message to a thread
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req domain.SendMessageRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.threads.SendMessage(r.Context(), actor, chi.URLParam(r, "threadID"), req)
	if err != nil {
		h.writeServiceError(w, "send message", err)
		return
	}
	h.writeCreated(w, msg)
}

// SetTyping updates the caller's typing indicator
func (h *Handler) SetTyping(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req typingRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	typing, err := h.threads.SetTyping(r.Context(), actor, chi.URLParam(r, "threadID"), req.IsTyping)
	if err != nil {
		h.writeServiceError(w, "set typing", err)
		return
	}
	h.writeSuccess(w, typing)
}

// GetTyping returns who is typing in a thread
func (h *Handler) GetTyping(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	typing, err := h.threads.TypingUsers(r.Context(), actor, chi.URLParam(r, "threadID"))
	if err != nil {
		h.writeServiceError(w, "get typing", err)
		return
	}
	h.writeSuccess(w, typing)
}

// MarkRead marks a thread read for the caller
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	marked, err := h.threads.MarkRead(r.Context(), actor, chi.URLParam(r, "threadID"))
	if err != nil {
		h.writeServiceError(w, "mark read", err)
		return
	}
	h.writeSuccess(w, map[string]int64{"marked": marked})
}

// AdminFlagThread sets or clears a moderation flag
func (h *Handler) AdminFlagThread(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var flag domain.FlagRequest
	if !h.decodeJSON(w, r, &flag) {
		return
	}

	thread, err := h.threads.Flag(r.Context(), actor, chi.URLParam(r, "threadID"), flag)
	if err != nil {
		h.writeServiceError(w, "flag thread", err)
		return
	}
	h.writeSuccess(w, thread)
}
