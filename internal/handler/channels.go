package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clashsync/internal/domain"
)

type postChatMessageRequest struct {
	Text string `json:"text"`
}

// ListChannels returns all community channels
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.ListChannels(r.Context())
	if err != nil {
		h.writeServiceError(w, "list channels", err)
		return
	}
	h.writeSuccess(w, channels)
}

// CreateChannel creates a community channel
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req domain.CreateChannelRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	channel, err := h.channels.CreateChannel(r.Context(), actor, req)
	if err != nil {
		h.writeServiceError(w, "create channel", err)
		return
	}
	h.writeCreated(w, channel)
}

// ListChatMessages returns the latest messages of a channel
func (h *Handler) ListChatMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.channels.ListMessages(r.Context(), chi.URLParam(r, "channelID"), queryInt(r, "limit", 0))
	if err != nil {
		h.writeServiceError(w, "list chat messages", err)
		return
	}
	h.writeSuccess(w, messages)
}

// PostChatMessage posts to a channel
func (h *Handler) PostChatMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req postChatMessageRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.channels.PostMessage(r.Context(), actor, chi.URLParam(r, "channelID"), req.Text)
	if err != nil {
		h.writeServiceError(w, "post chat message", err)
		return
	}
	h.writeCreated(w, msg)
}
