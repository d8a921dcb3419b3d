package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clashsync/internal/domain"
)

// RequestBattle creates a Direct or Open battle request
func (h *Handler) RequestBattle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req domain.CreateBattleRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	battle, err := h.battles.RequestBattle(r.Context(), actor, req)
	if err != nil {
		h.writeServiceError(w, "request battle", err)
		return
	}
	h.writeCreated(w, battle)
}

// GetBattle returns a battle by ID
func (h *Handler) GetBattle(w http.ResponseWriter, r *http.Request) {
	battle, err := h.battles.GetBattle(r.Context(), chi.URLParam(r, "battleID"))
	if err != nil {
		h.writeServiceError(w, "get battle", err)
		return
	}
	h.writeSuccess(w, battle)
}

// ListOpenBattles returns pending open challenges
func (h *Handler) ListOpenBattles(w http.ResponseWriter, r *http.Request) {
	battles, err := h.battles.ListOpenBattles(r.Context())
	if err != nil {
		h.writeServiceError(w, "list open battles", err)
		return
	}
	h.writeSuccess(w, battles)
}

// ListUpcomingBattles returns accepted battles
func (h *Handler) ListUpcomingBattles(w http.ResponseWriter, r *http.Request) {
	battles, err := h.battles.ListUpcoming(r.Context())
	if err != nil {
		h.writeServiceError(w, "list upcoming battles", err)
		return
	}
	h.writeSuccess(w, battles)
}

// ListMyBattles returns battles the caller takes part in
func (h *Handler) ListMyBattles(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	battles, err := h.battles.ListMine(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, "list my battles", err)
		return
	}
	h.writeSuccess(w, battles)
}

// ListIncomingRequests returns pending Direct requests addressed to the
// caller, newest first. Pass the last battle's date_time as before to page.
func (h *Handler) ListIncomingRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	before, err := queryTime(r, "before")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	battles, err := h.battles.ListIncomingRequests(r.Context(), actor, before)
	if err != nil {
		h.writeServiceError(w, "list incoming requests", err)
		return
	}
	h.writeSuccess(w, battles)
}

type battleTransition func(ctx context.Context, actor *domain.User, id string) (*domain.Battle, error)

func (h *Handler) transitionBattle(w http.ResponseWriter, r *http.Request, op string, fn battleTransition) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	battle, err := fn(r.Context(), actor, chi.URLParam(r, "battleID"))
	if err != nil {
		h.writeServiceError(w, op, err)
		return
	}
	h.writeSuccess(w, battle)
}

// AcceptBattle accepts a pending battle
func (h *Handler) AcceptBattle(w http.ResponseWriter, r *http.Request) {
	h.transitionBattle(w, r, "accept battle", h.battles.Accept)
}

// DeclineBattle declines or withdraws a pending battle
func (h *Handler) DeclineBattle(w http.ResponseWriter, r *http.Request) {
	h.transitionBattle(w, r, "decline battle", h.battles.Decline)
}

// StartBattle marks an accepted battle live
func (h *Handler) StartBattle(w http.ResponseWriter, r *http.Request) {
	h.transitionBattle(w, r, "start battle", h.battles.Start)
}

// CompleteBattle marks a live battle completed
func (h *Handler) CompleteBattle(w http.ResponseWriter, r *http.Request) {
	h.transitionBattle(w, r, "complete battle", h.battles.Complete)
}

// SubmitModification proposes changes to a battle
func (h *Handler) SubmitModification(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req domain.SubmitModificationRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	mod, err := h.battles.SubmitModification(r.Context(), actor, chi.URLParam(r, "battleID"), req)
	if err != nil {
		h.writeServiceError(w, "submit modification", err)
		return
	}
	h.writeCreated(w, mod)
}

// AdminListBattles lists battles filtered by query parameters
func (h *Handler) AdminListBattles(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := domain.BattleFilter{
		Status:        domain.BattleStatus(q.Get("status")),
		RequestType:   domain.RequestType(q.Get("request_type")),
		ParticipantID: q.Get("participant_id"),
		Limit:         queryInt(r, "limit", 0),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	battles, err := h.battles.ListAll(r.Context(), actor, filter)
	if err != nil {
		h.writeServiceError(w, "list battles", err)
		return
	}
	h.writeSuccess(w, battles)
}

// AdminUpdateBattle edits a battle's schedule, mode or status
func (h *Handler) AdminUpdateBattle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var patch domain.BattlePatch
	if !h.decodeJSON(w, r, &patch) {
		return
	}

	battle, err := h.battles.AdminUpdate(r.Context(), actor, chi.URLParam(r, "battleID"), patch)
	if err != nil {
		h.writeServiceError(w, "admin update battle", err)
		return
	}
	h.writeSuccess(w, battle)
}

// AdminDeleteBattle removes a battle that is no longer pending
func (h *Handler) AdminDeleteBattle(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	if err := h.battles.AdminDelete(r.Context(), actor, chi.URLParam(r, "battleID")); err != nil {
		h.writeServiceError(w, "admin delete battle", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// AdminListModifications lists modification requests, optionally by status
func (h *Handler) AdminListModifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	status := domain.ModificationStatus(r.URL.Query().Get("status"))
	mods, err := h.battles.ListModifications(r.Context(), actor, status)
	if err != nil {
		h.writeServiceError(w, "list modifications", err)
		return
	}
	h.writeSuccess(w, mods)
}

// AdminApproveModification applies a modification request. An optional
// body overrides the proposed patch.
func (h *Handler) AdminApproveModification(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var edited *domain.BattlePatch
	var patch domain.BattlePatch
	switch err := json.NewDecoder(r.Body).Decode(&patch); {
	case err == nil:
		edited = &patch
	case errors.Is(err, io.EOF):
	default:
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	battle, err := h.battles.ApproveModification(r.Context(), actor, chi.URLParam(r, "modificationID"), edited)
	if err != nil {
		h.writeServiceError(w, "approve modification", err)
		return
	}
	h.writeSuccess(w, battle)
}

// AdminDenyModification rejects a modification request
func (h *Handler) AdminDenyModification(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	mod, err := h.battles.DenyModification(r.Context(), actor, chi.URLParam(r, "modificationID"))
	if err != nil {
		h.writeServiceError(w, "deny modification", err)
		return
	}
	h.writeSuccess(w, mod)
}
