package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clashsync/internal/domain"
)

// SubmitModification proposes changes to a battle the caller takes part in
func (s *BattleService) SubmitModification(ctx context.Context, actor *domain.User, battleID string, req domain.SubmitModificationRequest) (*domain.ModificationRequest, error) {
	req.ProposedChanges = strings.TrimSpace(req.ProposedChanges)
	if req.ProposedChanges == "" && req.Patch.Empty() {
		return nil, fmt.Errorf("%w: proposed_changes or patch required", domain.ErrInvalidRequest)
	}
	if err := req.Patch.Validate(); err != nil {
		return nil, err
	}

	battle, err := s.battles.GetBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !battle.IsParticipant(actor.ID) {
		return nil, domain.ErrForbidden
	}

	mod := &domain.ModificationRequest{
		ID:               uuid.NewString(),
		BattleID:         battle.ID,
		RequestingUserID: actor.ID,
		ProposedChanges:  req.ProposedChanges,
		Patch:            req.Patch,
		Status:           domain.ModificationPending,
		CreatedAt:        s.now(),
	}
	if err := s.battles.CreateModification(ctx, mod); err != nil {
		return nil, err
	}

	s.logger.Info("modification requested", "modification_id", mod.ID, "battle_id", battle.ID, "user_id", actor.ID)
	return mod, nil
}

// ListModifications returns modification requests with the given status
func (s *BattleService) ListModifications(ctx context.Context, actor *domain.User, status domain.ModificationStatus) ([]domain.ModificationRequest, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	mods, err := s.battles.ListModifications(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("listing modifications: %w", err)
	}
	if mods == nil {
		mods = []domain.ModificationRequest{}
	}
	return mods, nil
}

// ApproveModification applies a pending request's patch to its battle. An
// admin may pass an edited patch that replaces the proposed one.
func (s *BattleService) ApproveModification(ctx context.Context, actor *domain.User, id string, edited *domain.BattlePatch) (*domain.Battle, error) {
	mod, err := s.pendingModification(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	patch := mod.Patch
	if edited != nil {
		patch = *edited
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	battle, err := s.battles.GetBattle(ctx, mod.BattleID)
	if err != nil {
		return nil, err
	}
	patch.Apply(battle)
	battle.UpdatedAt = s.now()

	stampReview(actor, mod, domain.ModificationApproved, patch, battle.UpdatedAt)
	if err := s.battles.ApproveModification(ctx, mod, battle); err != nil {
		return nil, err
	}
	s.logReview(actor, mod)
	s.notifier.NotifyBattle(battle)
	return battle, nil
}

// DenyModification rejects a pending request
func (s *BattleService) DenyModification(ctx context.Context, actor *domain.User, id string) (*domain.ModificationRequest, error) {
	mod, err := s.pendingModification(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.review(ctx, actor, mod, domain.ModificationDenied, mod.Patch); err != nil {
		return nil, err
	}
	return mod, nil
}

func (s *BattleService) pendingModification(ctx context.Context, actor *domain.User, id string) (*domain.ModificationRequest, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	mod, err := s.battles.GetModification(ctx, id)
	if err != nil {
		return nil, err
	}
	if mod.Status != domain.ModificationPending {
		return nil, domain.ErrAlreadyReviewed
	}
	return mod, nil
}

func (s *BattleService) review(ctx context.Context, actor *domain.User, mod *domain.ModificationRequest, status domain.ModificationStatus, patch domain.BattlePatch) error {
	stampReview(actor, mod, status, patch, s.now())
	if err := s.battles.ReviewModification(ctx, mod); err != nil {
		return err
	}
	s.logReview(actor, mod)
	return nil
}

func stampReview(actor *domain.User, mod *domain.ModificationRequest, status domain.ModificationStatus, patch domain.BattlePatch, at time.Time) {
	mod.Status = status
	mod.Patch = patch
	mod.ReviewedBy = actor.ID
	mod.ReviewedAt = &at
}

func (s *BattleService) logReview(actor *domain.User, mod *domain.ModificationRequest) {
	s.logger.Info("modification reviewed",
		"modification_id", mod.ID,
		"battle_id", mod.BattleID,
		"status", mod.Status,
		"admin_id", actor.ID,
	)
}
