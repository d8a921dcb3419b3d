package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clashsync/internal/domain"
)

// OpenBattleAnnouncer publishes open battles to the community feed
type OpenBattleAnnouncer interface {
	AnnounceOpenBattle(ctx context.Context, battle *domain.Battle) error
}

// BattleInviter delivers a direct battle request into the participants' thread
type BattleInviter interface {
	SendBattleInvite(ctx context.Context, battle *domain.Battle) error
}

// BattleService manages the battle lifecycle
type BattleService struct {
	battles   BattleStore
	users     UserStore
	announcer OpenBattleAnnouncer
	inviter   BattleInviter
	notifier  Notifier
	pageSize  int
	now       func() time.Time
	logger    *slog.Logger
}

// NewBattleService creates a new battle service
func NewBattleService(
	battles BattleStore,
	users UserStore,
	notifier Notifier,
	pageSize int,
	logger *slog.Logger,
) *BattleService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return &BattleService{
		battles:  battles,
		users:    users,
		notifier: notifier,
		pageSize: pageSize,
		now:      time.Now,
		logger:   logger,
	}
}

// SetAnnouncer attaches the community feed that receives open battles
func (s *BattleService) SetAnnouncer(a OpenBattleAnnouncer) {
	s.announcer = a
}

// SetInviter attaches the direct message delivery for battle requests
func (s *BattleService) SetInviter(i BattleInviter) {
	s.inviter = i
}

// RequestBattle creates a pending battle. Direct requests name an opponent
// and get an inbox record; open requests are announced to the community.
func (s *BattleService) RequestBattle(ctx context.Context, actor *domain.User, req domain.CreateBattleRequest) (*domain.Battle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	battle := &domain.Battle{
		ID:             uuid.NewString(),
		CreatorAID:     actor.ID,
		CreatorAName:   actor.DisplayName(),
		CreatorAAvatar: actor.AvatarURL,
		DateTime:       req.DateTime,
		Mode:           req.Mode,
		Status:         domain.BattleStatusPending,
		RequestType:    req.RequestType,
		RequestedBy:    actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var record *domain.BattleRequestRecord
	if req.RequestType == domain.RequestTypeDirect {
		if req.OpponentID == actor.ID {
			return nil, fmt.Errorf("%w: cannot battle yourself", domain.ErrInvalidRequest)
		}
		opponent, err := s.users.GetUser(ctx, req.OpponentID)
		if err != nil {
			return nil, err
		}
		if actor.HasBlocked(opponent.ID) || opponent.HasBlocked(actor.ID) {
			return nil, domain.ErrBlocked
		}
		battle.SetCreatorB(opponent)

		record = &domain.BattleRequestRecord{
			ID:           uuid.NewString(),
			BattleID:     battle.ID,
			SenderID:     actor.ID,
			SenderName:   battle.CreatorAName,
			SenderAvatar: actor.AvatarURL,
			ReceiverID:   opponent.ID,
			ReceiverName: battle.CreatorBName,
			Mode:         battle.Mode,
			Status:       domain.BattleStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	if err := s.battles.CreateBattle(ctx, battle, record); err != nil {
		return nil, err
	}

	s.logger.Info("battle requested",
		"battle_id", battle.ID,
		"requested_by", actor.ID,
		"request_type", battle.RequestType,
		"opponent_id", battle.CreatorBID,
	)
	s.notifier.NotifyBattle(battle)

	switch battle.RequestType {
	case domain.RequestTypeOpen:
		if s.announcer != nil {
			if err := s.announcer.AnnounceOpenBattle(ctx, battle); err != nil {
				s.logger.Warn("failed to announce open battle", "battle_id", battle.ID, "error", err)
			}
		}
	case domain.RequestTypeDirect:
		if s.inviter != nil {
			if err := s.inviter.SendBattleInvite(ctx, battle); err != nil {
				s.logger.Warn("failed to deliver battle invite", "battle_id", battle.ID, "error", err)
			}
		}
	}

	return battle, nil
}

// GetBattle returns a battle by ID
func (s *BattleService) GetBattle(ctx context.Context, id string) (*domain.Battle, error) {
	return s.battles.GetBattle(ctx, id)
}

// ListIncomingRequests returns pending direct requests addressed to the
// caller, newest scheduled first. before pages through older requests.
func (s *BattleService) ListIncomingRequests(ctx context.Context, actor *domain.User, before *time.Time) ([]domain.Battle, error) {
	return s.list(ctx, domain.BattleFilter{
		Status:      domain.BattleStatusPending,
		RequestType: domain.RequestTypeDirect,
		ReceiverID:  actor.ID,
		Before:      before,
		Limit:       s.pageSize,
	})
}

// ListOpenBattles returns pending open battles anyone may accept
func (s *BattleService) ListOpenBattles(ctx context.Context) ([]domain.Battle, error) {
	return s.list(ctx, domain.BattleFilter{
		Status:      domain.BattleStatusPending,
		RequestType: domain.RequestTypeOpen,
	})
}

// ListUpcoming returns accepted battles
func (s *BattleService) ListUpcoming(ctx context.Context) ([]domain.Battle, error) {
	return s.list(ctx, domain.BattleFilter{Status: domain.BattleStatusAccepted})
}

// ListMine returns every battle the caller takes part in
func (s *BattleService) ListMine(ctx context.Context, actor *domain.User) ([]domain.Battle, error) {
	return s.list(ctx, domain.BattleFilter{ParticipantID: actor.ID})
}

// ListAll returns battles matching filter for the admin panel
func (s *BattleService) ListAll(ctx context.Context, actor *domain.User, filter domain.BattleFilter) ([]domain.Battle, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.list(ctx, filter)
}

func (s *BattleService) list(ctx context.Context, filter domain.BattleFilter) ([]domain.Battle, error) {
	battles, err := s.battles.ListBattles(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing battles: %w", err)
	}
	if battles == nil {
		battles = []domain.Battle{}
	}
	return battles, nil
}

// Accept moves a pending battle to accepted. Direct battles may only be
// accepted by the named opponent; open battles by anyone but the requester,
// who then becomes the opponent.
func (s *BattleService) Accept(ctx context.Context, actor *domain.User, id string) (*domain.Battle, error) {
	return s.transition(ctx, id, domain.BattleStatusAccepted, func(b *domain.Battle) error {
		switch b.RequestType {
		case domain.RequestTypeOpen:
			if actor.ID == b.RequestedBy {
				return fmt.Errorf("%w: cannot accept your own battle", domain.ErrForbidden)
			}
			b.SetCreatorB(actor)
		default:
			if actor.ID != b.CreatorBID {
				return domain.ErrForbidden
			}
		}
		return nil
	})
}

// Decline moves a pending battle to declined. The opponent may decline a
// direct request and the requester may withdraw any request.
func (s *BattleService) Decline(ctx context.Context, actor *domain.User, id string) (*domain.Battle, error) {
	return s.transition(ctx, id, domain.BattleStatusDeclined, func(b *domain.Battle) error {
		if actor.ID == b.RequestedBy {
			return nil
		}
		if b.RequestType == domain.RequestTypeDirect && actor.ID == b.CreatorBID {
			return nil
		}
		return domain.ErrForbidden
	})
}

// Start marks an accepted battle as ongoing
func (s *BattleService) Start(ctx context.Context, actor *domain.User, id string) (*domain.Battle, error) {
	return s.transition(ctx, id, domain.BattleStatusOngoing, participantOrAdmin(actor))
}

// Complete marks an ongoing battle as completed
func (s *BattleService) Complete(ctx context.Context, actor *domain.User, id string) (*domain.Battle, error) {
	return s.transition(ctx, id, domain.BattleStatusCompleted, participantOrAdmin(actor))
}

func participantOrAdmin(actor *domain.User) func(*domain.Battle) error {
	return func(b *domain.Battle) error {
		if b.IsParticipant(actor.ID) || actor.IsAdmin() {
			return nil
		}
		return domain.ErrForbidden
	}
}

// transition loads a battle, checks the move is legal and authorized, and
// writes it conditionally on the status it was read with.
func (s *BattleService) transition(ctx context.Context, id string, to domain.BattleStatus, authorize func(*domain.Battle) error) (*domain.Battle, error) {
	battle, err := s.battles.GetBattle(ctx, id)
	if err != nil {
		return nil, err
	}

	from := battle.Status
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, from, to)
	}
	if err := authorize(battle); err != nil {
		return nil, err
	}

	battle.Status = to
	battle.UpdatedAt = s.now()
	if err := s.battles.UpdateBattleStatus(ctx, battle, from); err != nil {
		return nil, err
	}

	s.logger.Info("battle status changed",
		"battle_id", battle.ID,
		"from", from,
		"to", to,
	)
	s.notifier.NotifyBattle(battle)
	return battle, nil
}

// AdminUpdate applies a patch to any battle without transition checks
func (s *BattleService) AdminUpdate(ctx context.Context, actor *domain.User, id string, patch domain.BattlePatch) (*domain.Battle, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return s.applyPatch(ctx, id, patch)
}

func (s *BattleService) applyPatch(ctx context.Context, id string, patch domain.BattlePatch) (*domain.Battle, error) {
	battle, err := s.battles.GetBattle(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(battle)
	battle.UpdatedAt = s.now()
	if err := s.battles.UpdateBattle(ctx, battle); err != nil {
		return nil, err
	}

	s.notifier.NotifyBattle(battle)
	return battle, nil
}

// AdminDelete removes a battle that is no longer pending
func (s *BattleService) AdminDelete(ctx context.Context, actor *domain.User, id string) error {
	if !actor.IsAdmin() {
		return domain.ErrForbidden
	}

	battle, err := s.battles.GetBattle(ctx, id)
	if err != nil {
		return err
	}
	if battle.Status == domain.BattleStatusPending {
		return domain.ErrBattleNotDeletable
	}

	if err := s.battles.DeleteBattle(ctx, id); err != nil {
		return err
	}
	s.logger.Info("battle deleted", "battle_id", id, "admin_id", actor.ID)
	return nil
}
