package domain

import (
	"fmt"
	"time"
)

// BattleStatus is the lifecycle state of a battle
type BattleStatus string

const (
	BattleStatusPending   BattleStatus = "pending"
	BattleStatusAccepted  BattleStatus = "accepted"
	BattleStatusDeclined  BattleStatus = "declined"
	BattleStatusOngoing   BattleStatus = "ongoing"
	BattleStatusCompleted BattleStatus = "completed"
)

// Valid reports whether s is a known status
func (s BattleStatus) Valid() bool {
	_, ok := battleTransitions[s]
	return ok
}

// battleTransitions lists the statuses reachable from each status
var battleTransitions = map[BattleStatus][]BattleStatus{
	BattleStatusPending:   {BattleStatusAccepted, BattleStatusDeclined},
	BattleStatusAccepted:  {BattleStatusOngoing},
	BattleStatusOngoing:   {BattleStatusCompleted},
	BattleStatusDeclined:  nil,
	BattleStatusCompleted: nil,
}

// CanTransition reports whether a battle may move from s to next
func (s BattleStatus) CanTransition(next BattleStatus) bool {
	for _, allowed := range battleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BattleMode is the format of a battle
type BattleMode string

const (
	BattleModeStandard   BattleMode = "Standard"
	BattleModeDuet       BattleMode = "Duet"
	BattleModeTeam       BattleMode = "Team"
	BattleModeTournament BattleMode = "Tournament"
)

// Valid reports whether m is a known mode
func (m BattleMode) Valid() bool {
	switch m {
	case BattleModeStandard, BattleModeDuet, BattleModeTeam, BattleModeTournament:
		return true
	}
	return false
}

// RequestType distinguishes challenges aimed at one opponent from open ones
type RequestType string

const (
	RequestTypeDirect RequestType = "Direct"
	RequestTypeOpen   RequestType = "Open"
)

// Battle is a scheduled contest between two creators
type Battle struct {
	ID             string       `json:"id"`
	CreatorAID     string       `json:"creator_a_id"`
	CreatorAName   string       `json:"creator_a_name"`
	CreatorAAvatar string       `json:"creator_a_avatar"`
	CreatorBID     string       `json:"creator_b_id,omitempty"`
	CreatorBName   string       `json:"creator_b_name,omitempty"`
	CreatorBAvatar string       `json:"creator_b_avatar,omitempty"`
	DateTime       time.Time    `json:"date_time"`
	Mode           BattleMode   `json:"mode"`
	Status         BattleStatus `json:"status"`
	RequestType    RequestType  `json:"request_type"`
	RequestedBy    string       `json:"requested_by"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// IsParticipant reports whether userID is one of the two creators
func (b *Battle) IsParticipant(userID string) bool {
	return userID != "" && (userID == b.CreatorAID || userID == b.CreatorBID)
}

// SetCreatorB fills the opponent slot from a user profile
func (b *Battle) SetCreatorB(u *User) {
	b.CreatorBID = u.ID
	b.CreatorBName = u.DisplayName()
	b.CreatorBAvatar = u.AvatarURL
}

// BattleRequestRecord mirrors a Direct battle into the receiver's inbox
type BattleRequestRecord struct {
	ID           string       `json:"id"`
	BattleID     string       `json:"battle_id"`
	SenderID     string       `json:"sender_id"`
	SenderName   string       `json:"sender_name"`
	SenderAvatar string       `json:"sender_avatar,omitempty"`
	ReceiverID   string       `json:"receiver_id"`
	ReceiverName string       `json:"receiver_name"`
	Mode         BattleMode   `json:"mode"`
	Status       BattleStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// CreateBattleRequest is the payload for requesting a battle
type CreateBattleRequest struct {
	RequestType RequestType `json:"request_type"`
	OpponentID  string      `json:"opponent_id,omitempty"`
	DateTime    time.Time   `json:"date_time"`
	Mode        BattleMode  `json:"mode"`
}

// Validate checks the request shape
func (r *CreateBattleRequest) Validate() error {
	if r.RequestType == "" {
		r.RequestType = RequestTypeDirect
	}
	if r.Mode == "" {
		r.Mode = BattleModeStandard
	}
	switch r.RequestType {
	case RequestTypeDirect:
		if r.OpponentID == "" {
			return fmt.Errorf("%w: opponent_id required for direct battles", ErrInvalidRequest)
		}
	case RequestTypeOpen:
		r.OpponentID = ""
	default:
		return fmt.Errorf("%w: unknown request type %q", ErrInvalidRequest, r.RequestType)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if r.DateTime.IsZero() {
		return fmt.Errorf("%w: date_time required", ErrInvalidRequest)
	}
	return nil
}

// BattlePatch is a partial update to a battle. Nil fields are unchanged.
type BattlePatch struct {
	DateTime *time.Time    `json:"date_time,omitempty"`
	Mode     *BattleMode   `json:"mode,omitempty"`
	Status   *BattleStatus `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p BattlePatch) Empty() bool {
	return p.DateTime == nil && p.Mode == nil && p.Status == nil
}

// Validate checks enum fields of the patch
func (p BattlePatch) Validate() error {
	if p.Mode != nil && !p.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, *p.Mode)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, *p.Status)
	}
	return nil
}

// Apply writes the patch onto b
func (p BattlePatch) Apply(b *Battle) {
	if p.DateTime != nil {
		b.DateTime = *p.DateTime
	}
	if p.Mode != nil {
		b.Mode = *p.Mode
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
}

// ModificationStatus is the review state of a modification request
type ModificationStatus string

const (
	ModificationPending  ModificationStatus = "pending"
	ModificationApproved ModificationStatus = "approved"
	ModificationDenied   ModificationStatus = "denied"
)

// ModificationRequest proposes changes to an existing battle
type ModificationRequest struct {
	ID               string             `json:"id"`
	BattleID         string             `json:"battle_id"`
	RequestingUserID string             `json:"requesting_user_id"`
	ProposedChanges  string             `json:"proposed_changes"`
	Patch            BattlePatch        `json:"patch"`
	Status           ModificationStatus `json:"status"`
	ReviewedBy       string             `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time         `json:"reviewed_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// SubmitModificationRequest is the payload for proposing battle changes
type SubmitModificationRequest struct {
	ProposedChanges string      `json:"proposed_changes"`
	Patch           BattlePatch `json:"patch"`
}

// BattleFilter narrows battle listings. Zero values are ignored.
type BattleFilter struct {
	Status        BattleStatus
	RequestType   RequestType
	ParticipantID string
	ReceiverID    string
	Before        *time.Time
	Limit         int
}
