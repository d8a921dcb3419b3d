package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrBattleNotFound       = errors.New("battle not found")
	ErrModificationNotFound = errors.New("modification request not found")
	ErrThreadNotFound       = errors.New("thread not found")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrChannelExists        = errors.New("channel already exists")
	ErrNotParticipant       = errors.New("user is not a participant in this thread")
	ErrSelfThread           = errors.New("cannot start a thread with yourself")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidThreadID      = errors.New("invalid thread id")
	ErrInvalidTransition    = errors.New("invalid battle status transition")
	ErrBattleNotDeletable   = errors.New("pending battles cannot be deleted")
	ErrAlreadyReviewed      = errors.New("modification request already reviewed")
	ErrBlocked              = errors.New("user has blocked this conversation")
	ErrInsufficientDiamonds = errors.New("diamond balance cannot go below zero")
	ErrForbidden            = errors.New("forbidden")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInternalError        = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrBattleNotFound) ||
		errors.Is(err, ErrModificationNotFound) ||
		errors.Is(err, ErrThreadNotFound) ||
		errors.Is(err, ErrChannelNotFound)
}

// IsForbiddenError checks if an error denies the caller access
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotParticipant) ||
		errors.Is(err, ErrBlocked)
}

// IsConflictError checks if an error reports a state conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrChannelExists) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBattleNotDeletable) ||
		errors.Is(err, ErrAlreadyReviewed)
}

// IsValidationError checks if an error stems from bad input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInsufficientDiamonds) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidThreadID) ||
		errors.Is(err, ErrSelfThread)
}
