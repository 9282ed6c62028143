package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated        = errors.New("authentication required")
	ErrInvalidToken           = errors.New("invalid token")
	ErrUserNotFound           = errors.New("user not found")
	ErrPlanNotFound           = errors.New("price plan not found")
	ErrWorkNotFound           = errors.New("work not found or not authorized")
	ErrNotificationNotFound   = errors.New("notification not found")
	ErrHandleTaken            = errors.New("handle already in use")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrTransitionConflict     = errors.New("work was modified by another request")
	ErrDeliverableUnavailable = errors.New("deliverable not available")
	ErrStorageUnavailable     = errors.New("object storage unavailable")
	ErrIdempotencyInFlight    = errors.New("a request with this idempotency key is in progress")
)

// ErrValidation matches every *ValidationError through errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError is a caller-correctable input or business-rule failure.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError returns a *ValidationError with a formatted message.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrPlanInactive       = &ValidationError{Msg: "price plan invalid or inactive"}
	ErrPlanChanged        = &ValidationError{Msg: "price plan changed, review it and try again"}
	ErrCreatorUnavailable = &ValidationError{Msg: "creator not accepting requests"}
	ErrSelfRequest        = &ValidationError{Msg: "cannot request work from yourself"}
	ErrEmptyDescription   = &ValidationError{Msg: "description is required"}
	ErrAmountBelowMinimum = &ValidationError{Msg: fmt.Sprintf("amount must be at least %d", MinPlanAmount)}
	ErrNoActivePlan       = &ValidationError{Msg: "an active price plan is required to accept requests"}
	ErrInvalidUserStatus  = &ValidationError{Msg: "status must be one of: available available_hidden unavailable"}
	ErrMissingFile        = &ValidationError{Msg: "no file uploaded"}
)
