package models

import (
	"errors"
	"fmt"
)

// Business-rule failures returned by the core. Handlers map them to HTTP
// status codes; none of them are retried.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNotFound          = errors.New("not found")
	ErrNotOwner          = errors.New("not owner")
	ErrAlreadyFinalized  = errors.New("already finalized")
	ErrAlreadyApproved   = errors.New("already approved")
	ErrNoSlotsAvailable  = errors.New("no slots available")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownPlan       = errors.New("unknown plan")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrDuplicateEmail    = errors.New("email already registered")
)

// Not-found variants; errors.Is matches both the variant and ErrNotFound.
var (
	ErrTaskNotFound       = fmt.Errorf("task %w", ErrNotFound)
	ErrSubmissionNotFound = fmt.Errorf("submission %w", ErrNotFound)
	ErrWithdrawalNotFound = fmt.Errorf("withdrawal %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
)
