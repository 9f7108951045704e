package model

import "errors"

// Operation errors. Every one of these aborts the current operation with no
// partial effect; none are retried by the treasury itself.
var (
	// ErrInvalidAmount signals a zero or otherwise nonsensical quantity
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrZeroAddress signals a missing required identity
	ErrZeroAddress = errors.New("zero address")

	// ErrInsufficientBalance signals the principal lacks the claimed balance or shares
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrStakeStillLocked signals the lock period has not elapsed, or a
	// withdrawal-before-claim ordering violation
	ErrStakeStillLocked = errors.New("stake still locked")

	// ErrPaused signals the system-wide halt is engaged
	ErrPaused = errors.New("treasury paused")

	// ErrUnauthorizedCaller signals a restricted entry point was invoked by the
	// wrong identity
	ErrUnauthorizedCaller = errors.New("unauthorized caller")

	// ErrNothingToClaim signals the yield computation resolved to zero
	ErrNothingToClaim = errors.New("nothing to claim")

	// ErrReentrancy signals a nested call re-entered an operation in flight
	ErrReentrancy = errors.New("reentrant call")
)
