/*
errors.go - Centralized error types for the redemption flow

PURPOSE:
  All error types in one place so the conversation layer can map each
  outcome to the right message without string matching.

ERROR CATEGORIES:
  1. Availability - the directory could not be loaded (ErrSourceUnavailable)
  2. Lookup       - identity or reward not recognized (ErrNotFound)
  3. Contention   - another redemption holds the identity lock (ErrBusy)
  4. Business     - tier or balance rejects the request (ErrIneligible,
                    ErrInsufficientBalance)
  5. Persistence  - the debit write failed (ErrPersistenceFailed)
  6. Audit        - the history append failed after commit (ErrAuditFailed)

USAGE:
  if errors.Is(err, rewards.ErrBusy) {
      return "please wait"
  }
  var short *rewards.InsufficientBalanceError
  if errors.As(err, &short) {
      ... short.Shortfall ...
  }

SEE ALSO:
  - redemption/redemption.go: produces these errors
  - conversation/messages.go: renders them for the requester
*/
package rewards

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSourceUnavailable is returned when the directory cannot be populated.
	ErrSourceUnavailable = errors.New("directory source unavailable")

	// ErrNotFound is returned when an identity or reward code is unknown, or
	// when an employee disappeared from the store between display and debit.
	ErrNotFound = errors.New("not found")

	// ErrBusy is returned when a redemption for the same identity is running.
	ErrBusy = errors.New("redemption already in progress")

	// ErrIneligible is returned when the tier table rejects the combination.
	ErrIneligible = errors.New("not eligible for reward")

	// ErrInsufficientBalance is returned when the fresh balance is below cost.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPersistenceFailed is returned when the debit could not be written.
	// The stored balance is ambiguous until the next reload.
	ErrPersistenceFailed = errors.New("balance persistence failed")

	// ErrAuditFailed marks a history append failure after a committed debit.
	// Never surfaced to the requester, never reverses the debit.
	ErrAuditFailed = errors.New("audit append failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Identity  string
	Reward    string
	Available int
	Requested int
	Shortfall int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d, requested %d, shortfall %d",
		e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// IneligibleError provides details about a tier rejection.
type IneligibleError struct {
	Identity      string
	EmployeeGroup Group
	RewardGroup   Group
	Cost          int
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("group %s cannot redeem %s reward costing %d",
		e.EmployeeGroup, e.RewardGroup, e.Cost)
}

func (e *IneligibleError) Unwrap() error {
	return ErrIneligible
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the requester may simply try again later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrPersistenceFailed) ||
		errors.Is(err, ErrSourceUnavailable)
}

// IsBusinessRejection returns true for tier and balance rejections. These
// are expected outcomes, not system failures.
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrIneligible) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
