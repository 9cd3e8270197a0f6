/*
errors.go - Centralized error taxonomy for both engines

ERROR CATEGORIES:
  1. NotFound       - referenced entity absent
  2. InvalidState   - operation not permitted in the entity's current state
  3. BadRequest     - missing required alternative input
  4. InsufficientFunds - balance/availability check failed (structured)
  5. Internal       - store failure or violated invariant

PROPAGATION POLICY:
  Validation failures surface before any mutation is attempted. Failures
  inside an atomic unit roll the whole unit back and re-surface as Internal
  unless they are already one of the typed errors above.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is not permitted given
	// the entity's current state (already reverted, balance not negative, ...).
	ErrInvalidState = errors.New("invalid state")

	// ErrBadRequest is returned when a required alternative input is missing.
	ErrBadRequest = errors.New("bad request")

	// ErrInsufficientFunds is the sentinel wrapped by InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInternal is returned for store failures and violated invariants,
	// such as a missing Others bucket during reset.
	ErrInternal = errors.New("internal error")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientFundsError carries both sides of a failed availability check.
type InsufficientFundsError struct {
	Needed    decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: needed %s, available %s",
		FormatAmount(e.Needed), FormatAmount(e.Available))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InvalidStateError attaches a reason to ErrInvalidState.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return e.Reason }

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// Internalf wraps an unexpected failure so callers can match ErrInternal
// while keeping the cause in the chain.
func Internalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError reports whether err is the caller's fault rather than ours.
func IsClientError(err error) bool {
	return errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNotFound)
}

// AsInternal passes typed errors through untouched and converts everything
// else to Internal. Engines call this on the way out of an atomic unit.
func AsInternal(err error) error {
	if err == nil || IsClientError(err) || errors.Is(err, ErrInternal) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}
