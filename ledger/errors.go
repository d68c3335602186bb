/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All sentinel errors in one place. Callers branch with errors.Is;
  other packages wrap these with additional context.

ERROR CATEGORIES:
  1. Admission - duplicate fingerprints (expected, not a fault)
  2. Parsing   - unextractable amounts (silently dropped upstream)
  3. Store     - persistence failures (retried by the scheduler)
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateFingerprint is returned by a Sink when a fingerprint is
	// already recorded. Expected steady-state outcome of redelivery.
	ErrDuplicateFingerprint = errors.New("duplicate fingerprint")

	// ErrNoAmount is returned when text holds no parseable amount.
	ErrNoAmount = errors.New("no parseable amount")

	// ErrInvalidCandidate is returned when a candidate violates its
	// invariants (zero amount, unknown direction, zero timestamp).
	ErrInvalidCandidate = errors.New("invalid candidate transaction")

	// ErrRuleNotFound is returned when a referenced recurrence rule
	// does not exist.
	ErrRuleNotFound = errors.New("recurrence rule not found")

	// ErrRuleCompleted is returned when generation is requested for a
	// terminal rule.
	ErrRuleCompleted = errors.New("recurrence rule completed")
)

// IsDuplicate reports whether err indicates an already-seen event.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicateFingerprint) }

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// PersistenceError wraps a Sink failure with the operation that failed.
// Recurrence generation treats these as retryable on the next pass.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
