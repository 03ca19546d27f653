/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place. Three categories matter here:

  1. "Nothing to settle" is NOT an error. Selector and generator functions
     return empty/nil results for it, so callers can render an informational
     state rather than an error toast.
  2. Duplicate settlement in the engine is a silent no-op (UI double-clicks
     must be safe). The sentinel ErrDuplicateSettlement exists for the store
     layer, where a concurrent writer losing the unique-constraint race needs
     a distinguishable outcome.
  3. Invariant violations are developer errors: an inspection id referenced
     outside the supplied snapshot, or rounding drift where cashback +
     commission + net stops summing to the total. These are rejected
     explicitly, never silently corrected.

USAGE:
  if errors.Is(err, settlement.ErrDuplicateSettlement) {
      // concurrent generation lost the race; safe to report 409
  }
*/
package settlement

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateSettlement is returned by stores when a write would settle
	// an inspection, or a (scope, period) pair, that is already settled for
	// the same kind. Expected under concurrent generation; safe to retry a read.
	ErrDuplicateSettlement = errors.New("duplicate settlement")

	// ErrInvoiceNotFound is returned when a referenced invoice doesn't exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrInspectionNotFound is returned when a referenced inspection doesn't exist.
	ErrInspectionNotFound = errors.New("inspection not found")

	// ErrUnknownInspection is returned when an operation references an
	// inspection id missing from the supplied snapshot. Developer error.
	ErrUnknownInspection = errors.New("inspection id not in snapshot")

	// ErrRoundingDrift is returned when the three revenue components fail to
	// sum to the total. Should be unreachable; never silently corrected.
	ErrRoundingDrift = errors.New("revenue components do not sum to total")

	// ErrProcessingInFlight is returned when a cashback processing entry for
	// the same agent was created within the double-submission guard window.
	ErrProcessingInFlight = errors.New("cashback processing already in flight")

	// ErrInvalidTransition is returned for status transitions an invoice
	// cannot make (e.g. paying a draft, sending a paid invoice).
	ErrInvalidTransition = errors.New("invalid invoice status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateSettlementError identifies which scope/period/kind collided.
type DuplicateSettlementError struct {
	Kind         Kind
	AgentID      AgentID
	PeriodNumber int
}

func (e *DuplicateSettlementError) Error() string {
	return fmt.Sprintf("duplicate settlement: kind=%s agent=%s period=%d",
		e.Kind, e.AgentID, e.PeriodNumber)
}

func (e *DuplicateSettlementError) Unwrap() error { return ErrDuplicateSettlement }

// ProcessingInFlightError reports the conflicting recent entry.
type ProcessingInFlightError struct {
	AgentID     AgentID
	ProcessedAt time.Time
}

func (e *ProcessingInFlightError) Error() string {
	return fmt.Sprintf("cashback processing for agent %s already in flight (entry at %s)",
		e.AgentID, e.ProcessedAt.Format(time.RFC3339))
}

func (e *ProcessingInFlightError) Unwrap() error { return ErrProcessingInFlight }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input or
// a safe-to-surface conflict rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateSettlement) ||
		errors.Is(err, ErrProcessingInFlight) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrInspectionNotFound)
}
