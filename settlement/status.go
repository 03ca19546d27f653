/*
status.go - Derived invoice status

PURPOSE:
  An invoice's effective display status is computed from persisted fields
  and wall-clock time, never stored. "Overdue" in particular is always a
  view: persisting it would need a background job and would go stale the
  moment the clock moves, while recomputing on read is cheap and always
  correct. Callers that need a persisted overdue transition (e.g. to drive
  a notification) write the resolved value back themselves, as a separate
  idempotent write.

RESOLUTION ORDER:
  paid      if PaidAt is set, regardless of anything else
  overdue   if status is sent and now is past the due date
  otherwise the persisted status
*/
package settlement

import "time"

// EffectiveStatus resolves the display status of an invoice at a point in
// time. Pure function; the invoice is not mutated.
func EffectiveStatus(inv Invoice, now time.Time) InvoiceStatus {
	if inv.PaidAt != nil {
		return StatusPaid
	}
	if inv.Status == StatusSent && now.UTC().After(inv.DueDate) {
		return StatusOverdue
	}
	return inv.Status
}

// MarkSent returns a copy of the invoice stamped as sent at the given time.
// Sending is only valid from draft or generated.
func MarkSent(inv Invoice, now time.Time) (Invoice, error) {
	if inv.Status != StatusDraft && inv.Status != StatusGenerated {
		return inv, ErrInvalidTransition
	}
	at := now.UTC()
	inv.Status = StatusSent
	inv.SentAt = &at
	return inv, nil
}

// MarkPaid returns a copy of the invoice stamped as paid at the given time.
// Paying an already-paid invoice is a no-op, not an error.
func MarkPaid(inv Invoice, now time.Time) (Invoice, error) {
	if inv.PaidAt != nil {
		return inv, nil
	}
	if inv.Status == StatusDraft {
		return inv, ErrInvalidTransition
	}
	at := now.UTC()
	inv.Status = StatusPaid
	inv.PaidAt = &at
	return inv, nil
}
