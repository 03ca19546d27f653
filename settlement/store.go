/*
store.go - Persistence interface for the settlement engine

PURPOSE:
  Defines the boundary between the pure engine and the database. The engine
  exposes eligibility as a repeatable pure function precisely so a store can
  implement the critical atomicity without the engine knowing about locks or
  transactions: "check eligibility -> write invoice/ledger entry" must be one
  atomic unit, because two concurrent Generate or Process requests for the
  same scope and period must not both succeed.

HOW STORES ENFORCE AT-MOST-ONCE:
  - SaveInvoice writes the invoice row AND one settled-inspection row per
    inspection id, in a single transaction.
  - SaveProcessedCashback does the same for a batch of ledger entries.
  - Unique constraints on (kind, inspection_id) and on (agent, period) make
    the loser of a concurrent race fail with ErrDuplicateSettlement instead
    of producing a duplicate payout.

IMMUTABILITY:
  Invoices are write-once except for the status-transition timestamps, which
  is why the only update operation is UpdateInvoiceStatus. Processed-cashback
  entries have no update operation at all.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - settlement/store: in-memory, for tests
*/
package settlement

import "context"

// Store handles persistence of inspections, invoices, and the cashback
// ledger. Settlement records are append-only: corrections would be modeled
// as explicit reversing entries, never edits.
type Store interface {
	// SaveInspection upserts a snapshot record from the scheduling system.
	SaveInspection(ctx context.Context, insp Inspection) error

	// ListInspections returns the full snapshot, ordered by settlement date.
	ListInspections(ctx context.Context) ([]Inspection, error)

	// GetInspection returns one inspection, or ErrInspectionNotFound.
	GetInspection(ctx context.Context, id InspectionID) (*Inspection, error)

	// SaveInvoice persists an invoice and marks its inspections settled for
	// the invoice's kind, atomically. Returns ErrDuplicateSettlement if the
	// (scope, period) pair or any inspection is already settled for the kind.
	SaveInvoice(ctx context.Context, inv Invoice) error

	// UpdateInvoiceStatus persists a status transition (status, SentAt,
	// PaidAt). All other invoice fields are immutable and ignored.
	UpdateInvoiceStatus(ctx context.Context, inv Invoice) error

	// GetInvoice returns one invoice, or ErrInvoiceNotFound.
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)

	// ListInvoices returns all invoices, most recently generated first.
	ListInvoices(ctx context.Context) ([]Invoice, error)

	// InvoicedPeriods returns the period numbers already invoiced for a
	// scope (an agent id, or CombinedScope).
	InvoicedPeriods(ctx context.Context, scope AgentID) (PeriodSet, error)

	// SaveProcessedCashback persists a batch of ledger entries and marks
	// their inspections settled for the cashback kind, atomically. Either
	// the whole batch lands or none of it does.
	SaveProcessedCashback(ctx context.Context, entries []ProcessedAgentCashback) error

	// ListProcessedCashback returns ledger entries, newest first, optionally
	// narrowed to one agent.
	ListProcessedCashback(ctx context.Context, agent *AgentID) ([]ProcessedAgentCashback, error)

	// SettledInspectionIDs returns the ids already settled for a kind.
	SettledInspectionIDs(ctx context.Context, kind Kind) (SettledSet, error)
}
