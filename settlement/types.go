/*
Package settlement provides the billing-period settlement engine.

PURPOSE:
  This package contains the pure computation core for settling inspection
  revenue: partitioning time into fixed two-week billing periods, selecting
  which completed inspections are eligible for a financial operation,
  constructing immutable invoices with revenue splits, deriving display
  status, and maintaining the ledger that guarantees no inspection's
  cashback or commission is ever paid twice.

KEY CONCEPTS IN THIS FILE (types.go):
  - Inspection: Read-only snapshot record from the scheduling system
  - Invoice: Immutable revenue-split record for a (scope, period) pair
  - ProcessedAgentCashback: Ledger entry marking cashback as paid out
  - Kind: The settlement kind whose exclusivity is tracked independently
  - Config: The centralized rate/term constants

DESIGN PRINCIPLES:
  1. Purity: Every function takes `now` explicitly; no hidden clock reads
  2. Precision: decimal.Decimal for all money, never float64
  3. Immutability: Invoices and ledger entries are created once, never edited
  4. At-most-once: Duplicate settlement is a silent no-op, not an error

USAGE:
  cfg := settlement.DefaultConfig()
  period := cfg.CurrentPeriod(now)
  eligible := settlement.SelectEligible(snapshot, period, nil, settled)

SEE ALSO:
  - period.go: Billing period arithmetic
  - selector.go: Eligibility selection
  - invoice.go: Invoice construction
  - cashback.go: Cashback processing ledger
*/
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type InspectionID string
type AgentID string
type ClerkID string
type InvoiceID string

// CombinedScope is the agent slot used for invoices that roll every agent's
// eligible inspections into a single document.
const CombinedScope AgentID = "COMBINED"

// =============================================================================
// SETTLEMENT KIND - Independent exclusivity tracks for the same money
// =============================================================================

// Kind identifies which financial operation an inspection is being settled
// under. Combined invoicing, per-agent invoicing, and cashback processing
// each keep their own ledger: settling an inspection under one kind never
// affects its eligibility under another.
type Kind string

const (
	KindCombinedInvoice Kind = "invoice_combined"
	KindAgentInvoice    Kind = "invoice_agent"
	KindCashback        Kind = "cashback"
)

// =============================================================================
// INSPECTION - External read-only snapshot
// =============================================================================

type InspectionStatus string

const (
	InspectionScheduled InspectionStatus = "scheduled"
	InspectionCompleted InspectionStatus = "completed"
	InspectionCancelled InspectionStatus = "cancelled"
)

// Inspection is the snapshot record supplied by the scheduling system.
// The engine never mutates it.
type Inspection struct {
	ID            InspectionID
	AgentID       AgentID
	ClerkID       ClerkID
	Price         decimal.Decimal
	Status        InspectionStatus
	ScheduledDate time.Time
	CompletedDate *time.Time
}

// SettlementDate returns the date used for period bucketing: the completion
// date, falling back to the scheduled date when completion was never stamped.
// Once an inspection is completed this value does not change.
func (i Inspection) SettlementDate() time.Time {
	if i.CompletedDate != nil {
		return *i.CompletedDate
	}
	return i.ScheduledDate
}

// =============================================================================
// INVOICE - Immutable once generated, except status timestamps
// =============================================================================

type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "draft"
	StatusGenerated InvoiceStatus = "generated"
	StatusSent      InvoiceStatus = "sent"
	StatusPaid      InvoiceStatus = "paid"

	// StatusOverdue is a derived view, never persisted. See status.go.
	StatusOverdue InvoiceStatus = "overdue"
)

type Invoice struct {
	ID                 InvoiceID
	AgentID            AgentID // CombinedScope for combined invoices
	PeriodNumber       int
	BillingPeriodStart time.Time
	BillingPeriodEnd   time.Time
	InspectionIDs      []InspectionID
	TotalAmount        decimal.Decimal
	AgentCashback      decimal.Decimal
	ClerkCommission    decimal.Decimal
	NetAmount          decimal.Decimal
	Status             InvoiceStatus
	GeneratedAt        time.Time
	SentAt             *time.Time
	PaidAt             *time.Time
	DueDate            time.Time
}

// Kind returns the settlement kind this invoice settles inspections under.
func (inv Invoice) Kind() Kind {
	if inv.AgentID == CombinedScope {
		return KindCombinedInvoice
	}
	return KindAgentInvoice
}

// =============================================================================
// PROCESSED AGENT CASHBACK - Ledger entry
// =============================================================================

// ProcessedAgentCashback records that an agent's cashback for one billing
// period has been paid out. The union of InspectionIDs across all entries
// for an agent never contains duplicates: each inspection is processed at
// most once system-wide for the cashback kind.
type ProcessedAgentCashback struct {
	ID                 string
	AgentID            AgentID
	PeriodNumber       int
	BillingPeriodStart time.Time
	BillingPeriodEnd   time.Time
	InspectionIDs      []InspectionID
	TotalRevenue       decimal.Decimal
	CashbackAmount     decimal.Decimal
	ProcessedAt        time.Time
	ProcessedBy        string
	Notes              string
}

// =============================================================================
// CONFIG - Centralized split rates and terms
// =============================================================================

// Config carries the settlement constants. The rates and terms are fixed by
// the business model and are not runtime-configurable; every call site takes
// them from one Config value so the 15/30/55 split can never drift between
// components.
type Config struct {
	// Epoch anchors billing period 1. Fixed calendar date, UTC midnight.
	Epoch time.Time

	// PeriodDays is the length of a billing period.
	PeriodDays int

	// AgentCashbackRate and ClerkCommissionRate are fractions of invoice
	// revenue. The net share is derived by subtraction, never by a third rate.
	AgentCashbackRate   decimal.Decimal
	ClerkCommissionRate decimal.Decimal

	// PaymentTermDays is added to the generation time to produce DueDate.
	PaymentTermDays int
}

// DefaultConfig returns the production constants: 14-day periods anchored to
// 2024-01-01 UTC, 15% agent cashback, 30% clerk commission, 30-day terms.
func DefaultConfig() Config {
	return Config{
		Epoch:               time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		PeriodDays:          14,
		AgentCashbackRate:   decimal.NewFromFloat(0.15),
		ClerkCommissionRate: decimal.NewFromFloat(0.30),
		PaymentTermDays:     30,
	}
}

// MustParseDecimal parses a decimal literal, returning zero on failure.
// Intended for constants and test fixtures.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
