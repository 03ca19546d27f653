/*
invoice.go - Invoice construction with revenue splits

PURPOSE:
  Turns an eligible-inspection set into an immutable Invoice value with the
  15/30/55 revenue split. Construction is pure: persistence, and the atomic
  "write invoice + mark inspections settled" step, belong to the caller.

AT-MOST-ONCE:
  Generation for a given (scope, period) pair happens at most once. The
  generator consults the set of period numbers already invoiced for the scope
  and returns nil when the pair is taken, so UI "Generate" buttons are safe
  to press repeatedly. A nil invoice with a nil error always means "nothing
  to generate", never failure.

ROUNDING:
  Cashback and commission are rounded to the cent independently; the net
  share is computed by SUBTRACTION, not by multiplying 0.55, so the three
  components sum to the total exactly despite rounding. NewInvoice verifies
  the sum and rejects drift rather than correcting it.
*/
package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PeriodSet is the set of period numbers already invoiced for one scope.
type PeriodSet map[int]bool

// NewPeriodSet builds a set from a list of period numbers.
func NewPeriodSet(numbers []int) PeriodSet {
	set := make(PeriodSet, len(numbers))
	for _, n := range numbers {
		set[n] = true
	}
	return set
}

// Generator constructs invoices under one Config. Stateless pure value.
type Generator struct {
	Config Config
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{Config: cfg}
}

// GenerateCombinedInvoice builds a single invoice covering every agent's
// eligible inspections in the period. alreadySettled is the combined kind's
// settled set. Returns (nil, nil) when the period is already invoiced for
// the combined scope or nothing is eligible.
func (g *Generator) GenerateCombinedInvoice(period BillingPeriod, inspections []Inspection, alreadySettled SettledSet, priorPeriods PeriodSet, now time.Time) (*Invoice, error) {
	if priorPeriods[period.Number] {
		return nil, nil
	}
	eligible := SelectEligible(inspections, period, nil, alreadySettled)
	if len(eligible) == 0 {
		return nil, nil
	}
	return g.build(CombinedScope, period, eligible, now)
}

// GenerateAgentInvoice builds an invoice for one agent's eligible inspections
// in the period. Returns (nil, nil) when the (agent, period) pair is already
// invoiced or the agent has nothing eligible.
func (g *Generator) GenerateAgentInvoice(period BillingPeriod, agentID AgentID, inspections []Inspection, alreadySettled SettledSet, priorPeriods PeriodSet, now time.Time) (*Invoice, error) {
	if priorPeriods[period.Number] {
		return nil, nil
	}
	eligible := SelectEligible(inspections, period, &agentID, alreadySettled)
	if len(eligible) == 0 {
		return nil, nil
	}
	return g.build(agentID, period, eligible, now)
}

// GenerateAllAgentInvoices builds one invoice per agent with eligible
// inspections in the period, skipping agents already invoiced for it.
// priorPeriodsByAgent may be nil.
func (g *Generator) GenerateAllAgentInvoices(period BillingPeriod, inspections []Inspection, alreadySettled SettledSet, priorPeriodsByAgent map[AgentID]PeriodSet, now time.Time) ([]*Invoice, error) {
	eligible := SelectEligible(inspections, period, nil, alreadySettled)
	invoices := make([]*Invoice, 0)
	for _, agentID := range AgentsWithEligible(eligible) {
		inv, err := g.GenerateAgentInvoice(period, agentID, inspections, alreadySettled, priorPeriodsByAgent[agentID], now)
		if err != nil {
			return nil, err
		}
		if inv != nil {
			invoices = append(invoices, inv)
		}
	}
	return invoices, nil
}

func (g *Generator) build(scope AgentID, period BillingPeriod, eligible []Inspection, now time.Time) (*Invoice, error) {
	ids := make([]InspectionID, len(eligible))
	total := decimal.Zero
	for i, insp := range eligible {
		ids[i] = insp.ID
		total = total.Add(insp.Price)
	}

	cashback, commission, net := g.Config.Split(total)
	if !cashback.Add(commission).Add(net).Equal(total) {
		return nil, ErrRoundingDrift
	}

	generatedAt := now.UTC()
	return &Invoice{
		ID:                 InvoiceID(uuid.NewString()),
		AgentID:            scope,
		PeriodNumber:       period.Number,
		BillingPeriodStart: period.Start,
		BillingPeriodEnd:   period.End,
		InspectionIDs:      ids,
		TotalAmount:        total,
		AgentCashback:      cashback,
		ClerkCommission:    commission,
		NetAmount:          net,
		Status:             StatusDraft,
		GeneratedAt:        generatedAt,
		DueDate:            generatedAt.AddDate(0, 0, g.Config.PaymentTermDays),
	}, nil
}

// Split divides a revenue total into (cashback, commission, net). Cashback
// and commission round to the cent; net absorbs the remainder so the three
// always sum to total.
func (c Config) Split(total decimal.Decimal) (cashback, commission, net decimal.Decimal) {
	cashback = total.Mul(c.AgentCashbackRate).Round(2)
	commission = total.Mul(c.ClerkCommissionRate).Round(2)
	net = total.Sub(cashback).Sub(commission)
	return cashback, commission, net
}
