/*
cashback.go - Agent cashback processing ledger

PURPOSE:
  The cashback workflow pays agents their 15% share outside the invoicing
  track. This file aggregates what is still owed per agent, guards against
  double-submission, and decomposes a "process" action into one ledger entry
  per billing period so the audit trail stays aligned with periods even when
  one action covers months of backlog.

EXCLUSIVITY:
  Once an inspection id appears in any ProcessedAgentCashback entry for an
  agent, it is permanently ineligible for the cashback kind. The aggregation
  here and the Settlement Selector share the same already-settled set, so
  the two can never disagree about what is owed.

DOUBLE-SUBMISSION GUARD:
  ValidateProcessing rejects a new processing action when an entry for the
  same agent was created within a short window. This catches the UI
  double-click between the eligibility read and the ledger write; the
  store's unique constraints are the backstop for true concurrent races.
*/
package settlement

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProcessingGuardWindow is how recently an agent's cashback entry must have
// been created to be considered an in-flight duplicate submission.
const ProcessingGuardWindow = 5 * time.Minute

// PeriodCashback aggregates one agent's unprocessed inspections within a
// single billing period.
type PeriodCashback struct {
	Period      BillingPeriod
	Inspections []Inspection
	Revenue     decimal.Decimal
	Cashback    decimal.Decimal
}

// AgentCashbackStatus aggregates everything still owed to one agent, grouped
// by billing period, oldest period first.
type AgentCashbackStatus struct {
	AgentID             AgentID
	PeriodsWithCashback []PeriodCashback
	TotalRevenue        decimal.Decimal
	TotalCashback       decimal.Decimal
}

// UnprocessedCashbackByAgent returns, per agent, all completed inspections
// not yet present in any ProcessedAgentCashback entry for that agent,
// bucketed into billing periods. Agents with nothing owed are omitted.
// Result is sorted by agent id for deterministic iteration.
func (c Config) UnprocessedCashbackByAgent(inspections []Inspection, processed []ProcessedAgentCashback) []AgentCashbackStatus {
	processedByAgent := make(map[AgentID]SettledSet)
	for _, entry := range processed {
		set := processedByAgent[entry.AgentID]
		if set == nil {
			set = make(SettledSet)
			processedByAgent[entry.AgentID] = set
		}
		for _, id := range entry.InspectionIDs {
			set[id] = true
		}
	}

	byAgent := make(map[AgentID]map[int][]Inspection)
	for _, insp := range inspections {
		if insp.Status != InspectionCompleted || insp.AgentID == "" {
			continue
		}
		if processedByAgent[insp.AgentID][insp.ID] {
			continue
		}
		periods := byAgent[insp.AgentID]
		if periods == nil {
			periods = make(map[int][]Inspection)
			byAgent[insp.AgentID] = periods
		}
		n := c.PeriodForDate(insp.SettlementDate()).Number
		periods[n] = append(periods[n], insp)
	}

	statuses := make([]AgentCashbackStatus, 0, len(byAgent))
	for agentID, periods := range byAgent {
		status := AgentCashbackStatus{
			AgentID:       agentID,
			TotalRevenue:  decimal.Zero,
			TotalCashback: decimal.Zero,
		}

		numbers := make([]int, 0, len(periods))
		for n := range periods {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)

		for _, n := range numbers {
			insps := periods[n]
			sort.SliceStable(insps, func(i, j int) bool {
				di, dj := insps[i].SettlementDate(), insps[j].SettlementDate()
				if di.Equal(dj) {
					return insps[i].ID < insps[j].ID
				}
				return di.Before(dj)
			})

			revenue := decimal.Zero
			for _, insp := range insps {
				revenue = revenue.Add(insp.Price)
			}
			status.PeriodsWithCashback = append(status.PeriodsWithCashback, PeriodCashback{
				Period:      c.PeriodByNumber(n),
				Inspections: insps,
				Revenue:     revenue,
				Cashback:    revenue.Mul(c.AgentCashbackRate).Round(2),
			})
			status.TotalRevenue = status.TotalRevenue.Add(revenue)
		}
		// Grand total cashback is the sum of per-period rounded amounts, so
		// the ledger entries always add up to what was displayed.
		for _, pc := range status.PeriodsWithCashback {
			status.TotalCashback = status.TotalCashback.Add(pc.Cashback)
		}
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].AgentID < statuses[j].AgentID })
	return statuses
}

// ValidateProcessing rejects a processing action when an entry for the same
// agent was created within the guard window, which indicates a concurrent or
// duplicate submission still mid-flight.
func ValidateProcessing(agentID AgentID, processed []ProcessedAgentCashback, now time.Time) error {
	cutoff := now.UTC().Add(-ProcessingGuardWindow)
	for _, entry := range processed {
		if entry.AgentID != agentID {
			continue
		}
		if entry.ProcessedAt.After(cutoff) {
			return &ProcessingInFlightError{AgentID: agentID, ProcessedAt: entry.ProcessedAt}
		}
	}
	return nil
}

// CreateProcessedCashback emits one ledger entry per period in the agent's
// status. Each entry carries only that period's inspection ids and cashback
// amount. Returns nil when the status has nothing to process.
func CreateProcessedCashback(status AgentCashbackStatus, processedBy, notes string, now time.Time) []ProcessedAgentCashback {
	if len(status.PeriodsWithCashback) == 0 {
		return nil
	}
	processedAt := now.UTC()
	entries := make([]ProcessedAgentCashback, 0, len(status.PeriodsWithCashback))
	for _, pc := range status.PeriodsWithCashback {
		ids := make([]InspectionID, len(pc.Inspections))
		for i, insp := range pc.Inspections {
			ids[i] = insp.ID
		}
		entries = append(entries, ProcessedAgentCashback{
			ID:                 uuid.NewString(),
			AgentID:            status.AgentID,
			PeriodNumber:       pc.Period.Number,
			BillingPeriodStart: pc.Period.Start,
			BillingPeriodEnd:   pc.Period.End,
			InspectionIDs:      ids,
			TotalRevenue:       pc.Revenue,
			CashbackAmount:     pc.Cashback,
			ProcessedAt:        processedAt,
			ProcessedBy:        processedBy,
			Notes:              notes,
		})
	}
	return entries
}
