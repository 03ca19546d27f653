/*
selector.go - Eligibility selection for settlement operations

PURPOSE:
  Given a snapshot of inspections and the set of inspection ids already
  settled for a kind, return the subset eligible for a new operation in a
  given billing period. This is the single filter both invoicing and
  cashback processing go through, so "already settled" means the same thing
  everywhere.

FILTERS (all must hold):
  - status == completed
  - settlement date (completed date, else scheduled) inside the period
  - agent matches the filter, when one is given
  - id not in the already-settled set for the operation's kind

DETERMINISM:
  Output is sorted by settlement date ascending with id as tie-break, so
  repeated calls over identical input produce identical output. Idempotent
  re-generation checks depend on this.

  An empty result is a valid outcome meaning "nothing to settle", not an
  error.
*/
package settlement

import "sort"

// SettledSet is the set of inspection ids already settled for one kind.
type SettledSet map[InspectionID]bool

// NewSettledSet builds a set from a list of ids.
func NewSettledSet(ids []InspectionID) SettledSet {
	set := make(SettledSet, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// SelectEligible returns the inspections eligible for settlement in the given
// period. agentFilter narrows to one agent when non-nil. alreadySettled may be
// nil, meaning nothing has been settled yet for this kind.
func SelectEligible(inspections []Inspection, period BillingPeriod, agentFilter *AgentID, alreadySettled SettledSet) []Inspection {
	eligible := make([]Inspection, 0, len(inspections))
	for _, insp := range inspections {
		if insp.Status != InspectionCompleted {
			continue
		}
		if !period.Contains(insp.SettlementDate()) {
			continue
		}
		if agentFilter != nil && insp.AgentID != *agentFilter {
			continue
		}
		if alreadySettled[insp.ID] {
			continue
		}
		eligible = append(eligible, insp)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		di, dj := eligible[i].SettlementDate(), eligible[j].SettlementDate()
		if di.Equal(dj) {
			return eligible[i].ID < eligible[j].ID
		}
		return di.Before(dj)
	})
	return eligible
}

// AgentsWithEligible returns the distinct agent ids present in the eligible
// set, sorted for deterministic iteration.
func AgentsWithEligible(eligible []Inspection) []AgentID {
	seen := make(map[AgentID]bool)
	var agents []AgentID
	for _, insp := range eligible {
		if insp.AgentID == "" || seen[insp.AgentID] {
			continue
		}
		seen[insp.AgentID] = true
		agents = append(agents, insp.AgentID)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i] < agents[j] })
	return agents
}
