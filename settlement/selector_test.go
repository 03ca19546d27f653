package settlement_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propora/settlement-engine/settlement"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func completedInspection(id, agentID string, price string, completed time.Time) settlement.Inspection {
	c := completed
	return settlement.Inspection{
		ID:            settlement.InspectionID(id),
		AgentID:       settlement.AgentID(agentID),
		ClerkID:       "clerk-1",
		Price:         settlement.MustParseDecimal(price),
		Status:        settlement.InspectionCompleted,
		ScheduledDate: completed.AddDate(0, 0, -1),
		CompletedDate: &c,
	}
}

// =============================================================================
// ELIGIBILITY TESTS
// =============================================================================

func TestSelectEligible_FiltersByStatusAndPeriod(t *testing.T) {
	// GIVEN: Completed, scheduled, and cancelled inspections plus one
	//        completed in the wrong period
	// WHEN: Selecting for period 2
	// THEN: Only the completed inspection inside period 2 is eligible

	cfg := settlement.DefaultConfig()
	period := cfg.PeriodByNumber(2)
	inPeriod := time.Date(2024, time.January, 20, 0, 0, 0, 0, time.UTC)
	outOfPeriod := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)

	scheduled := completedInspection("i-sched", "agent-1", "100", inPeriod)
	scheduled.Status = settlement.InspectionScheduled
	cancelled := completedInspection("i-canc", "agent-1", "100", inPeriod)
	cancelled.Status = settlement.InspectionCancelled

	inspections := []settlement.Inspection{
		completedInspection("i-1", "agent-1", "100", inPeriod),
		completedInspection("i-2", "agent-1", "100", outOfPeriod),
		scheduled,
		cancelled,
	}

	eligible := settlement.SelectEligible(inspections, period, nil, nil)

	require.Len(t, eligible, 1)
	assert.Equal(t, settlement.InspectionID("i-1"), eligible[0].ID)
}

func TestSelectEligible_CompletedDateFallsBackToScheduled(t *testing.T) {
	// GIVEN: A completed inspection whose completion was never stamped
	// WHEN: Selecting for the period containing its scheduled date
	// THEN: The scheduled date buckets it

	cfg := settlement.DefaultConfig()
	period := cfg.PeriodByNumber(2)

	insp := settlement.Inspection{
		ID:            "i-1",
		AgentID:       "agent-1",
		Price:         settlement.MustParseDecimal("100"),
		Status:        settlement.InspectionCompleted,
		ScheduledDate: time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC),
	}

	eligible := settlement.SelectEligible([]settlement.Inspection{insp}, period, nil, nil)
	require.Len(t, eligible, 1)
}

func TestSelectEligible_AgentFilter(t *testing.T) {
	// GIVEN: Inspections for two agents in the same period
	// WHEN: Filtering for agent-2
	// THEN: Only agent-2's inspections come back

	cfg := settlement.DefaultConfig()
	period := cfg.PeriodByNumber(1)
	day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)

	inspections := []settlement.Inspection{
		completedInspection("i-1", "agent-1", "100", day),
		completedInspection("i-2", "agent-2", "150", day),
	}

	agent2 := settlement.AgentID("agent-2")
	eligible := settlement.SelectEligible(inspections, period, &agent2, nil)

	require.Len(t, eligible, 1)
	assert.Equal(t, settlement.InspectionID("i-2"), eligible[0].ID)
}

func TestSelectEligible_ExcludesAlreadySettled(t *testing.T) {
	// GIVEN: Two eligible inspections, one already settled for this kind
	// WHEN: Selecting with the settled set
	// THEN: Only the unsettled one is eligible

	cfg := settlement.DefaultConfig()
	period := cfg.PeriodByNumber(1)
	day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)

	inspections := []settlement.Inspection{
		completedInspection("i-1", "agent-1", "100", day),
		completedInspection("i-2", "agent-1", "150", day),
	}
	settled := settlement.NewSettledSet([]settlement.InspectionID{"i-1"})

	eligible := settlement.SelectEligible(inspections, period, nil, settled)

	require.Len(t, eligible, 1)
	assert.Equal(t, settlement.InspectionID("i-2"), eligible[0].ID)
}

func TestSelectEligible_DeterministicOrder(t *testing.T) {
	// GIVEN: Inspections supplied out of date order, two sharing a date
	// WHEN: Selecting twice
	// THEN: Both calls return date-ascending order with id tie-break

	cfg := settlement.DefaultConfig()
	period := cfg.PeriodByNumber(1)

	d3 := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
	d8 := time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

	inspections := []settlement.Inspection{
		completedInspection("i-b", "agent-1", "100", d8),
		completedInspection("i-z", "agent-1", "100", d3),
		completedInspection("i-a", "agent-1", "100", d3),
	}

	first := settlement.SelectEligible(inspections, period, nil, nil)
	second := settlement.SelectEligible(inspections, period, nil, nil)

	require.Len(t, first, 3)
	assert.Equal(t, settlement.InspectionID("i-a"), first[0].ID)
	assert.Equal(t, settlement.InspectionID("i-z"), first[1].ID)
	assert.Equal(t, settlement.InspectionID("i-b"), first[2].ID)
	assert.Equal(t, first, second)
}

func TestAgentsWithEligible_DistinctSorted(t *testing.T) {
	// GIVEN: An eligible set spanning two agents with repeats
	// WHEN: Extracting the agent list
	// THEN: Each agent appears once, sorted

	day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
	eligible := []settlement.Inspection{
		completedInspection("i-1", "agent-b", "100", day),
		completedInspection("i-2", "agent-a", "100", day),
		completedInspection("i-3", "agent-b", "100", day),
	}

	agents := settlement.AgentsWithEligible(eligible)
	assert.Equal(t, []settlement.AgentID{"agent-a", "agent-b"}, agents)
}

func TestSelectEligible_ZeroPriceStillEligible(t *testing.T) {
	// GIVEN: A completed inspection with a zero price
	// WHEN: Selecting
	// THEN: It is eligible; free inspections still settle

	cfg := settlement.DefaultConfig()
	period := cfg.PeriodByNumber(1)
	day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)

	insp := completedInspection("i-free", "agent-1", "0", day)
	insp.Price = decimal.Zero

	eligible := settlement.SelectEligible([]settlement.Inspection{insp}, period, nil, nil)
	require.Len(t, eligible, 1)
}
