package settlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propora/settlement-engine/settlement"
)

// =============================================================================
// CASHBACK AGGREGATION TESTS
// =============================================================================

func TestUnprocessedCashbackByAgent_GroupsByPeriod(t *testing.T) {
	// GIVEN: One agent with completed inspections in periods 1 and 2
	// WHEN: Aggregating with an empty ledger
	// THEN: One status with two period buckets, oldest first, and per-period
	//       cashback rounded to the cent

	cfg := settlement.DefaultConfig()
	p1day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
	p2day := time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC)

	inspections := []settlement.Inspection{
		completedInspection("i-1", "agent-1", "100", p1day),
		completedInspection("i-2", "agent-1", "150", p1day),
		completedInspection("i-3", "agent-1", "200", p2day),
	}

	statuses := cfg.UnprocessedCashbackByAgent(inspections, nil)
	require.Len(t, statuses, 1)

	status := statuses[0]
	assert.Equal(t, settlement.AgentID("agent-1"), status.AgentID)
	require.Len(t, status.PeriodsWithCashback, 2)

	assert.Equal(t, 1, status.PeriodsWithCashback[0].Period.Number)
	assert.Equal(t, "250.00", status.PeriodsWithCashback[0].Revenue.StringFixed(2))
	assert.Equal(t, "37.50", status.PeriodsWithCashback[0].Cashback.StringFixed(2))

	assert.Equal(t, 2, status.PeriodsWithCashback[1].Period.Number)
	assert.Equal(t, "30.00", status.PeriodsWithCashback[1].Cashback.StringFixed(2))

	assert.Equal(t, "450.00", status.TotalRevenue.StringFixed(2))
	assert.Equal(t, "67.50", status.TotalCashback.StringFixed(2))
}

func TestUnprocessedCashbackByAgent_TotalIsSumOfRoundedPeriods(t *testing.T) {
	// GIVEN: Per-period revenues whose individual cashbacks round (33.33 and
	//        66.67 both produce repeating thirds times 0.15)
	// WHEN: Aggregating
	// THEN: The total equals the sum of the rounded per-period amounts, so
	//       ledger entries add up to what was displayed

	cfg := settlement.DefaultConfig()
	p1day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
	p2day := time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC)

	inspections := []settlement.Inspection{
		completedInspection("i-1", "agent-1", "33.33", p1day),
		completedInspection("i-2", "agent-1", "66.67", p2day),
	}

	statuses := cfg.UnprocessedCashbackByAgent(inspections, nil)
	require.Len(t, statuses, 1)

	status := statuses[0]
	expected := status.PeriodsWithCashback[0].Cashback.Add(status.PeriodsWithCashback[1].Cashback)
	assert.True(t, status.TotalCashback.Equal(expected))
}

func TestUnprocessedCashbackByAgent_ExcludesProcessed(t *testing.T) {
	// GIVEN: One of two inspections already in a ledger entry
	// WHEN: Aggregating
	// THEN: Only the unprocessed inspection is owed

	cfg := settlement.DefaultConfig()
	day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)

	inspections := []settlement.Inspection{
		completedInspection("i-1", "agent-1", "100", day),
		completedInspection("i-2", "agent-1", "150", day),
	}
	processed := []settlement.ProcessedAgentCashback{{
		ID:            "pc-1",
		AgentID:       "agent-1",
		PeriodNumber:  1,
		InspectionIDs: []settlement.InspectionID{"i-1"},
	}}

	statuses := cfg.UnprocessedCashbackByAgent(inspections, processed)
	require.Len(t, statuses, 1)
	require.Len(t, statuses[0].PeriodsWithCashback, 1)
	assert.Equal(t, []settlement.InspectionID{"i-2"}, idsOf(statuses[0].PeriodsWithCashback[0].Inspections))
	assert.Equal(t, "150.00", statuses[0].TotalRevenue.StringFixed(2))
}

func TestUnprocessedCashbackByAgent_FullyProcessedAgentOmitted(t *testing.T) {
	// GIVEN: Every inspection for the agent already processed
	// WHEN: Aggregating
	// THEN: The agent does not appear at all

	cfg := settlement.DefaultConfig()
	day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)

	inspections := []settlement.Inspection{completedInspection("i-1", "agent-1", "100", day)}
	processed := []settlement.ProcessedAgentCashback{{
		ID:            "pc-1",
		AgentID:       "agent-1",
		InspectionIDs: []settlement.InspectionID{"i-1"},
	}}

	statuses := cfg.UnprocessedCashbackByAgent(inspections, processed)
	assert.Empty(t, statuses)
}

// =============================================================================
// PROCESSING TESTS
// =============================================================================

func TestCreateProcessedCashback_OneEntryPerPeriod(t *testing.T) {
	// GIVEN: An agent owed cashback across two periods
	// WHEN: Processing
	// THEN: Two ledger entries, each carrying its own period's ids and amount

	cfg := settlement.DefaultConfig()
	p1day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
	p2day := time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, time.February, 1, 9, 0, 0, 0, time.UTC)

	inspections := []settlement.Inspection{
		completedInspection("i-1", "agent-1", "100", p1day),
		completedInspection("i-2", "agent-1", "200", p2day),
	}
	statuses := cfg.UnprocessedCashbackByAgent(inspections, nil)
	require.Len(t, statuses, 1)

	entries := settlement.CreateProcessedCashback(statuses[0], "ops@propora", "backlog run", now)
	require.Len(t, entries, 2)

	assert.Equal(t, 1, entries[0].PeriodNumber)
	assert.Equal(t, []settlement.InspectionID{"i-1"}, entries[0].InspectionIDs)
	assert.Equal(t, "15.00", entries[0].CashbackAmount.StringFixed(2))

	assert.Equal(t, 2, entries[1].PeriodNumber)
	assert.Equal(t, "30.00", entries[1].CashbackAmount.StringFixed(2))

	for _, entry := range entries {
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, "ops@propora", entry.ProcessedBy)
		assert.Equal(t, now, entry.ProcessedAt)
	}
}

func TestCreateProcessedCashback_MakesInspectionsIneligible(t *testing.T) {
	// GIVEN: An agent's cashback processed into ledger entries
	// WHEN: Re-aggregating with those entries
	// THEN: Nothing is owed any more

	cfg := settlement.DefaultConfig()
	day := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, time.February, 1, 9, 0, 0, 0, time.UTC)

	inspections := []settlement.Inspection{
		completedInspection("i-1", "agent-1", "100", day),
		completedInspection("i-2", "agent-1", "200", day),
	}

	statuses := cfg.UnprocessedCashbackByAgent(inspections, nil)
	require.Len(t, statuses, 1)
	entries := settlement.CreateProcessedCashback(statuses[0], "ops", "", now)

	after := cfg.UnprocessedCashbackByAgent(inspections, entries)
	assert.Empty(t, after)
}

func TestValidateProcessing_GuardWindow(t *testing.T) {
	// GIVEN: A ledger entry for the agent created two minutes ago
	// WHEN: Validating a new processing action
	// THEN: Rejected as in flight; an entry older than the window passes

	now := time.Date(2024, time.February, 1, 9, 0, 0, 0, time.UTC)
	recent := []settlement.ProcessedAgentCashback{{
		ID:          "pc-1",
		AgentID:     "agent-1",
		ProcessedAt: now.Add(-2 * time.Minute),
	}}

	err := settlement.ValidateProcessing("agent-1", recent, now)
	require.Error(t, err)
	var inFlight *settlement.ProcessingInFlightError
	assert.ErrorAs(t, err, &inFlight)
	assert.ErrorIs(t, err, settlement.ErrProcessingInFlight)

	old := []settlement.ProcessedAgentCashback{{
		ID:          "pc-2",
		AgentID:     "agent-1",
		ProcessedAt: now.Add(-settlement.ProcessingGuardWindow - time.Minute),
	}}
	assert.NoError(t, settlement.ValidateProcessing("agent-1", old, now))
}

func TestValidateProcessing_OtherAgentsIgnored(t *testing.T) {
	// GIVEN: A fresh ledger entry for a different agent
	// WHEN: Validating agent-1
	// THEN: No conflict

	now := time.Date(2024, time.February, 1, 9, 0, 0, 0, time.UTC)
	processed := []settlement.ProcessedAgentCashback{{
		ID:          "pc-1",
		AgentID:     "agent-2",
		ProcessedAt: now.Add(-time.Minute),
	}}

	assert.NoError(t, settlement.ValidateProcessing("agent-1", processed, now))
}

func idsOf(inspections []settlement.Inspection) []settlement.InspectionID {
	ids := make([]settlement.InspectionID, len(inspections))
	for i, insp := range inspections {
		ids[i] = insp.ID
	}
	return ids
}
