package settlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propora/settlement-engine/settlement"
)

// =============================================================================
// PERIOD ARITHMETIC TESTS
// =============================================================================

func TestPeriodByNumber_FirstPeriod(t *testing.T) {
	// GIVEN: The default 14-day calendar anchored to 2024-01-01
	// WHEN: Asking for period 1
	// THEN: It runs 2024-01-01 00:00:00 through 2024-01-14 23:59:59 UTC

	cfg := settlement.DefaultConfig()
	p := cfg.PeriodByNumber(1)

	assert.Equal(t, 1, p.Number)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2024, time.January, 14, 23, 59, 59, 0, time.UTC), p.End)
}

func TestPeriodForDate_SecondPeriod(t *testing.T) {
	// GIVEN: A date of 2024-01-20
	// WHEN: Resolving its period
	// THEN: It falls in period 2, starting 2024-01-15

	cfg := settlement.DefaultConfig()
	p := cfg.PeriodForDate(time.Date(2024, time.January, 20, 10, 30, 0, 0, time.UTC))

	assert.Equal(t, 2, p.Number)
	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), p.Start)
}

func TestPeriods_ContiguousAndNonOverlapping(t *testing.T) {
	// GIVEN: The default calendar
	// WHEN: Walking the first 50 periods
	// THEN: Each period starts exactly one second after the previous ends,
	//       is exactly 14 days long, and round-trips through PeriodForDate

	cfg := settlement.DefaultConfig()
	for n := 1; n < 50; n++ {
		p := cfg.PeriodByNumber(n)
		next := cfg.PeriodByNumber(n + 1)

		assert.Equal(t, p.End.Add(time.Second), next.Start, "period %d must abut period %d", n, n+1)
		assert.Equal(t, 14, int(next.Start.Sub(p.Start).Hours()/24), "period %d must be 14 days", n)

		require.Equal(t, n, cfg.PeriodForDate(p.Start).Number)
		require.Equal(t, n, cfg.PeriodForDate(p.End).Number)
	}
}

func TestPeriodForDate_BoundaryInstants(t *testing.T) {
	// GIVEN: The instant one second before a period boundary and the boundary itself
	// WHEN: Resolving their periods
	// THEN: They land in adjacent periods, never the same one

	cfg := settlement.DefaultConfig()
	boundary := cfg.PeriodByNumber(3).Start

	before := cfg.PeriodForDate(boundary.Add(-time.Second))
	at := cfg.PeriodForDate(boundary)

	assert.Equal(t, 2, before.Number)
	assert.Equal(t, 3, at.Number)
}

func TestPeriodForDate_RoundTripForArbitraryInstants(t *testing.T) {
	// GIVEN: Instants at awkward offsets, including fractional seconds inside
	//        a period's final second
	// WHEN: Resolving each instant's period
	// THEN: The period always contains the instant it was resolved from

	cfg := settlement.DefaultConfig()
	instants := []time.Time{
		time.Date(2024, time.January, 14, 23, 59, 59, 500_000_000, time.UTC),
		time.Date(2024, time.January, 14, 23, 59, 59, 999_999_999, time.UTC),
		time.Date(2024, time.January, 15, 0, 0, 0, 1, time.UTC),
		time.Date(2024, time.March, 3, 12, 34, 56, 789_000_000, time.UTC),
		time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.December, 31, 23, 59, 59, 250_000_000, time.UTC),
	}
	for _, d := range instants {
		p := cfg.PeriodForDate(d)
		assert.True(t, p.Contains(d), "period %d must contain %s", p.Number, d)
	}

	// Sweep a full period at hour steps with a sub-second offset.
	start := cfg.PeriodByNumber(2).Start
	for h := 0; h < 14*24; h++ {
		d := start.Add(time.Duration(h)*time.Hour + 500*time.Millisecond)
		p := cfg.PeriodForDate(d)
		require.Equal(t, 2, p.Number)
		require.True(t, p.Contains(d))
	}
}

func TestSelectEligible_SubSecondCompletionStaysInPeriod(t *testing.T) {
	// GIVEN: An inspection completed half a second before a period boundary
	// WHEN: Selecting for the period containing that day
	// THEN: It is eligible there, and in no other period

	cfg := settlement.DefaultConfig()
	completed := time.Date(2024, time.January, 14, 23, 59, 59, 500_000_000, time.UTC)
	c := completed
	insp := settlement.Inspection{
		ID:            "i-edge",
		AgentID:       "agent-1",
		Price:         settlement.MustParseDecimal("100"),
		Status:        settlement.InspectionCompleted,
		ScheduledDate: completed.AddDate(0, 0, -1),
		CompletedDate: &c,
	}

	p1 := settlement.SelectEligible([]settlement.Inspection{insp}, cfg.PeriodByNumber(1), nil, nil)
	p2 := settlement.SelectEligible([]settlement.Inspection{insp}, cfg.PeriodByNumber(2), nil, nil)

	require.Len(t, p1, 1)
	assert.Empty(t, p2)
}

func TestPeriodForDate_BeforeEpochClampsToFirst(t *testing.T) {
	// GIVEN: A date before the 2024-01-01 epoch
	// WHEN: Resolving its period
	// THEN: It clamps to period 1 rather than going negative

	cfg := settlement.DefaultConfig()
	p := cfg.PeriodForDate(time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 1, p.Number)
}

func TestPeriodContains_TimezoneIndependent(t *testing.T) {
	// GIVEN: An instant that is Jan 14 in UTC but already Jan 15 in UTC+12
	// WHEN: Checking membership
	// THEN: Membership follows the UTC day, not the local one

	cfg := settlement.DefaultConfig()
	p1 := cfg.PeriodByNumber(1)

	loc := time.FixedZone("UTC+12", 12*3600)
	lateLocal := time.Date(2024, time.January, 15, 9, 0, 0, 0, loc) // 2024-01-14 21:00 UTC

	assert.True(t, p1.Contains(lateLocal))
}

func TestPeriodsBefore_NeverBelowOne(t *testing.T) {
	// GIVEN: The current period is 3
	// WHEN: Asking for the 6 preceding periods
	// THEN: Only periods 2 and 1 come back, newest first

	cfg := settlement.DefaultConfig()
	prior := cfg.PeriodsBefore(cfg.PeriodByNumber(3), 6)

	require.Len(t, prior, 2)
	assert.Equal(t, 2, prior[0].Number)
	assert.Equal(t, 1, prior[1].Number)
}
