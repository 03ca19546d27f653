package settlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propora/settlement-engine/settlement"
)

// =============================================================================
// DERIVED STATUS TESTS
// =============================================================================

func sentInvoice(dueDate time.Time) settlement.Invoice {
	sentAt := dueDate.AddDate(0, 0, -30)
	return settlement.Invoice{
		ID:      "inv-1",
		AgentID: "agent-1",
		Status:  settlement.StatusSent,
		SentAt:  &sentAt,
		DueDate: dueDate,
	}
}

func TestEffectiveStatus_SentPastDueIsOverdue(t *testing.T) {
	// GIVEN: A sent invoice whose due date has passed
	// WHEN: Resolving status
	// THEN: overdue, while the persisted status stays sent

	due := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	inv := sentInvoice(due)

	status := settlement.EffectiveStatus(inv, due.AddDate(0, 0, 1))

	assert.Equal(t, settlement.StatusOverdue, status)
	assert.Equal(t, settlement.StatusSent, inv.Status)
}

func TestEffectiveStatus_SentBeforeDueStaysSent(t *testing.T) {
	// GIVEN: A sent invoice with the due date still in the future
	// WHEN: Resolving status
	// THEN: sent

	due := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	status := settlement.EffectiveStatus(sentInvoice(due), due.AddDate(0, 0, -1))

	assert.Equal(t, settlement.StatusSent, status)
}

func TestEffectiveStatus_PaidWinsOverOverdue(t *testing.T) {
	// GIVEN: An invoice paid after its due date
	// WHEN: Resolving status well past due
	// THEN: paid, never overdue

	due := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	inv := sentInvoice(due)
	paidAt := due.AddDate(0, 0, 5)
	inv.Status = settlement.StatusPaid
	inv.PaidAt = &paidAt

	status := settlement.EffectiveStatus(inv, due.AddDate(0, 0, 60))
	assert.Equal(t, settlement.StatusPaid, status)
}

func TestEffectiveStatus_DraftNeverOverdue(t *testing.T) {
	// GIVEN: A draft invoice past its due date
	// WHEN: Resolving status
	// THEN: draft; overdue only applies to sent invoices

	due := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	inv := settlement.Invoice{ID: "inv-1", Status: settlement.StatusDraft, DueDate: due}

	status := settlement.EffectiveStatus(inv, due.AddDate(0, 0, 10))
	assert.Equal(t, settlement.StatusDraft, status)
}

// =============================================================================
// STATUS TRANSITION TESTS
// =============================================================================

func TestMarkSent_FromDraft(t *testing.T) {
	// GIVEN: A draft invoice
	// WHEN: Marking it sent
	// THEN: Status becomes sent with SentAt stamped in UTC

	now := time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC)
	inv := settlement.Invoice{ID: "inv-1", Status: settlement.StatusDraft}

	updated, err := settlement.MarkSent(inv, now)
	require.NoError(t, err)

	assert.Equal(t, settlement.StatusSent, updated.Status)
	require.NotNil(t, updated.SentAt)
	assert.Equal(t, now, *updated.SentAt)
}

func TestMarkSent_FromPaidRejected(t *testing.T) {
	// GIVEN: A paid invoice
	// WHEN: Marking it sent
	// THEN: ErrInvalidTransition

	paidAt := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	inv := settlement.Invoice{ID: "inv-1", Status: settlement.StatusPaid, PaidAt: &paidAt}

	_, err := settlement.MarkSent(inv, paidAt.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition)
}

func TestMarkPaid_FromSent(t *testing.T) {
	// GIVEN: A sent invoice
	// WHEN: Marking it paid
	// THEN: Status becomes paid with PaidAt stamped

	due := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	now := due.AddDate(0, 0, -5)

	updated, err := settlement.MarkPaid(sentInvoice(due), now)
	require.NoError(t, err)

	assert.Equal(t, settlement.StatusPaid, updated.Status)
	require.NotNil(t, updated.PaidAt)
	assert.Equal(t, now, *updated.PaidAt)
}

func TestMarkPaid_AlreadyPaidIsNoOp(t *testing.T) {
	// GIVEN: An already paid invoice
	// WHEN: Marking it paid again
	// THEN: No error, and the original PaidAt is preserved

	firstPaid := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
	inv := settlement.Invoice{ID: "inv-1", Status: settlement.StatusPaid, PaidAt: &firstPaid}

	updated, err := settlement.MarkPaid(inv, firstPaid.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, firstPaid, *updated.PaidAt)
}

func TestMarkPaid_FromDraftRejected(t *testing.T) {
	// GIVEN: A draft invoice
	// WHEN: Marking it paid
	// THEN: ErrInvalidTransition; drafts must be sent first

	inv := settlement.Invoice{ID: "inv-1", Status: settlement.StatusDraft}

	_, err := settlement.MarkPaid(inv, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, settlement.ErrInvalidTransition)
}
