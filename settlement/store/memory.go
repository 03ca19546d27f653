// Package store provides an in-memory settlement.Store for testing and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/propora/settlement-engine/settlement"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	inspections map[settlement.InspectionID]settlement.Inspection
	invoices    map[settlement.InvoiceID]settlement.Invoice
	cashback    []settlement.ProcessedAgentCashback

	// settled mirrors the sqlite unique index on (kind, inspection_id).
	settled map[settlement.Kind]settlement.SettledSet
	// invoiced mirrors the unique index on (scope, period_number).
	invoiced map[settlement.AgentID]settlement.PeriodSet
	// cashbackPeriods mirrors the unique index on processed_cashback
	// (agent_id, period_number).
	cashbackPeriods map[settlement.AgentID]settlement.PeriodSet
}

func NewMemory() *Memory {
	return &Memory{
		inspections: make(map[settlement.InspectionID]settlement.Inspection),
		invoices:    make(map[settlement.InvoiceID]settlement.Invoice),
		settled:     make(map[settlement.Kind]settlement.SettledSet),
		invoiced:    make(map[settlement.AgentID]settlement.PeriodSet),

		cashbackPeriods: make(map[settlement.AgentID]settlement.PeriodSet),
	}
}

var _ settlement.Store = (*Memory)(nil)

func (m *Memory) SaveInspection(_ context.Context, insp settlement.Inspection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inspections[insp.ID] = insp
	return nil
}

func (m *Memory) ListInspections(_ context.Context) ([]settlement.Inspection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]settlement.Inspection, 0, len(m.inspections))
	for _, insp := range m.inspections {
		result = append(result, insp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		di, dj := result[i].SettlementDate(), result[j].SettlementDate()
		if di.Equal(dj) {
			return result[i].ID < result[j].ID
		}
		return di.Before(dj)
	})
	return result, nil
}

func (m *Memory) GetInspection(_ context.Context, id settlement.InspectionID) (*settlement.Inspection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	insp, ok := m.inspections[id]
	if !ok {
		return nil, settlement.ErrInspectionNotFound
	}
	return &insp, nil
}

// SaveInvoice writes the invoice and its settled rows as one atomic unit,
// rejecting the whole write on any uniqueness collision.
func (m *Memory) SaveInvoice(_ context.Context, inv settlement.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kind := inv.Kind()
	if m.invoiced[inv.AgentID][inv.PeriodNumber] {
		return &settlement.DuplicateSettlementError{Kind: kind, AgentID: inv.AgentID, PeriodNumber: inv.PeriodNumber}
	}
	for _, id := range inv.InspectionIDs {
		if m.settled[kind][id] {
			return &settlement.DuplicateSettlementError{Kind: kind, AgentID: inv.AgentID, PeriodNumber: inv.PeriodNumber}
		}
	}

	m.invoices[inv.ID] = inv
	if m.invoiced[inv.AgentID] == nil {
		m.invoiced[inv.AgentID] = make(settlement.PeriodSet)
	}
	m.invoiced[inv.AgentID][inv.PeriodNumber] = true
	m.markSettledLocked(kind, inv.InspectionIDs)
	return nil
}

func (m *Memory) UpdateInvoiceStatus(_ context.Context, inv settlement.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.invoices[inv.ID]
	if !ok {
		return settlement.ErrInvoiceNotFound
	}
	stored.Status = inv.Status
	stored.SentAt = inv.SentAt
	stored.PaidAt = inv.PaidAt
	m.invoices[inv.ID] = stored
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id settlement.InvoiceID) (*settlement.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return nil, settlement.ErrInvoiceNotFound
	}
	return &inv, nil
}

func (m *Memory) ListInvoices(_ context.Context) ([]settlement.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]settlement.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		result = append(result, inv)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].GeneratedAt.Equal(result[j].GeneratedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].GeneratedAt.After(result[j].GeneratedAt)
	})
	return result, nil
}

func (m *Memory) InvoicedPeriods(_ context.Context, scope settlement.AgentID) (settlement.PeriodSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(settlement.PeriodSet, len(m.invoiced[scope]))
	for n := range m.invoiced[scope] {
		result[n] = true
	}
	return result, nil
}

// SaveProcessedCashback writes the whole batch or none of it.
func (m *Memory) SaveProcessedCashback(_ context.Context, entries []settlement.ProcessedAgentCashback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check everything before writing anything (atomic batch).
	for _, entry := range entries {
		if m.cashbackPeriods[entry.AgentID][entry.PeriodNumber] {
			return &settlement.DuplicateSettlementError{
				Kind: settlement.KindCashback, AgentID: entry.AgentID, PeriodNumber: entry.PeriodNumber,
			}
		}
		for _, id := range entry.InspectionIDs {
			if m.settled[settlement.KindCashback][id] {
				return &settlement.DuplicateSettlementError{
					Kind: settlement.KindCashback, AgentID: entry.AgentID, PeriodNumber: entry.PeriodNumber,
				}
			}
		}
	}

	for _, entry := range entries {
		m.cashback = append(m.cashback, entry)
		if m.cashbackPeriods[entry.AgentID] == nil {
			m.cashbackPeriods[entry.AgentID] = make(settlement.PeriodSet)
		}
		m.cashbackPeriods[entry.AgentID][entry.PeriodNumber] = true
		m.markSettledLocked(settlement.KindCashback, entry.InspectionIDs)
	}
	return nil
}

func (m *Memory) ListProcessedCashback(_ context.Context, agent *settlement.AgentID) ([]settlement.ProcessedAgentCashback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []settlement.ProcessedAgentCashback
	for _, entry := range m.cashback {
		if agent != nil && entry.AgentID != *agent {
			continue
		}
		result = append(result, entry)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ProcessedAt.Equal(result[j].ProcessedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ProcessedAt.After(result[j].ProcessedAt)
	})
	return result, nil
}

func (m *Memory) SettledInspectionIDs(_ context.Context, kind settlement.Kind) (settlement.SettledSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(settlement.SettledSet, len(m.settled[kind]))
	for id := range m.settled[kind] {
		result[id] = true
	}
	return result, nil
}

func (m *Memory) markSettledLocked(kind settlement.Kind, ids []settlement.InspectionID) {
	if m.settled[kind] == nil {
		m.settled[kind] = make(settlement.SettledSet)
	}
	for _, id := range ids {
		m.settled[kind][id] = true
	}
}
