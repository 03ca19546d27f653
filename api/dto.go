/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract. Money is serialized as fixed two-decimal strings;
  decimals never pass through float64 on the way out.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/propora/settlement-engine/settlement"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// InspectionDTO represents an inspection snapshot record.
type InspectionDTO struct {
	ID            string  `json:"id"`
	AgentID       string  `json:"agent_id"`
	ClerkID       string  `json:"clerk_id,omitempty"`
	Price         string  `json:"price"`
	Status        string  `json:"status"`
	ScheduledDate string  `json:"scheduled_date"`
	CompletedDate *string `json:"completed_date,omitempty"`
}

// SaveInspectionRequest is the request to upsert an inspection snapshot.
type SaveInspectionRequest struct {
	ID            string  `json:"id"`
	AgentID       string  `json:"agent_id"`
	ClerkID       string  `json:"clerk_id,omitempty"`
	Price         string  `json:"price"`
	Status        string  `json:"status"`
	ScheduledDate string  `json:"scheduled_date"`
	CompletedDate *string `json:"completed_date,omitempty"`
}

// PeriodDTO represents a billing period.
type PeriodDTO struct {
	Number int    `json:"number"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// InvoiceDTO represents an invoice. Status is the effective status resolved
// at read time; StoredStatus is what is actually persisted.
type InvoiceDTO struct {
	ID              string   `json:"id"`
	AgentID         string   `json:"agent_id"`
	PeriodNumber    int      `json:"period_number"`
	PeriodStart     string   `json:"period_start"`
	PeriodEnd       string   `json:"period_end"`
	InspectionIDs   []string `json:"inspection_ids"`
	TotalAmount     string   `json:"total_amount"`
	AgentCashback   string   `json:"agent_cashback"`
	ClerkCommission string   `json:"clerk_commission"`
	NetAmount       string   `json:"net_amount"`
	Status          string   `json:"status"`
	StoredStatus    string   `json:"stored_status"`
	GeneratedAt     string   `json:"generated_at"`
	SentAt          *string  `json:"sent_at,omitempty"`
	PaidAt          *string  `json:"paid_at,omitempty"`
	DueDate         string   `json:"due_date"`
}

// GenerateResultDTO is the response to a generation request. Generated is
// false when there was nothing to generate, which is informational, not an
// error.
type GenerateResultDTO struct {
	Generated bool         `json:"generated"`
	Message   string       `json:"message,omitempty"`
	Invoices  []InvoiceDTO `json:"invoices,omitempty"`
}

// PeriodCashbackDTO represents one period's unprocessed cashback for an agent.
type PeriodCashbackDTO struct {
	Period        PeriodDTO `json:"period"`
	InspectionIDs []string  `json:"inspection_ids"`
	Revenue       string    `json:"revenue"`
	Cashback      string    `json:"cashback"`
}

// AgentCashbackDTO aggregates everything still owed to one agent.
type AgentCashbackDTO struct {
	AgentID       string              `json:"agent_id"`
	Periods       []PeriodCashbackDTO `json:"periods"`
	TotalRevenue  string              `json:"total_revenue"`
	TotalCashback string              `json:"total_cashback"`
}

// ProcessCashbackRequest is the request to process an agent's cashback.
type ProcessCashbackRequest struct {
	ProcessedBy string `json:"processed_by"`
	Notes       string `json:"notes,omitempty"`
}

// ProcessedCashbackDTO represents a cashback ledger entry.
type ProcessedCashbackDTO struct {
	ID             string   `json:"id"`
	AgentID        string   `json:"agent_id"`
	PeriodNumber   int      `json:"period_number"`
	PeriodStart    string   `json:"period_start"`
	PeriodEnd      string   `json:"period_end"`
	InspectionIDs  []string `json:"inspection_ids"`
	TotalRevenue   string   `json:"total_revenue"`
	CashbackAmount string   `json:"cashback_amount"`
	ProcessedAt    string   `json:"processed_at"`
	ProcessedBy    string   `json:"processed_by"`
	Notes          string   `json:"notes,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPeriodDTO(p settlement.BillingPeriod) PeriodDTO {
	return PeriodDTO{
		Number: p.Number,
		Start:  p.Start.Format(time.RFC3339),
		End:    p.End.Format(time.RFC3339),
	}
}

func toInspectionDTO(insp settlement.Inspection) InspectionDTO {
	dto := InspectionDTO{
		ID:            string(insp.ID),
		AgentID:       string(insp.AgentID),
		ClerkID:       string(insp.ClerkID),
		Price:         insp.Price.StringFixed(2),
		Status:        string(insp.Status),
		ScheduledDate: insp.ScheduledDate.Format(time.RFC3339),
	}
	if insp.CompletedDate != nil {
		s := insp.CompletedDate.Format(time.RFC3339)
		dto.CompletedDate = &s
	}
	return dto
}

func toInvoiceDTO(inv settlement.Invoice, now time.Time) InvoiceDTO {
	dto := InvoiceDTO{
		ID:              string(inv.ID),
		AgentID:         string(inv.AgentID),
		PeriodNumber:    inv.PeriodNumber,
		PeriodStart:     inv.BillingPeriodStart.Format(time.RFC3339),
		PeriodEnd:       inv.BillingPeriodEnd.Format(time.RFC3339),
		InspectionIDs:   inspectionIDStrings(inv.InspectionIDs),
		TotalAmount:     inv.TotalAmount.StringFixed(2),
		AgentCashback:   inv.AgentCashback.StringFixed(2),
		ClerkCommission: inv.ClerkCommission.StringFixed(2),
		NetAmount:       inv.NetAmount.StringFixed(2),
		Status:          string(settlement.EffectiveStatus(inv, now)),
		StoredStatus:    string(inv.Status),
		GeneratedAt:     inv.GeneratedAt.Format(time.RFC3339),
		DueDate:         inv.DueDate.Format(time.RFC3339),
	}
	if inv.SentAt != nil {
		s := inv.SentAt.Format(time.RFC3339)
		dto.SentAt = &s
	}
	if inv.PaidAt != nil {
		s := inv.PaidAt.Format(time.RFC3339)
		dto.PaidAt = &s
	}
	return dto
}

func toAgentCashbackDTO(status settlement.AgentCashbackStatus) AgentCashbackDTO {
	dto := AgentCashbackDTO{
		AgentID:       string(status.AgentID),
		TotalRevenue:  status.TotalRevenue.StringFixed(2),
		TotalCashback: status.TotalCashback.StringFixed(2),
	}
	for _, pc := range status.PeriodsWithCashback {
		ids := make([]string, len(pc.Inspections))
		for i, insp := range pc.Inspections {
			ids[i] = string(insp.ID)
		}
		dto.Periods = append(dto.Periods, PeriodCashbackDTO{
			Period:        toPeriodDTO(pc.Period),
			InspectionIDs: ids,
			Revenue:       pc.Revenue.StringFixed(2),
			Cashback:      pc.Cashback.StringFixed(2),
		})
	}
	return dto
}

func toProcessedCashbackDTO(entry settlement.ProcessedAgentCashback) ProcessedCashbackDTO {
	return ProcessedCashbackDTO{
		ID:             entry.ID,
		AgentID:        string(entry.AgentID),
		PeriodNumber:   entry.PeriodNumber,
		PeriodStart:    entry.BillingPeriodStart.Format(time.RFC3339),
		PeriodEnd:      entry.BillingPeriodEnd.Format(time.RFC3339),
		InspectionIDs:  inspectionIDStrings(entry.InspectionIDs),
		TotalRevenue:   entry.TotalRevenue.StringFixed(2),
		CashbackAmount: entry.CashbackAmount.StringFixed(2),
		ProcessedAt:    entry.ProcessedAt.Format(time.RFC3339),
		ProcessedBy:    entry.ProcessedBy,
		Notes:          entry.Notes,
	}
}

func inspectionIDStrings(ids []settlement.InspectionID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
