/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the settlement engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine and
  the store.

ENDPOINTS:
  Inspections:
    GET    /api/inspections               List snapshot records
    POST   /api/inspections               Upsert a snapshot record

  Periods:
    GET    /api/periods/current           Current billing period
    GET    /api/periods/{number}          Period by number
    GET    /api/periods/recent            Recent periods, newest first

  Invoices:
    POST   /api/invoices/combined         Generate combined invoice
    POST   /api/invoices/agent/{agentID}  Generate per-agent invoice
    POST   /api/invoices/all              Generate all per-agent invoices
    GET    /api/invoices                  List with effective status
    GET    /api/invoices/{id}             Get one invoice
    POST   /api/invoices/{id}/send        Mark sent
    POST   /api/invoices/{id}/pay         Mark paid
    GET    /api/invoices/{id}/pdf         Invoice PDF
    GET    /api/invoices/{id}/xlsx        Invoice workbook

  Cashback:
    GET    /api/cashback/unprocessed      Unprocessed cashback by agent
    POST   /api/cashback/process/{agentID} Process an agent's cashback
    GET    /api/cashback/processed        Ledger entries
    GET    /api/cashback/report.xlsx      Unprocessed cashback workbook

ERROR HANDLING:
  - 400: Invalid input
  - 404: Record not found
  - 409: Duplicate settlement lost a concurrent race, or a cashback
         processing action is already in flight
  - 500: Internal errors
  "Nothing to generate" is 200 with generated=false, NOT an error: repeated
  Generate presses must be safe and informational.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/propora/settlement-engine/export"
	"github.com/propora/settlement-engine/settlement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     settlement.Store
	Config    settlement.Config
	Generator *settlement.Generator

	// Now is the clock. Overridable in tests; every period-dependent
	// computation flows from this single read per request.
	Now func() time.Time
}

// NewHandler creates a new handler with the given store.
func NewHandler(store settlement.Store) *Handler {
	cfg := settlement.DefaultConfig()
	return &Handler{
		Store:     store,
		Config:    cfg,
		Generator: settlement.NewGenerator(cfg),
		Now:       time.Now,
	}
}

// =============================================================================
// INSPECTION HANDLERS
// =============================================================================

// ListInspections returns the full snapshot.
func (h *Handler) ListInspections(w http.ResponseWriter, r *http.Request) {
	insps, err := h.Store.ListInspections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list inspections", err)
		return
	}

	dtos := make([]InspectionDTO, len(insps))
	for i, insp := range insps {
		dtos[i] = toInspectionDTO(insp)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveInspection upserts a snapshot record.
func (h *Handler) SaveInspection(w http.ResponseWriter, r *http.Request) {
	var req SaveInspectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "id and agent_id are required", nil)
		return
	}

	status := settlement.InspectionStatus(req.Status)
	switch status {
	case settlement.InspectionScheduled, settlement.InspectionCompleted, settlement.InspectionCancelled:
	default:
		writeError(w, http.StatusBadRequest, "Invalid status (use scheduled, completed, or cancelled)", nil)
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid price (use a non-negative decimal string)", err)
		return
	}
	scheduled, err := time.Parse(time.RFC3339, req.ScheduledDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scheduled_date (use RFC3339)", err)
		return
	}

	insp := settlement.Inspection{
		ID:            settlement.InspectionID(req.ID),
		AgentID:       settlement.AgentID(req.AgentID),
		ClerkID:       settlement.ClerkID(req.ClerkID),
		Price:         price,
		Status:        status,
		ScheduledDate: scheduled,
	}
	if req.CompletedDate != nil {
		completed, err := time.Parse(time.RFC3339, *req.CompletedDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid completed_date (use RFC3339)", err)
			return
		}
		insp.CompletedDate = &completed
	}

	if err := h.Store.SaveInspection(r.Context(), insp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save inspection", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInspectionDTO(insp))
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// GetCurrentPeriod returns the billing period containing now.
func (h *Handler) GetCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPeriodDTO(h.Config.CurrentPeriod(h.Now())))
}

// GetPeriodByNumber returns a period by its 1-based number.
func (h *Handler) GetPeriodByNumber(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "Invalid period number", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(h.Config.PeriodByNumber(n)))
}

// ListRecentPeriods returns the current period and up to ?count= preceding
// ones, newest first.
func (h *Handler) ListRecentPeriods(w http.ResponseWriter, r *http.Request) {
	count := 6
	if raw := r.URL.Query().Get("count"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			count = parsed
		}
	}

	current := h.Config.CurrentPeriod(h.Now())
	dtos := []PeriodDTO{toPeriodDTO(current)}
	for _, p := range h.Config.PeriodsBefore(current, count) {
		dtos = append(dtos, toPeriodDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// periodFromQuery resolves the ?period= query param, defaulting to the
// period containing now.
func (h *Handler) periodFromQuery(r *http.Request, now time.Time) (settlement.BillingPeriod, error) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return h.Config.CurrentPeriod(now), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return settlement.BillingPeriod{}, errors.New("invalid period number")
	}
	return h.Config.PeriodByNumber(n), nil
}

// =============================================================================
// INVOICE GENERATION HANDLERS
// =============================================================================

// GenerateCombinedInvoice generates the combined invoice for a period.
// POST /api/invoices/combined?period=N
func (h *Handler) GenerateCombinedInvoice(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	period, err := h.periodFromQuery(r, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx := r.Context()
	inspections, err := h.Store.ListInspections(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load inspections", err)
		return
	}
	settled, err := h.Store.SettledInspectionIDs(ctx, settlement.KindCombinedInvoice)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	prior, err := h.Store.InvoicedPeriods(ctx, settlement.CombinedScope)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load invoiced periods", err)
		return
	}

	inv, err := h.Generator.GenerateCombinedInvoice(period, inspections, settled, prior, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate invoice", err)
		return
	}
	h.finishGeneration(w, r, now, inv)
}

// GenerateAgentInvoice generates one agent's invoice for a period.
// POST /api/invoices/agent/{agentID}?period=N
func (h *Handler) GenerateAgentInvoice(w http.ResponseWriter, r *http.Request) {
	agentID := settlement.AgentID(chi.URLParam(r, "agentID"))
	now := h.Now()
	period, err := h.periodFromQuery(r, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx := r.Context()
	inspections, err := h.Store.ListInspections(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load inspections", err)
		return
	}
	settled, err := h.Store.SettledInspectionIDs(ctx, settlement.KindAgentInvoice)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	prior, err := h.Store.InvoicedPeriods(ctx, agentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load invoiced periods", err)
		return
	}

	inv, err := h.Generator.GenerateAgentInvoice(period, agentID, inspections, settled, prior, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate invoice", err)
		return
	}
	h.finishGeneration(w, r, now, inv)
}

// GenerateAllAgentInvoices generates one invoice per agent with eligible
// inspections in a period.
// POST /api/invoices/all?period=N
func (h *Handler) GenerateAllAgentInvoices(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	period, err := h.periodFromQuery(r, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx := r.Context()
	inspections, err := h.Store.ListInspections(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load inspections", err)
		return
	}
	settled, err := h.Store.SettledInspectionIDs(ctx, settlement.KindAgentInvoice)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}

	eligible := settlement.SelectEligible(inspections, period, nil, settled)
	priorByAgent := make(map[settlement.AgentID]settlement.PeriodSet)
	for _, agentID := range settlement.AgentsWithEligible(eligible) {
		prior, err := h.Store.InvoicedPeriods(ctx, agentID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load invoiced periods", err)
			return
		}
		priorByAgent[agentID] = prior
	}

	invoices, err := h.Generator.GenerateAllAgentInvoices(period, inspections, settled, priorByAgent, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate invoices", err)
		return
	}
	if len(invoices) == 0 {
		writeJSON(w, http.StatusOK, GenerateResultDTO{
			Generated: false,
			Message:   "No eligible inspections to invoice for this period",
		})
		return
	}

	result := GenerateResultDTO{Generated: true}
	for _, inv := range invoices {
		if err := h.Store.SaveInvoice(ctx, *inv); err != nil {
			if errors.Is(err, settlement.ErrDuplicateSettlement) {
				// Lost a race for this agent; skip and keep going.
				metricDuplicateSettlements.Inc()
				continue
			}
			writeError(w, http.StatusInternalServerError, "Failed to save invoice", err)
			return
		}
		metricInvoicesGenerated.Inc()
		result.Invoices = append(result.Invoices, toInvoiceDTO(*inv, now))
	}
	if len(result.Invoices) == 0 {
		result.Generated = false
		result.Message = "All eligible invoices were generated concurrently"
	}
	writeJSON(w, http.StatusOK, result)
}

// finishGeneration persists a single generated invoice and writes the
// result. A nil invoice means "nothing to generate", which is informational.
func (h *Handler) finishGeneration(w http.ResponseWriter, r *http.Request, now time.Time, inv *settlement.Invoice) {
	if inv == nil {
		writeJSON(w, http.StatusOK, GenerateResultDTO{
			Generated: false,
			Message:   "Nothing to generate: period already invoiced or no eligible inspections",
		})
		return
	}

	if err := h.Store.SaveInvoice(r.Context(), *inv); err != nil {
		if errors.Is(err, settlement.ErrDuplicateSettlement) {
			metricDuplicateSettlements.Inc()
			writeError(w, http.StatusConflict, "Invoice was generated concurrently", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save invoice", err)
		return
	}

	metricInvoicesGenerated.Inc()
	writeJSON(w, http.StatusOK, GenerateResultDTO{
		Generated: true,
		Invoices:  []InvoiceDTO{toInvoiceDTO(*inv, now)},
	})
}

// =============================================================================
// INVOICE READ / TRANSITION HANDLERS
// =============================================================================

// ListInvoices returns all invoices with effective status resolved at read
// time.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invs, err := h.Store.ListInvoices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}

	now := h.Now()
	dtos := make([]InvoiceDTO, len(invs))
	for i, inv := range invs {
		dtos[i] = toInvoiceDTO(inv, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns one invoice.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv, h.Now()))
}

// SendInvoice marks an invoice sent.
func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	h.transitionInvoice(w, r, settlement.MarkSent)
}

// PayInvoice marks an invoice paid.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	h.transitionInvoice(w, r, settlement.MarkPaid)
}

func (h *Handler) transitionInvoice(w http.ResponseWriter, r *http.Request, transition func(settlement.Invoice, time.Time) (settlement.Invoice, error)) {
	inv, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}

	now := h.Now()
	updated, err := transition(*inv, now)
	if err != nil {
		writeError(w, http.StatusConflict, "Invalid status transition", err)
		return
	}

	if err := h.Store.UpdateInvoiceStatus(r.Context(), updated); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(updated, now))
}

func (h *Handler) loadInvoice(w http.ResponseWriter, r *http.Request) (*settlement.Invoice, bool) {
	id := settlement.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		if settlement.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Invoice not found", nil)
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to load invoice", err)
		}
		return nil, false
	}
	return inv, true
}

// =============================================================================
// CASHBACK HANDLERS
// =============================================================================

// UnprocessedCashback returns the per-agent unprocessed cashback aggregation.
func (h *Handler) UnprocessedCashback(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.unprocessedStatuses(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to aggregate cashback", err)
		return
	}

	dtos := make([]AgentCashbackDTO, len(statuses))
	for i, status := range statuses {
		dtos[i] = toAgentCashbackDTO(status)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ProcessCashback processes everything owed to one agent, emitting one
// ledger entry per billing period.
// POST /api/cashback/process/{agentID}
func (h *Handler) ProcessCashback(w http.ResponseWriter, r *http.Request) {
	agentID := settlement.AgentID(chi.URLParam(r, "agentID"))

	var req ProcessCashbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProcessedBy == "" {
		writeError(w, http.StatusBadRequest, "processed_by is required", nil)
		return
	}

	ctx := r.Context()
	now := h.Now()

	processed, err := h.Store.ListProcessedCashback(ctx, &agentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	if err := settlement.ValidateProcessing(agentID, processed, now); err != nil {
		writeError(w, http.StatusConflict, "Processing already in flight for this agent", err)
		return
	}

	inspections, err := h.Store.ListInspections(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load inspections", err)
		return
	}

	var agentStatus *settlement.AgentCashbackStatus
	for _, status := range h.Config.UnprocessedCashbackByAgent(inspections, processed) {
		if status.AgentID == agentID {
			s := status
			agentStatus = &s
			break
		}
	}
	if agentStatus == nil {
		writeJSON(w, http.StatusOK, GenerateResultDTO{
			Generated: false,
			Message:   "No unprocessed cashback for this agent",
		})
		return
	}

	entries := settlement.CreateProcessedCashback(*agentStatus, req.ProcessedBy, req.Notes, now)
	if err := h.Store.SaveProcessedCashback(ctx, entries); err != nil {
		if errors.Is(err, settlement.ErrDuplicateSettlement) {
			metricDuplicateSettlements.Inc()
			writeError(w, http.StatusConflict, "Cashback was processed concurrently", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save cashback entries", err)
		return
	}

	metricCashbackProcessed.Add(float64(len(entries)))
	dtos := make([]ProcessedCashbackDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toProcessedCashbackDTO(entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": true,
		"entries":   dtos,
	})
}

// ListProcessedCashback returns ledger entries, optionally filtered by
// ?agent_id=.
func (h *Handler) ListProcessedCashback(w http.ResponseWriter, r *http.Request) {
	var agent *settlement.AgentID
	if raw := r.URL.Query().Get("agent_id"); raw != "" {
		id := settlement.AgentID(raw)
		agent = &id
	}

	entries, err := h.Store.ListProcessedCashback(r.Context(), agent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list processed cashback", err)
		return
	}

	dtos := make([]ProcessedCashbackDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toProcessedCashbackDTO(entry)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) unprocessedStatuses(r *http.Request) ([]settlement.AgentCashbackStatus, error) {
	ctx := r.Context()
	inspections, err := h.Store.ListInspections(ctx)
	if err != nil {
		return nil, err
	}
	processed, err := h.Store.ListProcessedCashback(ctx, nil)
	if err != nil {
		return nil, err
	}
	return h.Config.UnprocessedCashbackByAgent(inspections, processed), nil
}

// =============================================================================
// EXPORT HANDLERS
// =============================================================================

// InvoicePDF streams an invoice as a PDF document.
func (h *Handler) InvoicePDF(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	inspections, err := h.Store.ListInspections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load inspections", err)
		return
	}

	data, err := export.BuildInvoicePDF(*inv, inspections, h.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render PDF", err)
		return
	}
	writeAttachment(w, "application/pdf", "invoice-"+string(inv.ID)+".pdf", data)
}

// InvoiceXLSX streams an invoice as a workbook.
func (h *Handler) InvoiceXLSX(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	inspections, err := h.Store.ListInspections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load inspections", err)
		return
	}

	data, err := export.BuildInvoiceXLSX(*inv, inspections, h.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render workbook", err)
		return
	}
	writeAttachment(w, xlsxContentType, "invoice-"+string(inv.ID)+".xlsx", data)
}

// CashbackReportXLSX streams the unprocessed-cashback aggregation as a
// workbook.
func (h *Handler) CashbackReportXLSX(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.unprocessedStatuses(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to aggregate cashback", err)
		return
	}

	data, err := export.BuildCashbackReportXLSX(statuses)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render workbook", err)
		return
	}
	writeAttachment(w, xlsxContentType, "unprocessed-cashback.xlsx", data)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
