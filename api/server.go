/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/inspections/*    Inspection snapshot
  /api/periods/*        Billing period calendar
  /api/invoices/*       Invoice generation, status, exports
  /api/cashback/*       Cashback aggregation and ledger
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
// allowedOrigins lists the frontend origins permitted by CORS.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Inspection snapshot routes
		r.Route("/inspections", func(r chi.Router) {
			r.Get("/", h.ListInspections)
			r.Post("/", h.SaveInspection)
		})

		// Billing period routes
		r.Route("/periods", func(r chi.Router) {
			r.Get("/current", h.GetCurrentPeriod)
			r.Get("/recent", h.ListRecentPeriods)
			r.Get("/{number}", h.GetPeriodByNumber)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/combined", h.GenerateCombinedInvoice)
			r.Post("/agent/{agentID}", h.GenerateAgentInvoice)
			r.Post("/all", h.GenerateAllAgentInvoices)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/send", h.SendInvoice)
			r.Post("/{id}/pay", h.PayInvoice)
			r.Get("/{id}/pdf", h.InvoicePDF)
			r.Get("/{id}/xlsx", h.InvoiceXLSX)
		})

		// Cashback routes
		r.Route("/cashback", func(r chi.Router) {
			r.Get("/unprocessed", h.UnprocessedCashback)
			r.Post("/process/{agentID}", h.ProcessCashback)
			r.Get("/processed", h.ListProcessedCashback)
			r.Get("/report.xlsx", h.CashbackReportXLSX)
		})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	return r
}
