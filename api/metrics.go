/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counters for the settlement operations that matter operationally:
  invoices generated, cashback ledger entries written, and writes
  rejected by the exclusivity constraints. Exposed on /metrics.
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricInvoicesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "settlement",
		Name:      "invoices_generated_total",
		Help:      "Invoices generated and persisted.",
	})

	metricCashbackProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "settlement",
		Name:      "cashback_entries_processed_total",
		Help:      "Processed cashback ledger entries written.",
	})

	metricDuplicateSettlements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "settlement",
		Name:      "duplicate_settlements_rejected_total",
		Help:      "Writes rejected because the settlement already existed.",
	})
)
