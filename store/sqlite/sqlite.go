/*
Package sqlite provides a SQLite-backed implementation of settlement.Store.

PURPOSE:
  Implements the persistence collaborator the settlement engine assumes.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

AT-MOST-ONCE ENFORCEMENT:
  The double-payment guarantee lives in unique indexes:

  - idx_settled_kind_inspection on settled_inspections(kind, inspection_id):
    an inspection can be settled at most once per settlement kind.
  - idx_invoices_scope_period on invoices(agent_id, period_number):
    one invoice per (scope, period) pair.
  - idx_cashback_agent_period on processed_cashback(agent_id, period_number):
    one ledger entry per (agent, period).

  SaveInvoice and SaveProcessedCashback write the business record and the
  settled rows inside one SQL transaction, so a concurrent duplicate either
  sees all of it or trips a constraint and gets ErrDuplicateSettlement.

IMMUTABILITY:
  Invoices are never UPDATEd except for the status-transition columns
  (status, sent_at, paid_at). Processed cashback rows and settled rows are
  never updated or deleted.

WAL MODE:
  SQLite is opened with WAL for better read concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./data/settlement.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - settlement/store.go: Interface definition and atomicity contract
  - settlement/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/propora/settlement-engine/settlement"
)

// Store implements settlement.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ settlement.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases coherent; writes are
	// serialized by the store mutex anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Inspection snapshot from the scheduling system
	CREATE TABLE IF NOT EXISTS inspections (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		clerk_id TEXT,
		price TEXT NOT NULL,
		status TEXT NOT NULL,
		scheduled_date TEXT NOT NULL,
		completed_date TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inspections_agent
		ON inspections(agent_id);
	CREATE INDEX IF NOT EXISTS idx_inspections_status
		ON inspections(status);

	-- Invoices (immutable except status columns)
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		period_number INTEGER NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		inspection_ids_json TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		agent_cashback TEXT NOT NULL,
		clerk_commission TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		generated_at TEXT NOT NULL,
		sent_at TEXT,
		paid_at TEXT,
		due_date TEXT NOT NULL
	);

	-- CRITICAL: one invoice per (scope, period). agent_id is 'COMBINED' for
	-- combined invoices, so the combined and per-agent tracks cannot collide.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_scope_period
		ON invoices(agent_id, period_number);
	CREATE INDEX IF NOT EXISTS idx_invoices_generated_at
		ON invoices(generated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_invoices_status
		ON invoices(status);

	-- Processed agent cashback ledger (append-only)
	CREATE TABLE IF NOT EXISTS processed_cashback (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		period_number INTEGER NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		inspection_ids_json TEXT NOT NULL,
		total_revenue TEXT NOT NULL,
		cashback_amount TEXT NOT NULL,
		processed_at TEXT NOT NULL,
		processed_by TEXT NOT NULL,
		notes TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_cashback_agent_period
		ON processed_cashback(agent_id, period_number);
	CREATE INDEX IF NOT EXISTS idx_cashback_agent
		ON processed_cashback(agent_id);
	CREATE INDEX IF NOT EXISTS idx_cashback_processed_at
		ON processed_cashback(processed_at DESC);

	-- CRITICAL: the per-kind exclusivity ledger. An inspection appears at
	-- most once per settlement kind, system-wide. This is what makes a
	-- double payout impossible even under concurrent generation.
	CREATE TABLE IF NOT EXISTS settled_inspections (
		kind TEXT NOT NULL,
		inspection_id TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_settled_kind_inspection
		ON settled_inspections(kind, inspection_id);
	CREATE INDEX IF NOT EXISTS idx_settled_reference
		ON settled_inspections(reference_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INSPECTIONS
// =============================================================================

// SaveInspection upserts a snapshot record.
func (s *Store) SaveInspection(ctx context.Context, insp settlement.Inspection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO inspections (id, agent_id, clerk_id, price, status, scheduled_date, completed_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			clerk_id = excluded.clerk_id,
			price = excluded.price,
			status = excluded.status,
			scheduled_date = excluded.scheduled_date,
			completed_date = excluded.completed_date,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		insp.ID,
		insp.AgentID,
		nullString(string(insp.ClerkID)),
		insp.Price.String(),
		insp.Status,
		insp.ScheduledDate.UTC().Format(time.RFC3339),
		nullTime(insp.CompletedDate),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save inspection: %w", err)
	}
	return nil
}

// ListInspections returns the full snapshot ordered by settlement date.
func (s *Store) ListInspections(ctx context.Context) ([]settlement.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, agent_id, clerk_id, price, status, scheduled_date, completed_date
		FROM inspections
		ORDER BY COALESCE(completed_date, scheduled_date) ASC, id ASC
	`
	return s.queryInspections(ctx, query)
}

// GetInspection returns one inspection.
func (s *Store) GetInspection(ctx context.Context, id settlement.InspectionID) (*settlement.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, agent_id, clerk_id, price, status, scheduled_date, completed_date
		FROM inspections WHERE id = ?
	`
	insps, err := s.queryInspections(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(insps) == 0 {
		return nil, settlement.ErrInspectionNotFound
	}
	return &insps[0], nil
}

func (s *Store) queryInspections(ctx context.Context, query string, args ...any) ([]settlement.Inspection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inspections: %w", err)
	}
	defer rows.Close()

	var insps []settlement.Inspection
	for rows.Next() {
		var (
			insp             settlement.Inspection
			clerkID          sql.NullString
			price, scheduled string
			completed        sql.NullString
		)
		if err := rows.Scan(&insp.ID, &insp.AgentID, &clerkID, &price, &insp.Status, &scheduled, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		insp.ClerkID = settlement.ClerkID(clerkID.String)
		insp.Price = settlement.MustParseDecimal(price)
		insp.ScheduledDate, _ = time.Parse(time.RFC3339, scheduled)
		if completed.Valid {
			if t, err := time.Parse(time.RFC3339, completed.String); err == nil {
				insp.CompletedDate = &t
			}
		}
		insps = append(insps, insp)
	}
	return insps, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

// SaveInvoice persists an invoice and marks its inspections settled,
// atomically. The unique indexes turn concurrent duplicates into
// ErrDuplicateSettlement.
func (s *Store) SaveInvoice(ctx context.Context, inv settlement.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	idsJSON, _ := json.Marshal(inv.InspectionIDs)

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO invoices
		(id, agent_id, period_number, period_start, period_end, inspection_ids_json,
		 total_amount, agent_cashback, clerk_commission, net_amount,
		 status, generated_at, sent_at, paid_at, due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID,
		inv.AgentID,
		inv.PeriodNumber,
		inv.BillingPeriodStart.UTC().Format(time.RFC3339),
		inv.BillingPeriodEnd.UTC().Format(time.RFC3339),
		string(idsJSON),
		inv.TotalAmount.String(),
		inv.AgentCashback.String(),
		inv.ClerkCommission.String(),
		inv.NetAmount.String(),
		inv.Status,
		inv.GeneratedAt.UTC().Format(time.RFC3339),
		nullTime(inv.SentAt),
		nullTime(inv.PaidAt),
		inv.DueDate.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &settlement.DuplicateSettlementError{
				Kind: inv.Kind(), AgentID: inv.AgentID, PeriodNumber: inv.PeriodNumber,
			}
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	if err := markSettled(ctx, sqlTx, inv.Kind(), inv.InspectionIDs, string(inv.ID)); err != nil {
		if isUniqueConstraintError(err) {
			return &settlement.DuplicateSettlementError{
				Kind: inv.Kind(), AgentID: inv.AgentID, PeriodNumber: inv.PeriodNumber,
			}
		}
		return err
	}

	return sqlTx.Commit()
}

// UpdateInvoiceStatus persists only the status-transition columns.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, inv settlement.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?, sent_at = ?, paid_at = ? WHERE id = ?
	`, inv.Status, nullTime(inv.SentAt), nullTime(inv.PaidAt), inv.ID)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return settlement.ErrInvoiceNotFound
	}
	return nil
}

// GetInvoice returns one invoice.
func (s *Store) GetInvoice(ctx context.Context, id settlement.InvoiceID) (*settlement.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invs, err := s.queryInvoices(ctx, selectInvoice+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return nil, settlement.ErrInvoiceNotFound
	}
	return &invs[0], nil
}

// ListInvoices returns all invoices, most recently generated first.
func (s *Store) ListInvoices(ctx context.Context) ([]settlement.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryInvoices(ctx, selectInvoice+" ORDER BY generated_at DESC, id ASC")
}

// InvoicedPeriods returns the period numbers already invoiced for a scope.
func (s *Store) InvoicedPeriods(ctx context.Context, scope settlement.AgentID) (settlement.PeriodSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT period_number FROM invoices WHERE agent_id = ?", scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoiced periods: %w", err)
	}
	defer rows.Close()

	set := make(settlement.PeriodSet)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		set[n] = true
	}
	return set, rows.Err()
}

const selectInvoice = `
	SELECT id, agent_id, period_number, period_start, period_end, inspection_ids_json,
	       total_amount, agent_cashback, clerk_commission, net_amount,
	       status, generated_at, sent_at, paid_at, due_date
	FROM invoices
`

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]settlement.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invs []settlement.Invoice
	for rows.Next() {
		var (
			inv                              settlement.Invoice
			periodStart, periodEnd, idsJSON  string
			total, cashback, commission, net string
			generatedAt, dueDate             string
			sentAt, paidAt                   sql.NullString
		)
		err := rows.Scan(&inv.ID, &inv.AgentID, &inv.PeriodNumber, &periodStart, &periodEnd, &idsJSON,
			&total, &cashback, &commission, &net,
			&inv.Status, &generatedAt, &sentAt, &paidAt, &dueDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}

		inv.BillingPeriodStart, _ = time.Parse(time.RFC3339, periodStart)
		inv.BillingPeriodEnd, _ = time.Parse(time.RFC3339, periodEnd)
		_ = json.Unmarshal([]byte(idsJSON), &inv.InspectionIDs)
		inv.TotalAmount = settlement.MustParseDecimal(total)
		inv.AgentCashback = settlement.MustParseDecimal(cashback)
		inv.ClerkCommission = settlement.MustParseDecimal(commission)
		inv.NetAmount = settlement.MustParseDecimal(net)
		inv.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
		inv.DueDate, _ = time.Parse(time.RFC3339, dueDate)
		inv.SentAt = parseNullTime(sentAt)
		inv.PaidAt = parseNullTime(paidAt)

		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// =============================================================================
// PROCESSED CASHBACK LEDGER
// =============================================================================

// SaveProcessedCashback persists a batch of ledger entries atomically.
func (s *Store) SaveProcessedCashback(ctx context.Context, entries []settlement.ProcessedAgentCashback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, entry := range entries {
		idsJSON, _ := json.Marshal(entry.InspectionIDs)

		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO processed_cashback
			(id, agent_id, period_number, period_start, period_end, inspection_ids_json,
			 total_revenue, cashback_amount, processed_at, processed_by, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			entry.ID,
			entry.AgentID,
			entry.PeriodNumber,
			entry.BillingPeriodStart.UTC().Format(time.RFC3339),
			entry.BillingPeriodEnd.UTC().Format(time.RFC3339),
			string(idsJSON),
			entry.TotalRevenue.String(),
			entry.CashbackAmount.String(),
			entry.ProcessedAt.UTC().Format(time.RFC3339),
			entry.ProcessedBy,
			nullString(entry.Notes),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &settlement.DuplicateSettlementError{
					Kind: settlement.KindCashback, AgentID: entry.AgentID, PeriodNumber: entry.PeriodNumber,
				}
			}
			return fmt.Errorf("failed to insert cashback entry: %w", err)
		}

		if err := markSettled(ctx, sqlTx, settlement.KindCashback, entry.InspectionIDs, entry.ID); err != nil {
			if isUniqueConstraintError(err) {
				return &settlement.DuplicateSettlementError{
					Kind: settlement.KindCashback, AgentID: entry.AgentID, PeriodNumber: entry.PeriodNumber,
				}
			}
			return err
		}
	}

	return sqlTx.Commit()
}

// ListProcessedCashback returns ledger entries, newest first.
func (s *Store) ListProcessedCashback(ctx context.Context, agent *settlement.AgentID) ([]settlement.ProcessedAgentCashback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, agent_id, period_number, period_start, period_end, inspection_ids_json,
		       total_revenue, cashback_amount, processed_at, processed_by, notes
		FROM processed_cashback
	`
	var args []any
	if agent != nil {
		query += " WHERE agent_id = ?"
		args = append(args, *agent)
	}
	query += " ORDER BY processed_at DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed cashback: %w", err)
	}
	defer rows.Close()

	var entries []settlement.ProcessedAgentCashback
	for rows.Next() {
		var (
			entry                           settlement.ProcessedAgentCashback
			periodStart, periodEnd, idsJSON string
			revenue, cashback, processedAt  string
			notes                           sql.NullString
		)
		err := rows.Scan(&entry.ID, &entry.AgentID, &entry.PeriodNumber, &periodStart, &periodEnd, &idsJSON,
			&revenue, &cashback, &processedAt, &entry.ProcessedBy, &notes)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cashback entry: %w", err)
		}

		entry.BillingPeriodStart, _ = time.Parse(time.RFC3339, periodStart)
		entry.BillingPeriodEnd, _ = time.Parse(time.RFC3339, periodEnd)
		_ = json.Unmarshal([]byte(idsJSON), &entry.InspectionIDs)
		entry.TotalRevenue = settlement.MustParseDecimal(revenue)
		entry.CashbackAmount = settlement.MustParseDecimal(cashback)
		entry.ProcessedAt, _ = time.Parse(time.RFC3339, processedAt)
		entry.Notes = notes.String

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =============================================================================
// EXCLUSIVITY LEDGER
// =============================================================================

// SettledInspectionIDs returns the ids already settled for a kind.
func (s *Store) SettledInspectionIDs(ctx context.Context, kind settlement.Kind) (settlement.SettledSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT inspection_id FROM settled_inspections WHERE kind = ?", kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query settled inspections: %w", err)
	}
	defer rows.Close()

	set := make(settlement.SettledSet)
	for rows.Next() {
		var id settlement.InspectionID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = true
	}
	return set, rows.Err()
}

func markSettled(ctx context.Context, tx *sql.Tx, kind settlement.Kind, ids []settlement.InspectionID, referenceID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settled_inspections (kind, inspection_id, reference_id, created_at)
			VALUES (?, ?, ?, ?)
		`, kind, id, referenceID, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset wipes all tables. Dev/test only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"settled_inspections", "processed_cashback", "invoices", "inspections"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
