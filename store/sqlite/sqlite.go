/*
Package sqlite provides the SQLite-backed Sink implementation.

PURPOSE:
  Implements ledger.TxSink on embedded SQLite. The durability layer is
  what guarantees at-most-once admission: the UNIQUE index on
  fingerprints holds across overlapping process lifetimes, where no
  in-process lock could.

KEY TABLES:
  transactions:     append-only accepted entries (fingerprint UNIQUE)
  fingerprints:     retained dedup keys with first-seen times
  recurrence_rules: rule state including next_due
  schedule_state:   single-row scheduler bookkeeping

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE ever touches the transactions table. The only
  deletions are fingerprint evictions past the retention horizon and
  user removal of recurrence rules.

WAL MODE:
  SQLite is opened with WAL so readers don't block the single writer
  and crash recovery is clean.

USAGE:
  sink, err := sqlite.New("./data/finance.db")
  if err != nil { log.Fatal(err) }
  defer sink.Close()

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/finance-engine/ledger"
)

// Sink implements ledger.TxSink using SQLite.
type Sink struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Sink, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Sink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Sink) Close() error { return s.db.Close() }

func (s *Sink) migrate() error {
	schema := `
	-- Accepted transactions (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		amount_cents INTEGER NOT NULL,
		direction TEXT NOT NULL,
		counterparty TEXT,
		occurred_at TEXT NOT NULL,
		source_app TEXT NOT NULL,
		raw_text_hash TEXT,
		recurrence_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_created
		ON transactions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_recurrence
		ON transactions(recurrence_id) WHERE recurrence_id != '';

	-- Retained dedup keys. The PRIMARY KEY is the at-most-once guard:
	-- a concurrent admit that loses the race hits this constraint.
	CREATE TABLE IF NOT EXISTS fingerprints (
		fingerprint TEXT PRIMARY KEY,
		seen_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fingerprints_seen_at
		ON fingerprints(seen_at);

	-- Recurrence rules
	CREATE TABLE IF NOT EXISTS recurrence_rules (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		counterparty TEXT,
		amount_cents INTEGER NOT NULL,
		direction TEXT NOT NULL,
		frequency TEXT NOT NULL,
		interval_days INTEGER DEFAULT 0,
		anchor TEXT NOT NULL,
		end_date TEXT,
		occurrence_cap INTEGER DEFAULT 0,
		generated INTEGER DEFAULT 0,
		last_generated TEXT,
		next_due TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'scheduled',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_status_due
		ON recurrence_rules(status, next_due);

	-- Scheduler bookkeeping (single row)
	CREATE TABLE IF NOT EXISTS schedule_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_run TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every operation can
// run standalone or inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Sink) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTransaction(ctx, s.db, tx)
}

func insertTransaction(ctx context.Context, db dbtx, tx ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, fingerprint, amount_cents, direction, counterparty,
		 occurred_at, source_app, raw_text_hash, recurrence_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	c := tx.Candidate
	_, err := db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.Fingerprint),
		c.Amount.MinorUnits(),
		string(c.Direction),
		c.Counterparty,
		c.OccurredAt.UTC().Format(time.RFC3339),
		c.SourceApp,
		c.RawTextHash,
		string(c.RecurrenceID),
		tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateFingerprint
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *Sink) ListTransactions(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listTransactions(ctx, s.db, limit)
}

func listTransactions(ctx context.Context, db dbtx, limit int) ([]ledger.Transaction, error) {
	query := `
		SELECT id, fingerprint, amount_cents, direction, counterparty,
		       occurred_at, source_app, raw_text_hash, recurrence_id, created_at
		FROM transactions
		ORDER BY created_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var (
			tx           ledger.Transaction
			cents        int64
			counterparty sql.NullString
			rawHash      sql.NullString
			recurrenceID sql.NullString
			occurredAt   string
			createdAt    string
		)
		if err := rows.Scan(&tx.ID, &tx.Fingerprint, &cents, &tx.Candidate.Direction,
			&counterparty, &occurredAt, &tx.Candidate.SourceApp,
			&rawHash, &recurrenceID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Candidate.Amount = ledger.FromMinorUnits(cents)
		tx.Candidate.Counterparty = counterparty.String
		tx.Candidate.RawTextHash = rawHash.String
		tx.Candidate.RecurrenceID = ledger.RuleID(recurrenceID.String)
		tx.Candidate.OccurredAt, _ = time.Parse(time.RFC3339, occurredAt)
		tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// =============================================================================
// FINGERPRINTS
// =============================================================================

func (s *Sink) SeenFingerprint(ctx context.Context, fp ledger.Fingerprint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seenFingerprint(ctx, s.db, fp)
}

func seenFingerprint(ctx context.Context, db dbtx, fp ledger.Fingerprint) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fingerprints WHERE fingerprint = ?", string(fp),
	).Scan(&count)
	return count > 0, err
}

func (s *Sink) RecordFingerprint(ctx context.Context, fp ledger.Fingerprint, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordFingerprint(ctx, s.db, fp, seenAt)
}

func recordFingerprint(ctx context.Context, db dbtx, fp ledger.Fingerprint, seenAt time.Time) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO fingerprints (fingerprint, seen_at) VALUES (?, ?)",
		string(fp), seenAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateFingerprint
		}
		return fmt.Errorf("failed to record fingerprint: %w", err)
	}
	return nil
}

func (s *Sink) EvictFingerprintsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return evictFingerprints(ctx, s.db, cutoff)
}

func evictFingerprints(ctx context.Context, db dbtx, cutoff time.Time) (int, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM fingerprints WHERE seen_at < ?",
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to evict fingerprints: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// =============================================================================
// RECURRENCE RULES
// =============================================================================

const ruleColumns = `id, category, counterparty, amount_cents, direction, frequency,
	interval_days, anchor, end_date, occurrence_cap, generated,
	last_generated, next_due, status, created_at, updated_at`

func (s *Sink) ListRecurrenceRules(ctx context.Context) ([]ledger.RecurrenceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listRules(ctx, s.db)
}

func listRules(ctx context.Context, db dbtx) ([]ledger.RecurrenceRule, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM recurrence_rules ORDER BY next_due ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []ledger.RecurrenceRule
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *Sink) GetRecurrenceRule(ctx context.Context, id ledger.RuleID) (*ledger.RecurrenceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getRule(ctx, s.db, id)
}

func getRule(ctx context.Context, db dbtx, id ledger.RuleID) (*ledger.RecurrenceRule, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM recurrence_rules WHERE id = ?", string(id))
	rule, err := scanRule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func scanRule(scan func(...any) error) (ledger.RecurrenceRule, error) {
	var (
		r             ledger.RecurrenceRule
		cents         int64
		counterparty  sql.NullString
		anchor        string
		endDate       sql.NullString
		lastGenerated sql.NullString
		nextDue       string
		createdAt     string
		updatedAt     string
	)
	err := scan(&r.ID, &r.Category, &counterparty, &cents, &r.Direction, &r.Frequency,
		&r.IntervalDays, &anchor, &endDate, &r.OccurrenceCap, &r.Generated,
		&lastGenerated, &nextDue, &r.Status, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}

	r.Counterparty = counterparty.String
	r.Amount = ledger.FromMinorUnits(cents)
	r.Anchor, _ = time.Parse(time.RFC3339, anchor)
	r.NextDue, _ = time.Parse(time.RFC3339, nextDue)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if endDate.Valid {
		t, _ := time.Parse(time.RFC3339, endDate.String)
		r.EndDate = &t
	}
	if lastGenerated.Valid && lastGenerated.String != "" {
		r.LastGenerated, _ = time.Parse(time.RFC3339, lastGenerated.String)
	}
	return r, nil
}

func (s *Sink) UpsertRecurrenceRule(ctx context.Context, rule ledger.RecurrenceRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertRule(ctx, s.db, rule)
}

func upsertRule(ctx context.Context, db dbtx, r ledger.RecurrenceRule) error {
	query := `
		INSERT INTO recurrence_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			counterparty = excluded.counterparty,
			amount_cents = excluded.amount_cents,
			direction = excluded.direction,
			frequency = excluded.frequency,
			interval_days = excluded.interval_days,
			anchor = excluded.anchor,
			end_date = excluded.end_date,
			occurrence_cap = excluded.occurrence_cap,
			generated = excluded.generated,
			last_generated = excluded.last_generated,
			next_due = excluded.next_due,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	var endDate *string
	if r.EndDate != nil {
		v := r.EndDate.UTC().Format(time.RFC3339)
		endDate = &v
	}
	lastGenerated := ""
	if !r.LastGenerated.IsZero() {
		lastGenerated = r.LastGenerated.UTC().Format(time.RFC3339)
	}

	_, err := db.ExecContext(ctx, query,
		string(r.ID), r.Category, r.Counterparty,
		r.Amount.MinorUnits(), string(r.Direction), string(r.Frequency),
		r.IntervalDays, r.Anchor.UTC().Format(time.RFC3339),
		endDate, r.OccurrenceCap, r.Generated, lastGenerated,
		r.NextDue.UTC().Format(time.RFC3339), string(r.Status),
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rule: %w", err)
	}
	return nil
}

func (s *Sink) DeleteRecurrenceRule(ctx context.Context, id ledger.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM recurrence_rules WHERE id = ?", string(id))
	return err
}

// =============================================================================
// SCHEDULE STATE
// =============================================================================

func (s *Sink) LoadScheduleState(ctx context.Context) (ledger.ScheduleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadState(ctx, s.db)
}

func loadState(ctx context.Context, db dbtx) (ledger.ScheduleState, error) {
	var lastRun string
	err := db.QueryRowContext(ctx,
		"SELECT last_run FROM schedule_state WHERE id = 1").Scan(&lastRun)
	if err == sql.ErrNoRows {
		return ledger.ScheduleState{}, nil
	}
	if err != nil {
		return ledger.ScheduleState{}, err
	}
	var st ledger.ScheduleState
	st.LastRun, _ = time.Parse(time.RFC3339, lastRun)
	return st, nil
}

func (s *Sink) SaveScheduleState(ctx context.Context, st ledger.ScheduleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveState(ctx, s.db, st)
}

func saveState(ctx context.Context, db dbtx, st ledger.ScheduleState) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO schedule_state (id, last_run) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_run = excluded.last_run`,
		st.LastRun.UTC().Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// TRANSACTIONAL SINK (ledger.TxSink interface)
// =============================================================================

// WithTx executes fn within a database transaction. The in-process
// mutex serializes writers within this process; the database
// transaction is what serializes across processes.
func (s *Sink) WithTx(ctx context.Context, fn func(ledger.Sink) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txSink{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txSink struct {
	tx *sql.Tx
}

func (t *txSink) InsertTransaction(ctx context.Context, tx ledger.Transaction) error {
	return insertTransaction(ctx, t.tx, tx)
}

func (t *txSink) ListTransactions(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	return listTransactions(ctx, t.tx, limit)
}

func (t *txSink) SeenFingerprint(ctx context.Context, fp ledger.Fingerprint) (bool, error) {
	return seenFingerprint(ctx, t.tx, fp)
}

func (t *txSink) RecordFingerprint(ctx context.Context, fp ledger.Fingerprint, seenAt time.Time) error {
	return recordFingerprint(ctx, t.tx, fp, seenAt)
}

func (t *txSink) EvictFingerprintsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return evictFingerprints(ctx, t.tx, cutoff)
}

func (t *txSink) ListRecurrenceRules(ctx context.Context) ([]ledger.RecurrenceRule, error) {
	return listRules(ctx, t.tx)
}

func (t *txSink) GetRecurrenceRule(ctx context.Context, id ledger.RuleID) (*ledger.RecurrenceRule, error) {
	return getRule(ctx, t.tx, id)
}

func (t *txSink) UpsertRecurrenceRule(ctx context.Context, rule ledger.RecurrenceRule) error {
	return upsertRule(ctx, t.tx, rule)
}

func (t *txSink) DeleteRecurrenceRule(ctx context.Context, id ledger.RuleID) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM recurrence_rules WHERE id = ?", string(id))
	return err
}

func (t *txSink) LoadScheduleState(ctx context.Context) (ledger.ScheduleState, error) {
	return loadState(ctx, t.tx)
}

func (t *txSink) SaveScheduleState(ctx context.Context, st ledger.ScheduleState) error {
	return saveState(ctx, t.tx, st)
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
