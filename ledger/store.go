/*
store.go - Sink interfaces for transactions and scheduling state

PURPOSE:
  Defines the boundary between the engine and the persistence layer.
  The Sink persists accepted transactions, recorded fingerprints,
  recurrence rules and the schedule state. Implementations back it with
  SQLite in production and memory in tests.

ATOMICITY CONTRACT:
  The Deduplicator's check-and-record and the recurrence engine's
  persist-then-advance both run inside WithTx. The durability layer
  itself provides the atomicity: an in-process lock is not sufficient
  when a relaunched process can race a still-pending background pass.

APPEND-ONLY CONTRACT:
  Transactions are append-only. There is no update or delete for ledger
  entries; the only deletions are fingerprint evictions past the
  retention horizon and user removal of recurrence rules.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - ledger/store: in-memory store for tests
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// SINK - Persistence collaborator
// =============================================================================

// Sink persists accepted transactions and scheduling state.
type Sink interface {
	// InsertTransaction appends an accepted transaction.
	// Returns ErrDuplicateFingerprint if the fingerprint is already recorded.
	InsertTransaction(ctx context.Context, tx Transaction) error

	// ListTransactions returns transactions newest first, up to limit
	// (limit <= 0 means no limit).
	ListTransactions(ctx context.Context, limit int) ([]Transaction, error)

	// SeenFingerprint reports whether a fingerprint is currently retained.
	SeenFingerprint(ctx context.Context, fp Fingerprint) (bool, error)

	// RecordFingerprint records a fingerprint with its first-seen time.
	// Returns ErrDuplicateFingerprint if already present.
	RecordFingerprint(ctx context.Context, fp Fingerprint, seenAt time.Time) error

	// EvictFingerprintsBefore removes fingerprints first seen before cutoff.
	// Returns the number evicted. Imprecise timing is fine; late is safe.
	EvictFingerprintsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Recurrence rule state, owned by the scheduling subsystem.
	ListRecurrenceRules(ctx context.Context) ([]RecurrenceRule, error)
	GetRecurrenceRule(ctx context.Context, id RuleID) (*RecurrenceRule, error)
	UpsertRecurrenceRule(ctx context.Context, rule RecurrenceRule) error
	DeleteRecurrenceRule(ctx context.Context, id RuleID) error

	// Schedule state, durable across restarts.
	LoadScheduleState(ctx context.Context) (ScheduleState, error)
	SaveScheduleState(ctx context.Context, st ScheduleState) error
}

// TxSink wraps Sink with transaction support. If fn returns an error
// the transaction rolls back, otherwise it commits.
type TxSink interface {
	Sink
	WithTx(ctx context.Context, fn func(Sink) error) error
}

// =============================================================================
// SCHEDULE STATE
// =============================================================================

// ScheduleState is the process-wide persisted scheduling bookkeeping.
// The rule set itself is stored per rule; LastRun is a monotonic marker
// used to observe how long the scheduler was down.
type ScheduleState struct {
	LastRun time.Time
}
