/*
recurrence.go - Recurring-transaction rules and catch-up generation

PURPOSE:
  A RecurrenceRule is a user-declared template for periodically
  generated transactions. The engine computes which occurrences are due
  against a reference clock and emits exactly one candidate per missed
  period, including catch-up after arbitrary downtime.

CATCH-UP MATH:
  NextDue always advances from the PREVIOUS NextDue, never from "now".
  A rule that slept through three periods therefore generates three
  occurrences on the next pass, and the advanced NextDue is never left
  in the past.

PERSIST-THEN-ADVANCE:
  Each occurrence is admitted through the Deduplicator first; only on
  confirmed persistence does NextDue advance past it and the rule get
  saved. A persistence failure leaves NextDue untouched so the same
  occurrence retries on the next pass. If an earlier attempt partially
  succeeded, the fingerprint makes the retry a DuplicateRejected and
  the rule still advances - no double posting, no lost occurrence.

STATE MACHINE (per rule):
  Scheduled(nextDue) -> Generating -> Scheduled(nextDue')
  Scheduled -> Completed   once the occurrence cap is reached or the
                           end date is passed; terminal, never revisited

SEE ALSO:
  - dedup.go: admission of generated candidates
  - ../schedule: the driver that runs generation on the host's cadence
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// RECURRENCE RULE
// =============================================================================

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Custom  Frequency = "custom" // every IntervalDays days
)

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Custom:
		return true
	}
	return false
}

type RuleStatus string

const (
	RuleScheduled RuleStatus = "scheduled"
	RuleCompleted RuleStatus = "completed" // terminal
)

// RecurrenceRule is owned by the scheduling subsystem and mutated only
// through the generation loop (persist-then-advance ordering).
type RecurrenceRule struct {
	ID           RuleID
	Category     string // owning category; also the counterparty fallback
	Counterparty string
	Amount       Money
	Direction    Direction

	Frequency    Frequency
	IntervalDays int       // used when Frequency == Custom
	Anchor       time.Time // first occurrence; monthly rules keep its day-of-month

	EndDate       *time.Time // optional end condition
	OccurrenceCap int        // optional; 0 = unlimited

	Generated     int       // occurrences generated so far
	LastGenerated time.Time // due time of the last generated occurrence
	NextDue       time.Time
	Status        RuleStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the rule will never generate again.
func (r RecurrenceRule) Terminal() bool { return r.Status == RuleCompleted }

// Validate checks the fields a rule needs before it can be scheduled.
func (r RecurrenceRule) Validate() error {
	if r.Amount.IsZero() || r.Amount.IsNegative() {
		return ErrInvalidCandidate
	}
	if !r.Direction.Valid() || !r.Frequency.Valid() {
		return ErrInvalidCandidate
	}
	if r.Frequency == Custom && r.IntervalDays <= 0 {
		return ErrInvalidCandidate
	}
	if r.Anchor.IsZero() {
		return ErrInvalidCandidate
	}
	return nil
}

// CandidateFor packages one due occurrence as a candidate transaction.
// The candidate is tagged with the occurrence's due timestamp, not the
// wall clock, so retried generation fingerprints identically.
func (r RecurrenceRule) CandidateFor(due time.Time) CandidateTransaction {
	counterparty := r.Counterparty
	if counterparty == "" {
		counterparty = r.Category
	}
	return CandidateTransaction{
		Amount:       r.Amount,
		Direction:    r.Direction,
		Counterparty: counterparty,
		OccurredAt:   due,
		// Scoping the source to the rule keeps two rules with the same
		// amount and counterparty from colliding on one fingerprint.
		SourceApp:    "recurrence/" + string(r.ID),
		RawTextHash:  HashRawText(string(r.ID) + "@" + due.UTC().Format(time.RFC3339)),
		RecurrenceID: r.ID,
	}
}

// =============================================================================
// FREQUENCY STEPPING
// =============================================================================

// NextAfter returns the occurrence following `from` for this rule.
func (r RecurrenceRule) NextAfter(from time.Time) time.Time {
	switch r.Frequency {
	case Daily:
		return from.AddDate(0, 0, 1)
	case Weekly:
		return from.AddDate(0, 0, 7)
	case Monthly:
		return addMonthKeepingDay(from, r.Anchor.Day())
	default:
		return from.AddDate(0, 0, r.IntervalDays)
	}
}

// addMonthKeepingDay advances one calendar month while preserving the
// anchor day-of-month, clamping to the last day of shorter months
// (anchor day 31 yields Jan 31, Feb 28, Mar 31, ...).
func addMonthKeepingDay(from time.Time, anchorDay int) time.Time {
	firstOfNext := time.Date(from.Year(), from.Month(), 1, from.Hour(), from.Minute(), from.Second(), 0, from.Location()).AddDate(0, 1, 0)
	day := anchorDay
	if last := daysInMonth(firstOfNext.Year(), firstOfNext.Month()); day > last {
		day = last
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day,
		from.Hour(), from.Minute(), from.Second(), 0, from.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// =============================================================================
// END CONDITIONS
// =============================================================================

// completedAt reports whether the rule's end conditions forbid an
// occurrence at `due`.
func (r RecurrenceRule) completedAt(due time.Time) bool {
	if r.EndDate != nil && due.After(*r.EndDate) {
		return true
	}
	if r.OccurrenceCap > 0 && r.Generated >= r.OccurrenceCap {
		return true
	}
	return false
}

// =============================================================================
// ENGINE - Due-check and idempotent generation
// =============================================================================

// Engine runs the generate loop for recurrence rules.
type Engine struct {
	Sink  TxSink
	Dedup *Deduplicator
	Clock Clock
}

func NewEngine(sink TxSink, dedup *Deduplicator, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{Sink: sink, Dedup: dedup, Clock: clock}
}

// GenerateReport summarizes one generation loop over a rule.
type GenerateReport struct {
	Generated  int // occurrences accepted this pass
	Duplicates int // occurrences already persisted by an earlier attempt
	Completed  bool
}

// DueOccurrences returns every occurrence due at or before now,
// starting at the rule's NextDue, honoring end conditions. Read-only;
// generation uses the same walk but persists as it goes.
func (e *Engine) DueOccurrences(r RecurrenceRule, now time.Time) []time.Time {
	if r.Terminal() {
		return nil
	}
	var due []time.Time
	generated := r.Generated
	for at := r.NextDue; !at.After(now); at = r.NextAfter(at) {
		if r.EndDate != nil && at.After(*r.EndDate) {
			break
		}
		if r.OccurrenceCap > 0 && generated >= r.OccurrenceCap {
			break
		}
		due = append(due, at)
		generated++
	}
	return due
}

// GenerateDue generates every due occurrence for the rule and returns
// the advanced rule. On a persistence failure the returned rule
// reflects progress made so far (already persisted by the Sink) and
// the error is returned for the driver to log; the failed occurrence
// is retried on the next pass.
func (e *Engine) GenerateDue(ctx context.Context, rule RecurrenceRule) (RecurrenceRule, GenerateReport, error) {
	var report GenerateReport
	if rule.Terminal() {
		return rule, report, nil
	}

	now := e.Clock.Now()

	for {
		if rule.completedAt(rule.NextDue) {
			rule = e.complete(ctx, rule)
			report.Completed = rule.Status == RuleCompleted
			return rule, report, nil
		}
		if rule.NextDue.After(now) {
			return rule, report, nil
		}

		due := rule.NextDue
		res, err := e.Dedup.Admit(ctx, rule.CandidateFor(due))
		if err != nil {
			// NextDue untouched: this occurrence retries next pass.
			return rule, report, err
		}
		switch res.Outcome {
		case Accepted:
			report.Generated++
		case DuplicateRejected:
			// A prior attempt persisted this occurrence before the rule
			// advance was saved. Advance now; the ledger already has it.
			report.Duplicates++
		}

		rule.LastGenerated = due
		rule.Generated++
		rule.NextDue = rule.NextAfter(due)
		rule.UpdatedAt = now

		if err := e.Sink.UpsertRecurrenceRule(ctx, rule); err != nil {
			// The transaction is persisted but the advance is not; the
			// next pass re-admits, gets a duplicate, and advances then.
			return rule, report, &PersistenceError{Op: "upsert_rule", Err: err}
		}
	}
}

func (e *Engine) complete(ctx context.Context, rule RecurrenceRule) RecurrenceRule {
	rule.Status = RuleCompleted
	rule.UpdatedAt = e.Clock.Now()
	if err := e.Sink.UpsertRecurrenceRule(ctx, rule); err != nil {
		// Harmless if lost: the next pass re-derives Completed from the
		// same end conditions.
		rule.Status = RuleCompleted
	}
	return rule
}
