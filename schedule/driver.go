/*
Package schedule drives recurrence generation and event admission.

PURPOSE:
  The Driver is the periodically-invoked entry point. The host's
  background-job facility calls RunPass on its own coarse cadence
  (minutes to hours, no exact periodicity promised); notification
  arrivals call HandleNotification immediately. Both paths funnel every
  mutation through the Sink's transactions, so overlapping invocations
  - including one from a relaunched process racing a pending pass -
  observe committed state instead of double-generating.

PASS SHAPE:
  1. Load ScheduleState
  2. For every non-terminal recurrence rule, run the generate loop
  3. Save updated ScheduleState
  4. Drain pending notification events (Parser -> Dedup -> Sink)

FAILURE SEMANTICS:
  - Recurrence persistence failure: occurrence retries next pass
  - Notification persistence failure: one retry in the same pass, then
    dropped (redelivery of the original notification is not guaranteed)
  - Observation permission denied: notification processing is skipped
    entirely (no error); recurrence scheduling continues regardless
  No panic or error escapes a public entry point into the host.

SEE ALSO:
  - ledger/recurrence.go: the generate loop
  - host.go: ticker-backed host scheduler for standalone runs
*/
package schedule

import (
	"context"
	"log"
	"sync"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/metrics"
	"github.com/warp/finance-engine/notify"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// PermissionGate reports whether notification observation is enabled.
// When it is not, the driver no-ops notification work rather than error.
type PermissionGate interface {
	IsObservationPermitted() bool
}

// AlwaysPermitted is the gate used when the host has no permission model.
type AlwaysPermitted struct{}

func (AlwaysPermitted) IsObservationPermitted() bool { return true }

// =============================================================================
// DRIVER
// =============================================================================

// Driver runs scheduling passes and admits ad hoc notification events.
type Driver struct {
	Sink       ledger.TxSink
	Dedup      *ledger.Deduplicator
	Engine     *ledger.Engine
	Parser     *notify.Registry
	Permission PermissionGate
	Clock      ledger.Clock

	mu      sync.Mutex
	pending []ledger.NotificationEvent
}

// NewDriver wires a driver with default collaborators where possible.
func NewDriver(sink ledger.TxSink, parser *notify.Registry) *Driver {
	dedup := ledger.NewDeduplicator(sink)
	return &Driver{
		Sink:       sink,
		Dedup:      dedup,
		Engine:     ledger.NewEngine(sink, dedup, ledger.SystemClock{}),
		Parser:     parser,
		Permission: AlwaysPermitted{},
		Clock:      ledger.SystemClock{},
	}
}

// PassReport summarizes one scheduling pass.
type PassReport struct {
	RulesChecked    int
	Generated       int
	Duplicates      int
	Completed       int
	EventsProcessed int
	EventsAccepted  int
	EventsDropped   int
	Errors          int
}

// RunPass executes one scheduling pass. It never propagates a panic or
// error to the host; failures are counted, logged, and retried where
// retrying is safe.
func (d *Driver) RunPass(ctx context.Context) PassReport {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Driver] recovered from panic in pass: %v", r)
		}
	}()

	var report PassReport

	state, err := d.Sink.LoadScheduleState(ctx)
	if err != nil {
		log.Printf("[Driver] failed to load schedule state: %v", err)
		metrics.PersistFailures.Inc()
		report.Errors++
		return report
	}

	d.generateDueRules(ctx, &report)

	state.LastRun = d.Clock.Now()
	if err := d.Sink.SaveScheduleState(ctx, state); err != nil {
		log.Printf("[Driver] failed to save schedule state: %v", err)
		metrics.PersistFailures.Inc()
		report.Errors++
	}

	d.drainPending(ctx, &report)

	metrics.SchedulerPasses.Inc()
	if report.Generated > 0 || report.EventsProcessed > 0 || report.Errors > 0 {
		log.Printf("[Driver] pass complete: %d rules, %d generated, %d duplicate, %d events (%d accepted), %d errors",
			report.RulesChecked, report.Generated, report.Duplicates,
			report.EventsProcessed, report.EventsAccepted, report.Errors)
	}
	return report
}

func (d *Driver) generateDueRules(ctx context.Context, report *PassReport) {
	rules, err := d.Sink.ListRecurrenceRules(ctx)
	if err != nil {
		log.Printf("[Driver] failed to list recurrence rules: %v", err)
		metrics.PersistFailures.Inc()
		report.Errors++
		return
	}

	for _, rule := range rules {
		if rule.Terminal() {
			continue
		}
		report.RulesChecked++

		updated, gen, err := d.Engine.GenerateDue(ctx, rule)
		report.Generated += gen.Generated
		report.Duplicates += gen.Duplicates
		if gen.Completed {
			report.Completed++
		}
		metrics.OccurrencesGenerated.Add(float64(gen.Generated))
		if err != nil {
			// NextDue was not advanced past the failed occurrence; the
			// next pass retries it.
			log.Printf("[Driver] generation halted for rule %s at %s: %v",
				updated.ID, updated.NextDue.Format("2006-01-02"), err)
			metrics.PersistFailures.Inc()
			report.Errors++
		}
	}
}

// =============================================================================
// NOTIFICATION PATH
// =============================================================================

// HandleNotification admits an ad hoc notification event immediately.
// Returns the admission result; a nil result means the event produced
// no candidate (no rule matched) or observation is not permitted.
func (d *Driver) HandleNotification(ctx context.Context, ev ledger.NotificationEvent) *ledger.AdmitResult {
	if !d.Permission.IsObservationPermitted() {
		return nil
	}
	metrics.EventsReceived.Inc()

	candidate := d.Parser.Parse(ev)
	if candidate == nil {
		metrics.ParseMisses.Inc()
		return nil
	}
	return d.admitWithRetry(ctx, *candidate)
}

// Enqueue defers an event to the next scheduling pass. Used by hosts
// that batch deliveries instead of calling HandleNotification inline.
func (d *Driver) Enqueue(ev ledger.NotificationEvent) {
	d.mu.Lock()
	d.pending = append(d.pending, ev)
	d.mu.Unlock()
}

func (d *Driver) drainPending(ctx context.Context, report *PassReport) {
	if !d.Permission.IsObservationPermitted() {
		// Drop rather than buffer indefinitely: the queue must stay bounded
		// and the events cannot be admitted without observation consent.
		d.mu.Lock()
		d.pending = nil
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	events := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, ev := range events {
		metrics.EventsReceived.Inc()
		report.EventsProcessed++

		candidate := d.Parser.Parse(ev)
		if candidate == nil {
			metrics.ParseMisses.Inc()
			report.EventsDropped++
			continue
		}
		if res := d.admitWithRetry(ctx, *candidate); res != nil && res.Outcome == ledger.Accepted {
			report.EventsAccepted++
		} else if res == nil {
			report.EventsDropped++
		}
	}
}

// admitWithRetry admits a candidate, retrying once on persistence
// failure within the same invocation. After that the event is dropped:
// the platform does not guarantee redelivery, and unbounded retry
// queues are worse than a rare missed entry.
func (d *Driver) admitWithRetry(ctx context.Context, c ledger.CandidateTransaction) *ledger.AdmitResult {
	for attempt := 0; attempt < 2; attempt++ {
		res, err := d.Dedup.Admit(ctx, c)
		if err == nil {
			switch res.Outcome {
			case ledger.Accepted:
				metrics.Accepted.Inc()
			case ledger.DuplicateRejected:
				metrics.Duplicates.Inc()
			}
			return &res
		}
		log.Printf("[Driver] admit attempt %d failed: %v", attempt+1, err)
		metrics.PersistFailures.Inc()
	}
	return nil
}
