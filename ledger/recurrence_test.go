/*
recurrence_test.go - Executable specification of recurrence generation

ORGANIZATION:
  1. Frequency stepping - calendar math, month-end clamping
  2. Catch-up - generating every missed occurrence after downtime
  3. End conditions - end dates and occurrence caps
  4. Crash recovery - persist-then-advance across failures

READING THESE TESTS:
  Each test has GIVEN/WHEN/THEN comments explaining the scenario and
  assertions with explanatory messages.
*/
package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/ledger/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func newEngine(mem *store.Memory, now time.Time) *ledger.Engine {
	dedup := ledger.NewDeduplicator(mem)
	clock := ledger.FixedClock{At: now}
	dedup.Clock = clock
	return ledger.NewEngine(mem, dedup, clock)
}

func monthlyRule(anchor time.Time) ledger.RecurrenceRule {
	return ledger.RecurrenceRule{
		ID:           ledger.NewRuleID(),
		Category:     "subscriptions",
		Counterparty: "StreamFlix",
		Amount:       ledger.FromMinorUnits(999),
		Direction:    ledger.Debit,
		Frequency:    ledger.Monthly,
		Anchor:       anchor,
		NextDue:      anchor,
		Status:       ledger.RuleScheduled,
		CreatedAt:    anchor,
		UpdatedAt:    anchor,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

// =============================================================================
// 1. FREQUENCY STEPPING
// =============================================================================

func TestMonthlyStepPreservesAnchorDay(t *testing.T) {
	rule := monthlyRule(date(2025, time.January, 15))
	next := rule.NextAfter(date(2025, time.January, 15))
	if !next.Equal(date(2025, time.February, 15)) {
		t.Errorf("Jan 15 + 1 month = %v, want Feb 15", next)
	}
}

func TestMonthlyStepClampsToMonthEnd(t *testing.T) {
	// GIVEN a rule anchored on the 31st
	rule := monthlyRule(date(2025, time.January, 31))

	// WHEN stepping through shorter months
	feb := rule.NextAfter(date(2025, time.January, 31))
	mar := rule.NextAfter(feb)

	// THEN February clamps to the 28th and March returns to the 31st
	if !feb.Equal(date(2025, time.February, 28)) {
		t.Errorf("Jan 31 + 1 month = %v, want Feb 28", feb)
	}
	if !mar.Equal(date(2025, time.March, 31)) {
		t.Errorf("Feb 28 + 1 month (anchor day 31) = %v, want Mar 31", mar)
	}
}

func TestCustomFrequencySteps(t *testing.T) {
	rule := monthlyRule(date(2025, time.January, 1))
	rule.Frequency = ledger.Custom
	rule.IntervalDays = 10
	next := rule.NextAfter(date(2025, time.January, 1))
	if !next.Equal(date(2025, time.January, 11)) {
		t.Errorf("custom 10-day step = %v, want Jan 11", next)
	}
}

// =============================================================================
// 2. CATCH-UP
// =============================================================================

func TestCatchUpGeneratesEveryMissedOccurrence(t *testing.T) {
	// GIVEN a monthly rule due June 1 and a device waking on August 15
	mem := store.NewMemory()
	now := date(2025, time.August, 15)
	engine := newEngine(mem, now)
	rule := monthlyRule(date(2025, time.June, 1))
	ctx := context.Background()

	// WHEN one generation pass runs
	advanced, report, err := engine.GenerateDue(ctx, rule)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// THEN Jun 1, Jul 1 and Aug 1 are generated exactly once each
	if report.Generated != 3 {
		t.Errorf("generated %d occurrences, want 3 (Jun, Jul, Aug)", report.Generated)
	}
	if advanced.Generated != 3 {
		t.Errorf("rule Generated counter = %d, want 3", advanced.Generated)
	}
	if !advanced.NextDue.Equal(date(2025, time.September, 1)) {
		t.Errorf("NextDue = %v, want Sep 1 (strictly in the future)", advanced.NextDue)
	}
	if !advanced.LastGenerated.Equal(date(2025, time.August, 1)) {
		t.Errorf("LastGenerated = %v, want Aug 1", advanced.LastGenerated)
	}

	txs, _ := mem.ListTransactions(ctx, 0)
	if len(txs) != 3 {
		t.Fatalf("ledger holds %d transactions, want 3", len(txs))
	}
	for _, tx := range txs {
		if tx.Candidate.RecurrenceID != rule.ID {
			t.Error("generated transactions must be tagged with the rule ID")
		}
	}
}

func TestCatchUpIsIdempotentAcrossPasses(t *testing.T) {
	// GIVEN a rule fully caught up
	mem := store.NewMemory()
	now := date(2025, time.August, 15)
	engine := newEngine(mem, now)
	rule := monthlyRule(date(2025, time.June, 1))
	ctx := context.Background()

	advanced, _, err := engine.GenerateDue(ctx, rule)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// WHEN a second pass runs at the same instant
	_, report, err := engine.GenerateDue(ctx, advanced)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	// THEN nothing new is generated
	if report.Generated != 0 || report.Duplicates != 0 {
		t.Errorf("second pass generated=%d duplicates=%d, want 0/0", report.Generated, report.Duplicates)
	}
	txs, _ := mem.ListTransactions(ctx, 0)
	if len(txs) != 3 {
		t.Errorf("ledger holds %d transactions after second pass, want 3", len(txs))
	}
}

func TestDueOccurrencesMatchesGeneration(t *testing.T) {
	rule := monthlyRule(date(2025, time.June, 1))
	engine := newEngine(store.NewMemory(), date(2025, time.August, 15))

	due := engine.DueOccurrences(rule, date(2025, time.August, 15))
	want := []time.Time{date(2025, time.June, 1), date(2025, time.July, 1), date(2025, time.August, 1)}
	if len(due) != len(want) {
		t.Fatalf("DueOccurrences returned %d instants, want %d", len(due), len(want))
	}
	for i := range want {
		if !due[i].Equal(want[i]) {
			t.Errorf("due[%d] = %v, want %v", i, due[i], want[i])
		}
	}
}

func TestRuleDueInFutureGeneratesNothing(t *testing.T) {
	mem := store.NewMemory()
	engine := newEngine(mem, date(2025, time.May, 20))
	rule := monthlyRule(date(2025, time.June, 1))

	_, report, err := engine.GenerateDue(context.Background(), rule)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Generated != 0 {
		t.Errorf("generated %d occurrences before the due date, want 0", report.Generated)
	}
}

// =============================================================================
// 3. END CONDITIONS
// =============================================================================

func TestEndDatePassedCompletesWithoutGenerating(t *testing.T) {
	// GIVEN a rule whose end date elapsed entirely during downtime
	mem := store.NewMemory()
	engine := newEngine(mem, date(2025, time.August, 15))
	rule := monthlyRule(date(2025, time.June, 1))
	end := date(2025, time.May, 31)
	rule.EndDate = &end
	ctx := context.Background()

	// WHEN the catch-up pass runs
	advanced, report, err := engine.GenerateDue(ctx, rule)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// THEN zero occurrences are generated and the rule is terminal
	if report.Generated != 0 {
		t.Errorf("generated %d occurrences past the end date, want 0", report.Generated)
	}
	if !report.Completed || advanced.Status != ledger.RuleCompleted {
		t.Error("rule with an elapsed end date must transition to completed")
	}

	// AND completion is durable
	saved, err := mem.GetRecurrenceRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if saved.Status != ledger.RuleCompleted {
		t.Error("completed status must be persisted")
	}
}

func TestEndDateMidCatchUpStopsGeneration(t *testing.T) {
	// End date July 15: June 1 and July 1 occur, August 1 does not.
	mem := store.NewMemory()
	engine := newEngine(mem, date(2025, time.August, 15))
	rule := monthlyRule(date(2025, time.June, 1))
	end := date(2025, time.July, 15)
	rule.EndDate = &end

	advanced, report, err := engine.GenerateDue(context.Background(), rule)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Generated != 2 {
		t.Errorf("generated %d occurrences, want 2 (Jun, Jul)", report.Generated)
	}
	if advanced.Status != ledger.RuleCompleted {
		t.Error("rule must complete once NextDue passes the end date")
	}
}

func TestOccurrenceCapCompletesRule(t *testing.T) {
	mem := store.NewMemory()
	engine := newEngine(mem, date(2025, time.August, 15))
	rule := monthlyRule(date(2025, time.June, 1))
	rule.OccurrenceCap = 2

	advanced, report, err := engine.GenerateDue(context.Background(), rule)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Generated != 2 {
		t.Errorf("generated %d occurrences, want 2 (capped)", report.Generated)
	}
	if advanced.Status != ledger.RuleCompleted {
		t.Error("rule must complete at its occurrence cap")
	}
}

func TestTerminalRuleNeverGeneratesAgain(t *testing.T) {
	mem := store.NewMemory()
	engine := newEngine(mem, date(2025, time.August, 15))
	rule := monthlyRule(date(2025, time.June, 1))
	rule.Status = ledger.RuleCompleted

	_, report, err := engine.GenerateDue(context.Background(), rule)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Generated != 0 {
		t.Error("terminal rules must generate nothing")
	}
}

// =============================================================================
// 4. CRASH RECOVERY
// =============================================================================

func TestPersistFailureLeavesOccurrenceForNextPass(t *testing.T) {
	// GIVEN a sink that fails the first occurrence's insert
	mem := store.NewMemory()
	mem.FailInserts = 1
	engine := newEngine(mem, date(2025, time.August, 15))
	rule := monthlyRule(date(2025, time.June, 1))
	ctx := context.Background()

	// WHEN the catch-up pass hits the failure
	failed, report, err := engine.GenerateDue(ctx, rule)
	if err == nil {
		t.Fatal("generate must surface the persistence failure")
	}
	if report.Generated != 0 {
		t.Errorf("generated %d before the failure, want 0", report.Generated)
	}
	// THEN NextDue is not advanced past the failed occurrence
	if !failed.NextDue.Equal(date(2025, time.June, 1)) {
		t.Errorf("NextDue = %v after failure, want June 1 (unadvanced)", failed.NextDue)
	}

	// AND the next pass picks up where the failure left off
	recovered, recoveredReport, err := engine.GenerateDue(ctx, failed)
	if err != nil {
		t.Fatalf("recovery pass: %v", err)
	}
	if recoveredReport.Generated != 3 {
		t.Errorf("recovery generated %d, want 3", recoveredReport.Generated)
	}
	if !recovered.NextDue.Equal(date(2025, time.September, 1)) {
		t.Errorf("recovered NextDue = %v, want Sep 1", recovered.NextDue)
	}
}

func TestRuleAdvanceLostAfterPersistRecoversViaDuplicate(t *testing.T) {
	// GIVEN a crash between persisting an occurrence and saving the
	// advanced rule: the ledger holds June 1 but the rule still says
	// NextDue June 1.
	mem := store.NewMemory()
	engine := newEngine(mem, date(2025, time.June, 10))
	rule := monthlyRule(date(2025, time.June, 1))
	ctx := context.Background()

	advanced, _, err := engine.GenerateDue(ctx, rule)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if advanced.Generated != 1 {
		t.Fatalf("first pass generated %d, want 1", advanced.Generated)
	}

	// WHEN the next pass replays the unadvanced rule
	replayed, report, err := engine.GenerateDue(ctx, rule)
	if err != nil {
		t.Fatalf("replay pass: %v", err)
	}

	// THEN the occurrence is recognized as already persisted, counted
	// as a duplicate, and the rule advances past it
	if report.Generated != 0 {
		t.Errorf("replay generated %d new occurrences, want 0", report.Generated)
	}
	if report.Duplicates != 1 {
		t.Errorf("replay saw %d duplicates, want 1", report.Duplicates)
	}
	if !replayed.NextDue.Equal(date(2025, time.July, 1)) {
		t.Errorf("replayed NextDue = %v, want July 1", replayed.NextDue)
	}
	txs, _ := mem.ListTransactions(ctx, 0)
	if len(txs) != 1 {
		t.Errorf("ledger holds %d transactions, want exactly 1", len(txs))
	}
}
