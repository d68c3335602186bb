package notify_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/notify"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var arrivedAt = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func event(app, text string) ledger.NotificationEvent {
	return ledger.NotificationEvent{
		SourceApp: app,
		RawText:   text,
		ArrivedAt: arrivedAt,
	}
}

// =============================================================================
// PER-APP EXTRACTION
// =============================================================================

func TestCardSpendExtraction(t *testing.T) {
	reg := notify.Default()

	c := reg.Parse(event("com.vertex.cardwallet",
		"You spent $22.45 at Coffee House using card ending 1234"))
	require.NotNil(t, c, "card spend notification must parse")

	assert.Equal(t, int64(2245), c.Amount.MinorUnits())
	assert.Equal(t, ledger.Debit, c.Direction)
	assert.Equal(t, "Coffee House", c.Counterparty)
	assert.Equal(t, "com.vertex.cardwallet", c.SourceApp)
	assert.Equal(t, arrivedAt, c.OccurredAt)
}

func TestCardSpendSentenceBoundary(t *testing.T) {
	// The amount sits at the end of a sentence; the trailing period
	// must not leak into the parsed amount.
	c := notify.Default().Parse(event("com.vertex.cardwallet",
		"You spent $22. Check your statement for details"))
	require.NotNil(t, c)
	assert.Equal(t, int64(2200), c.Amount.MinorUnits())
}

func TestUPIPaidAndReceived(t *testing.T) {
	reg := notify.Default()

	paid := reg.Parse(event("com.flowpay.app", "You paid ₹550.00 to Corner Grocery"))
	require.NotNil(t, paid, "UPI payment must parse")
	assert.Equal(t, int64(55000), paid.Amount.MinorUnits())
	assert.Equal(t, ledger.Debit, paid.Direction)
	assert.Equal(t, "Corner Grocery", paid.Counterparty)

	received := reg.Parse(event("com.flowpay.app", "You received ₹2,000 from Asha R"))
	require.NotNil(t, received, "UPI receipt must parse")
	assert.Equal(t, int64(200000), received.Amount.MinorUnits())
	assert.Equal(t, ledger.Credit, received.Direction)
	assert.Equal(t, "Asha R", received.Counterparty)
}

func TestBankAlertDirectionInference(t *testing.T) {
	reg := notify.Default()

	debit := reg.Parse(event("com.meridianbank.alerts",
		"A/c XX1234 debited by Rs 1,150.00 at Fresh Mart on 10-03-25"))
	require.NotNil(t, debit, "bank debit alert must parse")
	assert.Equal(t, int64(115000), debit.Amount.MinorUnits())
	assert.Equal(t, ledger.Debit, debit.Direction)
	assert.Equal(t, "Fresh Mart", debit.Counterparty)

	credit := reg.Parse(event("com.meridianbank.alerts",
		"A/c XX1234 credited with INR 52,340.50 from Acme Payroll ref 99812"))
	require.NotNil(t, credit, "bank credit alert must parse")
	assert.Equal(t, int64(5234050), credit.Amount.MinorUnits())
	assert.Equal(t, ledger.Credit, credit.Direction)
	assert.Equal(t, "Acme Payroll", credit.Counterparty)
}

func TestLocaleDecimalComma(t *testing.T) {
	c := notify.Default().Parse(event("com.flowpay.app", "You paid € 1.234,56 to Hotel Brandt"))
	require.NotNil(t, c)
	assert.Equal(t, int64(123456), c.Amount.MinorUnits())
}

// =============================================================================
// DROPPED EVENTS
// =============================================================================

func TestPromotionalTextYieldsNoCandidate(t *testing.T) {
	reg := notify.Default()

	for _, text := range []string{
		"Flat 20% off on your next order! Use code SAVE20",
		"Your statement is ready to view",
		"Reminder: update your app for new features",
	} {
		assert.Nil(t, reg.Parse(event("com.vertex.cardwallet", text)),
			"promotional text must not produce a candidate: %q", text)
	}
}

func TestUnknownSourceAppYieldsNoCandidate(t *testing.T) {
	c := notify.Default().Parse(event("com.unknown.app", "You spent $22.45 at Coffee House"))
	assert.Nil(t, c, "events from apps with no rules are dropped")
}

func TestMatchedRuleWithoutAmountYieldsNoCandidate(t *testing.T) {
	// Contains "spent" so the card rule matches, but no amount follows.
	c := notify.Default().Parse(event("com.vertex.cardwallet",
		"You spent time reviewing your budget this week"))
	assert.Nil(t, c, "matched rule with malformed text must drop the event")
}

// =============================================================================
// REGISTRY ORDERING
// =============================================================================

func TestFirstMatchingRuleWins(t *testing.T) {
	// GIVEN two rules that both match, registered in order
	broad := &notify.PatternRule{
		RuleName:    "broad",
		MustContain: []string{"spent"},
		Amount:      mustAmount(),
		Direction:   ledger.Debit,
	}
	narrow := &notify.PatternRule{
		RuleName:    "narrow",
		SourceApps:  []string{"com.vertex.cardwallet"},
		MustContain: []string{"spent"},
		Amount:      mustAmount(),
		Direction:   ledger.Credit, // distinguishable outcome
	}

	reg := notify.NewRegistry(narrow, broad)
	c := reg.Parse(event("com.vertex.cardwallet", "You spent $10 at Kiosk"))
	require.NotNil(t, c)

	// THEN the earlier registration handled the event
	assert.Equal(t, ledger.Credit, c.Direction, "first registered matching rule must win")
}

func TestCustomRuleRegistration(t *testing.T) {
	reg := notify.NewRegistry()
	reg.Register(&notify.PatternRule{
		RuleName:    "wallet-topup",
		SourceApps:  []string{"com.acme.wallet"},
		MustContain: []string{"added"},
		Amount:      mustAmount(),
		Direction:   ledger.Credit,
	})

	c := reg.Parse(event("com.acme.wallet", "You added $50 to your wallet"))
	require.NotNil(t, c)
	assert.Equal(t, int64(5000), c.Amount.MinorUnits())
}

func mustAmount() *regexp.Regexp {
	return regexp.MustCompile(`\$\s*([0-9][0-9.,]*)`)
}
