/*
Package notify extracts candidate transactions from notification text.

PURPOSE:
  Bank and payment apps post free-form notifications. This package holds
  a registry of source-app-specific extraction rules; the first matching
  rule turns raw text into a CandidateTransaction, and text no rule can
  handle is silently dropped. Retrying identical unparseable text is
  never productive, so there is no queue and no retry here.

RULE DESIGN:
  Rules are declarative PatternRule specs (matcher predicate + capture
  regexps), not ad hoc string slicing. This keeps the rule set
  auditable and lets each source app's rule be tested in isolation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Rule: the matcher/extractor contract
  - PatternRule: declarative implementation used by all built-in rules

SEE ALSO:
  - registry.go: ordered rule lookup
  - rules.go: built-in rule set per source app
*/
package notify

import (
	"errors"
	"regexp"
	"strings"

	"github.com/warp/finance-engine/ledger"
)

// ErrNoDirection is returned when a matched rule cannot establish
// whether the event is a debit or a credit. The event yields no
// candidate; there is never a candidate with unknown direction.
var ErrNoDirection = errors.New("direction not determined")

// =============================================================================
// RULE - Matcher predicate + extractor
// =============================================================================

// Rule extracts a candidate from events it recognizes.
type Rule interface {
	// Name identifies the rule in logs and tests.
	Name() string

	// Match reports whether this rule applies to the event.
	Match(ev ledger.NotificationEvent) bool

	// Extract produces a candidate from a matched event. An error means
	// the text is malformed for this rule and the event is dropped.
	Extract(ev ledger.NotificationEvent) (ledger.CandidateTransaction, error)
}

// =============================================================================
// PATTERN RULE - Declarative extraction spec
// =============================================================================

// PatternRule is a declarative extraction rule for one notification
// shape of one source app.
type PatternRule struct {
	RuleName string

	// Matching: the event's source app must be listed (empty = any app)
	// and every MustContain substring must appear (case-insensitive).
	SourceApps  []string
	MustContain []string

	// Amount: capture group 1 is the amount text, handed to
	// ledger.ParseMoney. The pattern should swallow currency symbols
	// and surrounding boilerplate itself.
	Amount *regexp.Regexp

	// Direction: either fixed for the rule, or inferred from marker
	// substrings. A rule that resolves neither drops the event.
	Direction  ledger.Direction
	DebitWhen  []string
	CreditWhen []string

	// Counterparty: optional; capture group 1 is the merchant/payee
	// label. Missing counterparty is allowed (empty label).
	Counterparty *regexp.Regexp
}

func (r *PatternRule) Name() string { return r.RuleName }

func (r *PatternRule) Match(ev ledger.NotificationEvent) bool {
	if len(r.SourceApps) > 0 && !containsFold(r.SourceApps, ev.SourceApp) {
		return false
	}
	lower := strings.ToLower(ev.RawText)
	for _, s := range r.MustContain {
		if !strings.Contains(lower, strings.ToLower(s)) {
			return false
		}
	}
	return true
}

func (r *PatternRule) Extract(ev ledger.NotificationEvent) (ledger.CandidateTransaction, error) {
	m := r.Amount.FindStringSubmatch(ev.RawText)
	if len(m) < 2 {
		return ledger.CandidateTransaction{}, ledger.ErrNoAmount
	}
	// A sentence boundary can land inside the capture ("spent $22." ->
	// "22."); trailing separators carry no digits and are dropped.
	amount, err := ledger.ParseMoney(strings.TrimRight(m[1], ".,"))
	if err != nil {
		return ledger.CandidateTransaction{}, err
	}
	if !amount.IsPositive() {
		return ledger.CandidateTransaction{}, ledger.ErrNoAmount
	}

	direction, err := r.direction(ev.RawText)
	if err != nil {
		return ledger.CandidateTransaction{}, err
	}

	counterparty := ""
	if r.Counterparty != nil {
		if cm := r.Counterparty.FindStringSubmatch(ev.RawText); len(cm) >= 2 {
			counterparty = strings.TrimSpace(cm[1])
		}
	}

	return ledger.CandidateTransaction{
		Amount:       amount,
		Direction:    direction,
		Counterparty: counterparty,
		OccurredAt:   ev.ArrivedAt,
		SourceApp:    ev.SourceApp,
		RawTextHash:  ledger.HashRawText(ev.RawText),
	}, nil
}

func (r *PatternRule) direction(text string) (ledger.Direction, error) {
	if r.Direction.Valid() {
		return r.Direction, nil
	}
	lower := strings.ToLower(text)
	for _, s := range r.DebitWhen {
		if strings.Contains(lower, strings.ToLower(s)) {
			return ledger.Debit, nil
		}
	}
	for _, s := range r.CreditWhen {
		if strings.Contains(lower, strings.ToLower(s)) {
			return ledger.Credit, nil
		}
	}
	return "", ErrNoDirection
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
