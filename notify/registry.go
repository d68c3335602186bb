package notify

import (
	"log"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// REGISTRY - Ordered rule lookup
// =============================================================================

// Registry holds extraction rules in registration order. The first
// matching rule wins; later rules never see the event.
type Registry struct {
	rules []Rule
}

// NewRegistry creates a registry seeded with the given rules.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// Default returns a registry with the built-in rule set.
func Default() *Registry {
	return NewRegistry(BuiltinRules()...)
}

// Register appends a rule. Registration order is match order.
func (g *Registry) Register(r Rule) {
	g.rules = append(g.rules, r)
}

// Parse extracts a candidate from the event, or returns nil when no
// rule matches or the matched rule cannot extract a well-formed amount.
// Dropped events are logged at most; they are never an error and never
// retried, since redelivering the same unparseable text cannot help.
func (g *Registry) Parse(ev ledger.NotificationEvent) *ledger.CandidateTransaction {
	for _, rule := range g.rules {
		if !rule.Match(ev) {
			continue
		}
		candidate, err := rule.Extract(ev)
		if err != nil {
			log.Printf("[Parser] rule %q matched %s but extraction failed: %v", rule.Name(), ev.SourceApp, err)
			return nil
		}
		if err := candidate.Validate(); err != nil {
			log.Printf("[Parser] rule %q produced invalid candidate: %v", rule.Name(), err)
			return nil
		}
		return &candidate
	}
	return nil
}
