/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	data for testing and demos. Each scenario feeds notification events
	through the real parse/dedup path and registers recurrence rules, so
	demos exercise the same machinery as production traffic.

AVAILABLE SCENARIOS:

	coffee-week:   A week of card spends, including one redelivered event
	subscriptions: Monthly recurrence rules with some catch-up due
	mixed-sources: Card, UPI and bank-alert events side by side

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "coffee-week"}

NOTE:

	Scenarios seed on top of existing data; redelivered events are
	rejected by the deduplicator, which is itself part of the demo.

SEE ALSO:
  - handlers.go: Other API handlers
  - server.go: Route registration
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// SCENARIO CATALOG
// =============================================================================

// Scenario describes one loadable demo data set.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []Scenario{
	{
		ID:          "coffee-week",
		Name:        "A week of card spends",
		Description: "Seven days of card notifications, one delivered twice to show dedup.",
	},
	{
		ID:          "subscriptions",
		Name:        "Recurring subscriptions",
		Description: "Monthly rules anchored in the past; the next pass catches them up.",
	},
	{
		ID:          "mixed-sources",
		Name:        "Mixed notification sources",
		Description: "Card, UPI and bank-alert events from their respective apps.",
	},
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios handles GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario handles POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var err error
	switch req.ScenarioID {
	case "coffee-week":
		err = h.loadCoffeeWeek(r.Context())
	case "subscriptions":
		err = h.loadSubscriptions(r.Context())
	case "mixed-sources":
		err = h.loadMixedSources(r.Context())
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown scenario %q", req.ScenarioID))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("load scenario: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) loadCoffeeWeek(ctx context.Context) error {
	// Minute-aligned so the staged redelivery lands in the same
	// fingerprint bucket as the original.
	base := time.Now().UTC().Truncate(time.Minute).AddDate(0, 0, -7)
	texts := []string{
		"You spent $4.50 at Coffee House using card ending 1234",
		"You spent $12.80 at Lunch Spot using card ending 1234",
		"You spent $4.50 at Coffee House using card ending 1234",
		"You spent $36.20 at Grocery Mart using card ending 1234",
		"You spent $4.50 at Coffee House using card ending 1234",
		"You spent $9.99 at Book Nook using card ending 1234",
		"You spent $4.50 at Coffee House using card ending 1234",
	}
	for i, text := range texts {
		ev := ledger.NotificationEvent{
			SourceApp: "com.vertex.cardwallet",
			RawText:   text,
			ArrivedAt: base.AddDate(0, 0, i),
		}
		h.Driver.HandleNotification(ctx, ev)
		if i == 0 {
			// Redeliver the first coffee purchase seconds later; the
			// deduplicator rejects it.
			ev.ArrivedAt = ev.ArrivedAt.Add(3 * time.Second)
			h.Driver.HandleNotification(ctx, ev)
		}
	}
	return nil
}

func (h *Handler) loadSubscriptions(ctx context.Context) error {
	now := time.Now().UTC()
	subs := []struct {
		counterparty string
		cents        int64
		monthsBack   int
	}{
		{"StreamFlix", 999, 2},
		{"CloudDrive", 299, 1},
		{"NewsDaily", 499, 3},
	}
	for _, s := range subs {
		anchor := now.AddDate(0, -s.monthsBack, 0)
		rule := ledger.RecurrenceRule{
			ID:           ledger.NewRuleID(),
			Category:     "subscriptions",
			Counterparty: s.counterparty,
			Amount:       ledger.FromMinorUnits(s.cents),
			Direction:    ledger.Debit,
			Frequency:    ledger.Monthly,
			Anchor:       anchor,
			NextDue:      anchor,
			Status:       ledger.RuleScheduled,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := h.Sink.UpsertRecurrenceRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadMixedSources(ctx context.Context) error {
	now := time.Now().UTC()
	events := []ledger.NotificationEvent{
		{
			SourceApp: "com.vertex.cardwallet",
			RawText:   "You spent $22.45 at Coffee House using card ending 1234",
			ArrivedAt: now.Add(-3 * time.Hour),
		},
		{
			SourceApp: "com.flowpay.app",
			RawText:   "You paid ₹550.00 to Corner Grocery",
			ArrivedAt: now.Add(-2 * time.Hour),
		},
		{
			SourceApp: "com.flowpay.app",
			RawText:   "You received ₹2,000 from Asha R",
			ArrivedAt: now.Add(-90 * time.Minute),
		},
		{
			SourceApp: "com.meridianbank.alerts",
			RawText:   "A/c XX1234 debited by Rs 1,150.00 at Fresh Mart on 10-03-25",
			ArrivedAt: now.Add(-time.Hour),
		},
		{
			SourceApp: "com.meridianbank.alerts",
			RawText:   "A/c XX1234 credited with INR 52,340.50 from Acme Payroll ref 99812",
			ArrivedAt: now.Add(-30 * time.Minute),
		},
	}
	for _, ev := range events {
		h.Driver.HandleNotification(ctx, ev)
	}
	return nil
}
