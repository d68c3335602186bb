/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the internal domain
  model from the external contract. Amounts travel as decimal strings
  ("22.45"), never floats.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionDTO represents an accepted transaction in API responses.
type TransactionDTO struct {
	ID           string `json:"id"`
	Amount       string `json:"amount"`
	Direction    string `json:"direction"`
	Counterparty string `json:"counterparty,omitempty"`
	OccurredAt   string `json:"occurred_at"`
	SourceApp    string `json:"source_app"`
	RecurrenceID string `json:"recurrence_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	c := tx.Candidate
	return TransactionDTO{
		ID:           string(tx.ID),
		Amount:       c.Amount.Format(),
		Direction:    string(c.Direction),
		Counterparty: c.Counterparty,
		OccurredAt:   c.OccurredAt.UTC().Format(time.RFC3339),
		SourceApp:    c.SourceApp,
		RecurrenceID: string(c.RecurrenceID),
		CreatedAt:    tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// NotificationRequest is an inbound notification event.
type NotificationRequest struct {
	SourceApp string `json:"source_app"`
	Text      string `json:"text"`
	ArrivedAt string `json:"arrived_at,omitempty"` // RFC3339; empty = now
	EventKey  string `json:"event_key,omitempty"`
}

// AdmitResultDTO reports what happened to an ingested notification.
type AdmitResultDTO struct {
	Outcome       string `json:"outcome"` // accepted, duplicate_rejected, dropped
	TransactionID string `json:"transaction_id,omitempty"`
}

// =============================================================================
// RECURRENCE RULES
// =============================================================================

// RecurrenceRuleDTO represents a rule in API responses.
type RecurrenceRuleDTO struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Counterparty  string `json:"counterparty,omitempty"`
	Amount        string `json:"amount"`
	Direction     string `json:"direction"`
	Frequency     string `json:"frequency"`
	IntervalDays  int    `json:"interval_days,omitempty"`
	Anchor        string `json:"anchor"`
	EndDate       string `json:"end_date,omitempty"`
	OccurrenceCap int    `json:"occurrence_cap,omitempty"`
	Generated     int    `json:"generated"`
	LastGenerated string `json:"last_generated,omitempty"`
	NextDue       string `json:"next_due"`
	Status        string `json:"status"`
}

func toRuleDTO(r ledger.RecurrenceRule) RecurrenceRuleDTO {
	dto := RecurrenceRuleDTO{
		ID:            string(r.ID),
		Category:      r.Category,
		Counterparty:  r.Counterparty,
		Amount:        r.Amount.Format(),
		Direction:     string(r.Direction),
		Frequency:     string(r.Frequency),
		IntervalDays:  r.IntervalDays,
		Anchor:        r.Anchor.UTC().Format(time.RFC3339),
		OccurrenceCap: r.OccurrenceCap,
		Generated:     r.Generated,
		NextDue:       r.NextDue.UTC().Format(time.RFC3339),
		Status:        string(r.Status),
	}
	if r.EndDate != nil {
		dto.EndDate = r.EndDate.UTC().Format(time.RFC3339)
	}
	if !r.LastGenerated.IsZero() {
		dto.LastGenerated = r.LastGenerated.UTC().Format(time.RFC3339)
	}
	return dto
}

// CreateRecurrenceRequest declares a new recurrence rule.
type CreateRecurrenceRequest struct {
	Category      string `json:"category"`
	Counterparty  string `json:"counterparty,omitempty"`
	Amount        string `json:"amount"`    // decimal string, e.g. "9.99"
	Direction     string `json:"direction"` // debit or credit
	Frequency     string `json:"frequency"` // daily, weekly, monthly, custom
	IntervalDays  int    `json:"interval_days,omitempty"`
	Anchor        string `json:"anchor"` // RFC3339 first occurrence
	EndDate       string `json:"end_date,omitempty"`
	OccurrenceCap int    `json:"occurrence_cap,omitempty"`
}

// =============================================================================
// SCHEDULER
// =============================================================================

// PassReportDTO summarizes one scheduling pass.
type PassReportDTO struct {
	RulesChecked    int `json:"rules_checked"`
	Generated       int `json:"generated"`
	Duplicates      int `json:"duplicates"`
	Completed       int `json:"completed"`
	EventsProcessed int `json:"events_processed"`
	EventsAccepted  int `json:"events_accepted"`
	EventsDropped   int `json:"events_dropped"`
	Errors          int `json:"errors"`
}

// SchedulerStatusDTO reports scheduler bookkeeping.
type SchedulerStatusDTO struct {
	LastRun              string `json:"last_run,omitempty"`
	ObservationPermitted bool   `json:"observation_permitted"`
	ActiveRules          int    `json:"active_rules"`
	CompletedRules       int    `json:"completed_rules"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
