/*
handlers.go - HTTP API handlers for the finance engine

PURPOSE:
  Exposes the ledger and scheduling engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Transactions:
    GET    /api/transactions           List transactions (newest first)

  Notifications:
    POST   /api/notifications          Ingest a notification event

  Recurrences:
    GET    /api/recurrences            List recurrence rules
    POST   /api/recurrences            Create a recurrence rule
    GET    /api/recurrences/{id}       Get one rule
    PUT    /api/recurrences/{id}       Update a rule
    DELETE /api/recurrences/{id}       Remove a rule

  Scheduler:
    POST   /api/scheduler/run          Trigger a pass immediately
    GET    /api/scheduler/status       Scheduler bookkeeping

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (dedup, recurrence engine, driver)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Rule not found
  - 409: Duplicate (fingerprint already admitted)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Sink   ledger.TxSink
	Driver *schedule.Driver
	Host   *schedule.Host
}

// NewHandler creates a handler with all dependencies wired.
func NewHandler(sink ledger.TxSink, driver *schedule.Driver, host *schedule.Host) *Handler {
	return &Handler{Sink: sink, Driver: driver, Host: host}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions handles GET /api/transactions?limit=N
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	txs, err := h.Sink.ListTransactions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list transactions: %v", err))
		return
	}

	out := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

// IngestNotification handles POST /api/notifications
func (h *Handler) IngestNotification(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SourceApp == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "source_app and text are required")
		return
	}

	arrivedAt := time.Now().UTC()
	if req.ArrivedAt != "" {
		t, err := time.Parse(time.RFC3339, req.ArrivedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "arrived_at must be RFC3339")
			return
		}
		arrivedAt = t
	}

	result := h.Driver.HandleNotification(r.Context(), ledger.NotificationEvent{
		SourceApp: req.SourceApp,
		RawText:   req.Text,
		ArrivedAt: arrivedAt,
		EventKey:  req.EventKey,
	})
	if result == nil {
		// No rule matched or observation is off. Not an error; the event
		// was observed and dropped.
		writeJSON(w, http.StatusOK, AdmitResultDTO{Outcome: "dropped"})
		return
	}

	status := http.StatusCreated
	if result.Outcome == ledger.DuplicateRejected {
		status = http.StatusConflict
	}
	writeJSON(w, status, AdmitResultDTO{
		Outcome:       string(result.Outcome),
		TransactionID: string(result.TransactionID),
	})
}

// =============================================================================
// RECURRENCE HANDLERS
// =============================================================================

// ListRecurrences handles GET /api/recurrences
func (h *Handler) ListRecurrences(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Sink.ListRecurrenceRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list rules: %v", err))
		return
	}
	out := make([]RecurrenceRuleDTO, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleDTO(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateRecurrence handles POST /api/recurrences
func (h *Handler) CreateRecurrence(w http.ResponseWriter, r *http.Request) {
	var req CreateRecurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rule, err := ruleFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Sink.UpsertRecurrenceRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("save rule: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(rule))
}

// GetRecurrence handles GET /api/recurrences/{id}
func (h *Handler) GetRecurrence(w http.ResponseWriter, r *http.Request) {
	id := ledger.RuleID(chi.URLParam(r, "id"))
	rule, err := h.Sink.GetRecurrenceRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get rule: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(*rule))
}

// UpdateRecurrence handles PUT /api/recurrences/{id}. Changing the
// anchor restarts the schedule from the new anchor; otherwise the
// rule's generation progress is preserved.
func (h *Handler) UpdateRecurrence(w http.ResponseWriter, r *http.Request) {
	id := ledger.RuleID(chi.URLParam(r, "id"))
	existing, err := h.Sink.GetRecurrenceRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get rule: %v", err))
		return
	}

	var req CreateRecurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rule, err := ruleFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	if rule.Anchor.Equal(existing.Anchor) {
		rule.Generated = existing.Generated
		rule.LastGenerated = existing.LastGenerated
		rule.NextDue = existing.NextDue
		rule.Status = existing.Status
	}

	if err := h.Sink.UpsertRecurrenceRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("save rule: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(rule))
}

// DeleteRecurrence handles DELETE /api/recurrences/{id}
func (h *Handler) DeleteRecurrence(w http.ResponseWriter, r *http.Request) {
	id := ledger.RuleID(chi.URLParam(r, "id"))
	if err := h.Sink.DeleteRecurrenceRule(r.Context(), id); err != nil {
		if errors.Is(err, ledger.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("delete rule: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ruleFromRequest validates and converts an API request into a domain rule.
func ruleFromRequest(req CreateRecurrenceRequest) (ledger.RecurrenceRule, error) {
	var zero ledger.RecurrenceRule

	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		return zero, fmt.Errorf("invalid amount %q: %w", req.Amount, err)
	}
	anchor, err := time.Parse(time.RFC3339, req.Anchor)
	if err != nil {
		return zero, errors.New("anchor must be RFC3339")
	}

	now := time.Now().UTC()
	rule := ledger.RecurrenceRule{
		ID:            ledger.NewRuleID(),
		Category:      req.Category,
		Counterparty:  req.Counterparty,
		Amount:        amount,
		Direction:     ledger.Direction(req.Direction),
		Frequency:     ledger.Frequency(req.Frequency),
		IntervalDays:  req.IntervalDays,
		Anchor:        anchor.UTC(),
		OccurrenceCap: req.OccurrenceCap,
		NextDue:       anchor.UTC(),
		Status:        ledger.RuleScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.EndDate != "" {
		end, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			return zero, errors.New("end_date must be RFC3339")
		}
		endUTC := end.UTC()
		rule.EndDate = &endUTC
	}
	if err := rule.Validate(); err != nil {
		return zero, err
	}
	return rule, nil
}

// =============================================================================
// SCHEDULER HANDLERS
// =============================================================================

// RunScheduler handles POST /api/scheduler/run
func (h *Handler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	report := h.Driver.RunPass(r.Context())
	writeJSON(w, http.StatusOK, PassReportDTO{
		RulesChecked:    report.RulesChecked,
		Generated:       report.Generated,
		Duplicates:      report.Duplicates,
		Completed:       report.Completed,
		EventsProcessed: report.EventsProcessed,
		EventsAccepted:  report.EventsAccepted,
		EventsDropped:   report.EventsDropped,
		Errors:          report.Errors,
	})
}

// SchedulerStatus handles GET /api/scheduler/status
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sink.LoadScheduleState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("load state: %v", err))
		return
	}
	rules, err := h.Sink.ListRecurrenceRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("list rules: %v", err))
		return
	}

	resp := SchedulerStatusDTO{
		ObservationPermitted: h.Driver.Permission.IsObservationPermitted(),
	}
	if !st.LastRun.IsZero() {
		resp.LastRun = st.LastRun.UTC().Format(time.RFC3339)
	}
	for _, rule := range rules {
		if rule.Terminal() {
			resp.CompletedRules++
		} else {
			resp.ActiveRules++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
