// Package metrics exposes Prometheus counters for the engine's hot paths.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_notification_events_total",
		Help: "Notification events delivered to the driver.",
	})
	ParseMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_parse_misses_total",
		Help: "Events no rule could extract a candidate from.",
	})
	Accepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_transactions_accepted_total",
		Help: "Candidates accepted and persisted.",
	})
	Duplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_duplicates_rejected_total",
		Help: "Candidates rejected as redeliveries of a seen fingerprint.",
	})
	OccurrencesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_recurrence_occurrences_total",
		Help: "Occurrences generated by the recurrence engine.",
	})
	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_persistence_failures_total",
		Help: "Sink transaction failures (retried where safe).",
	})
	SchedulerPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_scheduler_passes_total",
		Help: "Completed scheduling passes.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }
