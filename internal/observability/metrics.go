package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IngestMetrics groups the Prometheus instruments used by the turn aggregator.
type IngestMetrics struct {
	EventsProcessed *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	HandlerErrors   *prometheus.CounterVec
	TurnsFinalized  *prometheus.CounterVec
	ActiveTurns     prometheus.Gauge
}

func NewIngestMetrics(namespace string) *IngestMetrics {
	return &IngestMetrics{
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Events processed by event type.",
		}, []string{"type"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped for lack of a turn anchor.",
		}),
		HandlerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handler failures by handler name.",
		}, []string{"handler"}),
		TurnsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_finalized_total",
			Help:      "Turns finalized by trigger (usage, turn_start, control, stale, clear).",
		}, []string{"reason"}),
		ActiveTurns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_turns",
			Help:      "Turns currently open across all sessions.",
		}),
	}
}

// ConflictMetrics groups the instruments used by the conflict engine.
type ConflictMetrics struct {
	ConflictsDetected *prometheus.CounterVec
	Invalidations     prometheus.Counter
	ClassifierErrors  prometheus.Counter
}

func NewConflictMetrics(namespace string) *ConflictMetrics {
	return &ConflictMetrics{
		ConflictsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Classifier verdicts by relation type.",
		}, []string{"relation"}),
		Invalidations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_invalidations_total",
			Help:      "Memories soft-invalidated by the resolution policy.",
		}),
		ClassifierErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_errors_total",
			Help:      "Relation classifier calls that failed or were unparseable.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
