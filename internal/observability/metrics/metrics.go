package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "sentinel_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	readingsEvaluated *prometheus.CounterVec

	alertEventsTotal *prometheus.CounterVec

	notificationsTotal   *prometheus.CounterVec
	notificationsLatency *prometheus.HistogramVec

	escalationSweepLatency prometheus.Histogram

	webhookCallbacks *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total reading ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Reading ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		readingsEvaluated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_evaluated_total",
				Help: "Total threshold evaluations by resulting state",
			},
			[]string{"state"},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert lifecycle events by type",
			},
			[]string{"event"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total notification sends by channel and result",
			},
			[]string{"channel", "result"},
		)
		notificationsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "notification_latency_seconds",
				Help:    "Notification send latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel", "result"},
		)

		escalationSweepLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "escalation_sweep_latency_seconds",
				Help:    "Escalation sweep latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		webhookCallbacks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "webhook_callbacks_total",
				Help: "Total provider status callbacks by result",
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "delivery_export_total",
				Help: "Total delivery log exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "delivery_export_latency_seconds",
				Help:    "Delivery log export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			readingsEvaluated,
			alertEventsTotal,
			notificationsTotal,
			notificationsLatency,
			escalationSweepLatency,
			webhookCallbacks,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// IncReadingEvaluated increments the evaluation counter for a state.
func IncReadingEvaluated(state string) {
	if state == "" {
		state = "unknown"
	}
	if readingsEvaluated != nil {
		readingsEvaluated.WithLabelValues(state).Inc()
	}
}

// IncAlertEvent increments alert lifecycle counters.
func IncAlertEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event).Inc()
	}
}

// ObserveNotification records one notification send.
func ObserveNotification(channel, result string, duration time.Duration) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(channel, result).Inc()
	}
	if notificationsLatency != nil {
		notificationsLatency.WithLabelValues(channel, result).Observe(duration.Seconds())
	}
}

// ObserveEscalationSweep records one escalation sweep pass.
func ObserveEscalationSweep(duration time.Duration) {
	if escalationSweepLatency != nil {
		escalationSweepLatency.Observe(duration.Seconds())
	}
}

// IncWebhookCallback increments the provider callback counter.
func IncWebhookCallback(result string) {
	if result == "" {
		result = resultSuccess
	}
	if webhookCallbacks != nil {
		webhookCallbacks.WithLabelValues(result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	AlertEventCreated    = "created"
	AlertEventRefired    = "refired"
	AlertEventSuppressed = "suppressed"
	AlertEventResolved   = "resolved"
	AlertEventIgnored    = "ignored"
	AlertEventEscalated  = "escalated"
)
