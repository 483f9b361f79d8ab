package metrics

import (
	"net/http"
	"time"

	"github.com/nholik/backend-sentinel/internal/health"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for backend-sentinel.
type Metrics struct {
	registry                   *prometheus.Registry
	roundDurationSeconds       prometheus.Histogram
	probeDurationSeconds       *prometheus.HistogramVec
	servicesTotal              *prometheus.GaugeVec
	fallbackSubstitutionsTotal *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	notificationErrorsTotal    prometheus.Counter
	readyGauge                 *prometheus.GaugeVec
	lastSuccessfulRoundGauge   prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		roundDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backend_sentinel_round_duration_seconds",
			Help:    "Duration of probe rounds in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		probeDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backend_sentinel_probe_duration_seconds",
			Help:    "Duration of single backend probes, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "status"}),
		servicesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_sentinel_services_total",
			Help: "Services of the latest round by environment, category and status.",
		}, []string{"environment", "category", "status"}),
		fallbackSubstitutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_sentinel_fallback_substitutions_total",
			Help: "Rounds in which a fallback served a primary service.",
		}, []string{"service", "fallback"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_sentinel_notifications_total",
			Help: "Status transitions notified by environment and current status.",
		}, []string{"environment", "status"}),
		notificationErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backend_sentinel_notification_errors_total",
			Help: "Total notification deliveries that failed after retries.",
		}),
		readyGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_sentinel_ready",
			Help: "1 when every required category has a connected service.",
		}, []string{"environment"}),
		lastSuccessfulRoundGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backend_sentinel_last_successful_round_timestamp",
			Help: "Unix timestamp of the last round that left the environment ready.",
		}),
	}

	registry.MustRegister(
		m.roundDurationSeconds,
		m.probeDurationSeconds,
		m.servicesTotal,
		m.fallbackSubstitutionsTotal,
		m.notificationsTotal,
		m.notificationErrorsTotal,
		m.readyGauge,
		m.lastSuccessfulRoundGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRoundDuration records the duration of a completed round.
func (m *Metrics) ObserveRoundDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.roundDurationSeconds.Observe(duration.Seconds())
}

// ObserveProbe records one dispatcher outcome. It fits probe.WithObserver.
func (m *Metrics) ObserveProbe(outcome probe.Outcome) {
	if m == nil || outcome.Descriptor == nil {
		return
	}
	m.probeDurationSeconds.
		WithLabelValues(string(outcome.Descriptor.Backend), string(outcome.Status)).
		Observe(outcome.Elapsed.Seconds())
}

// SetServicesTotal sets the services gauge for one environment/category/status.
func (m *Metrics) SetServicesTotal(environment, category, status string, value int) {
	if m == nil {
		return
	}
	m.servicesTotal.WithLabelValues(environment, category, status).Set(float64(value))
}

// RecordSummary replaces the services gauge with the counts of summary and
// counts every substituted slot.
func (m *Metrics) RecordSummary(environment string, summary health.Summary) {
	if m == nil {
		return
	}
	type key struct{ category, status string }
	counts := make(map[key]int)
	for _, detail := range summary.Details {
		counts[key{string(detail.Category), string(detail.Status)}]++
		if detail.Substituted {
			m.fallbackSubstitutionsTotal.WithLabelValues(detail.Name, detail.Service).Inc()
		}
	}

	m.servicesTotal.Reset()
	for k, n := range counts {
		m.servicesTotal.WithLabelValues(environment, k.category, k.status).Set(float64(n))
	}
}

// IncNotificationsTotal increments the notifications counter.
func (m *Metrics) IncNotificationsTotal(environment, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(environment, status).Inc()
}

// IncNotificationErrors increments the failed delivery counter.
func (m *Metrics) IncNotificationErrors() {
	if m == nil {
		return
	}
	m.notificationErrorsTotal.Inc()
}

// SetReady records the readiness verdict of the latest round.
func (m *Metrics) SetReady(environment string, ready bool) {
	if m == nil {
		return
	}
	value := 0.0
	if ready {
		value = 1
	}
	m.readyGauge.WithLabelValues(environment).Set(value)
}

// SetLastSuccessfulRoundTimestamp sets the last successful round time.
func (m *Metrics) SetLastSuccessfulRoundTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulRoundGauge.Set(float64(t.Unix()))
}
