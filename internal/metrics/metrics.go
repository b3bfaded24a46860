package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics of the PM service.
type Registry struct {
	reg *prometheus.Registry

	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter

	// Cache Metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Business Metrics
	RecordsAppendedTotal   *prometheus.CounterVec
	RepeatAlertsTotal      prometheus.Counter
	OverdueTrolleys        prometheus.Gauge
	UpcomingTrolleys       prometheus.Gauge
	ReminderSweepDuration  prometheus.Histogram
	NotificationsSentTotal *prometheus.CounterVec
}

// New builds a Registry on its own prometheus registry, with the Go and
// process collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Registry{
		reg: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trolleypm_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trolleypm_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "trolleypm_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),
		RateLimitedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "trolleypm_http_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter",
			},
		),

		CacheHitsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "trolleypm_cache_hits_total",
				Help: "GET responses served from the response cache",
			},
		),
		CacheMissesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "trolleypm_cache_misses_total",
				Help: "GET responses that had to be computed",
			},
		),

		RecordsAppendedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trolleypm_records_appended_total",
				Help: "Records written to the store by kind",
			},
			[]string{"kind"},
		),
		RepeatAlertsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "trolleypm_repeat_alerts_total",
				Help: "Failure reports that left the trolley at or above the repeat threshold",
			},
		),
		OverdueTrolleys: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "trolleypm_overdue_trolleys",
				Help: "Trolleys past their PM due date at the last reminder sweep",
			},
		),
		UpcomingTrolleys: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "trolleypm_upcoming_trolleys",
				Help: "Trolleys due within the reminder window at the last sweep",
			},
		),
		ReminderSweepDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trolleypm_reminder_sweep_duration_seconds",
				Help:    "Reminder sweep execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
		NotificationsSentTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trolleypm_notifications_sent_total",
				Help: "Web push deliveries by result",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
