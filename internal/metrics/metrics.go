package metrics

import (
	"errors"
	"net/http"
	"time"

	"crypto-snapshot/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes recorded on snapshot_runs_total.
const (
	OutcomeDone   = "done"
	OutcomeFailed = "failed"
)

// Metrics holds the Prometheus collectors of the snapshot pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastSuccess      prometheus.Gauge
	UpstreamRequests *prometheus.CounterVec
	ReturnPercent    prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_runs_total",
				Help: "Total number of snapshot runs by outcome",
			},
			[]string{"outcome"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "snapshot_run_duration_seconds",
				Help:    "Duration of snapshot runs in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100},
			},
		),

		LastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapshot_last_success_timestamp_seconds",
				Help: "Unix time of the last snapshot run that reached done",
			},
		),

		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_upstream_requests_total",
				Help: "Market-data queries by query name and result",
			},
			[]string{"query", "result"},
		),

		ReturnPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapshot_today_return_percent",
				Help: "Most recent day-over-day return of the top 20 market cap basket",
			},
		),
	}

	m.registry.MustRegister(m.RunsTotal, m.RunDuration, m.LastSuccess, m.UpstreamRequests, m.ReturnPercent)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records the outcome and duration of one run.
func (m *Metrics) ObserveRun(outcome string, d time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
	if outcome == OutcomeDone {
		m.LastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// ObserveUpstream records the result of one market-data query.
func (m *Metrics) ObserveUpstream(query string, err error) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(query, upstreamResult(err)).Inc()
}

// ObserveReturn records the latest computed daily return.
func (m *Metrics) ObserveReturn(r domain.DailyReturn) {
	if m == nil {
		return
	}
	m.ReturnPercent.Set(r.Percent)
}

func upstreamResult(err error) string {
	var upstream *domain.UpstreamError
	var transport *domain.TransportError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.As(err, &transport):
		return "transport_error"
	default:
		return "invalid_response"
	}
}
