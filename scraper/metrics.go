package scraper

import (
	"time"

	"github.com/aluiziolira/go-scrape-products/frontier"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "crawler"

// Metrics holds the crawler's Prometheus collectors. It is registered on its
// own registry so tests and the /metrics endpoint see only crawler series.
// All methods are safe on a nil receiver.
type Metrics struct {
	Registry *prometheus.Registry

	Requests     *prometheus.CounterVec
	FetchLatency prometheus.Histogram
	FetchErrors  *prometheus.CounterVec
	Retries      prometheus.Counter

	Decisions  *prometheus.CounterVec
	Records    prometheus.Counter
	BudgetUsed prometheus.Gauge
}

var _ frontier.Observer = (*Metrics)(nil)

func counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: metricsNamespace, Name: name, Help: help}
}

// NewMetrics builds the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			counterOpts("requests_total", "HTTP requests issued, by phase."),
			[]string{"phase"},
		),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time from request start to response.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		FetchErrors: prometheus.NewCounterVec(
			counterOpts("errors_total", "Failed fetches by error type."),
			[]string{"error_type"},
		),
		Retries: prometheus.NewCounter(
			counterOpts("retries_total", "Retries scheduled after failed fetches."),
		),
		Decisions: prometheus.NewCounterVec(
			counterOpts("frontier_decisions_total", "Links offered to the frontier, by outcome and role."),
			[]string{"decision", "role"},
		),
		Records: prometheus.NewCounter(
			counterOpts("product_records_total", "Product records extracted from detail pages."),
		),
		BudgetUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "page_budget_used",
			Help:      "Pages enqueued against the page budget.",
		}),
	}

	m.Registry.MustRegister(
		m.Requests, m.FetchLatency, m.FetchErrors, m.Retries,
		m.Decisions, m.Records, m.BudgetUsed,
	)
	return m
}

func (m *Metrics) requestStarted() {
	if m != nil {
		m.Requests.WithLabelValues("started").Inc()
	}
}

func (m *Metrics) responseReceived(elapsed time.Duration) {
	if m != nil {
		m.Requests.WithLabelValues("completed").Inc()
		m.FetchLatency.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) fetchFailed(kind string) {
	if m != nil {
		m.FetchErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) retryScheduled() {
	if m != nil {
		m.Retries.Inc()
	}
}

// ObserveDecision counts one frontier decision.
func (m *Metrics) ObserveDecision(decision frontier.Decision, role frontier.Role) {
	if m != nil {
		m.Decisions.WithLabelValues(decision.String(), role.String()).Inc()
	}
}

// ObserveRecords adds n extracted records.
func (m *Metrics) ObserveRecords(n int) {
	if m != nil {
		m.Records.Add(float64(n))
	}
}

// ObserveBudget sets the budget gauge.
func (m *Metrics) ObserveBudget(used int) {
	if m != nil {
		m.BudgetUsed.Set(float64(used))
	}
}
