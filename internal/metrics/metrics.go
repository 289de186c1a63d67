package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the triage service
type Metrics struct {
	PassesTotal   *prometheus.CounterVec
	PassDuration  *prometheus.HistogramVec
	ItemsTotal    *prometheus.CounterVec
	Scores        prometheus.Histogram
	IntakeTotal   *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec
	ConfigReloads *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_buddy_passes_total",
			Help: "Total triage passes by operation and outcome.",
		}, []string{"op", "outcome"}),
		PassDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "email_buddy_pass_duration_seconds",
			Help:    "Duration of triage passes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~102s
		}, []string{"op"}),
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_buddy_items_total",
			Help: "Messages handled per operation by result.",
		}, []string{"op", "result"}),
		Scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "email_buddy_importance_score",
			Help:    "Importance scores assigned to newly ingested messages.",
			Buckets: prometheus.LinearBuckets(0, 2, 12), // 0 .. 22
		}),
		IntakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_buddy_intake_messages_total",
			Help: "Messages received by the SMTP intake by result.",
		}, []string{"result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "email_buddy_mail_source_breaker_open",
			Help: "1 while the mail source circuit breaker is not closed.",
		}, []string{"source"}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_buddy_scoring_config_reloads_total",
			Help: "Scoring configuration reloads by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.PassesTotal,
		m.PassDuration,
		m.ItemsTotal,
		m.Scores,
		m.IntakeTotal,
		m.BreakerState,
		m.ConfigReloads,
	)

	return m
}

// ObservePass records one completed triage pass
func (m *Metrics) ObservePass(op, outcome string, elapsed time.Duration) {
	m.PassesTotal.WithLabelValues(op, outcome).Inc()
	m.PassDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// AddItems counts items handled by an operation
func (m *Metrics) AddItems(op, result string, n int) {
	if n <= 0 {
		return
	}
	m.ItemsTotal.WithLabelValues(op, result).Add(float64(n))
}

// ObserveScore records an assigned importance score
func (m *Metrics) ObserveScore(score int) {
	m.Scores.Observe(float64(score))
}

// IncIntake counts a message received over SMTP
func (m *Metrics) IncIntake(result string) {
	m.IntakeTotal.WithLabelValues(result).Inc()
}

// SetBreakerOpen records the circuit breaker state of a mail source
func (m *Metrics) SetBreakerOpen(source string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerState.WithLabelValues(source).Set(v)
}

// IncConfigReload counts a scoring configuration reload
func (m *Metrics) IncConfigReload(result string) {
	m.ConfigReloads.WithLabelValues(result).Inc()
}
