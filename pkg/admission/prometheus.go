package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports admission metrics through Prometheus.
type PrometheusRecorder struct {
	checks    *prometheus.CounterVec
	blocks    *prometheus.CounterVec
	fallbacks prometheus.Counter
	duration  *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the admission collectors with reg and
// returns a Recorder backed by them. Pass prometheus.DefaultRegisterer for
// the process-wide registry, or a fresh registry in tests.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_checks_total",
				Help: "Total number of admission checks performed",
			},
			[]string{"policy", "result"},
		),
		blocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_blocks_total",
				Help: "Total number of penalty blocks installed",
			},
			[]string{"policy"},
		),
		fallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "admission_fallbacks_total",
				Help: "Total number of remote store failures absorbed by the local store",
			},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admission_check_duration_seconds",
				Help:    "Duration of admission checks in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12),
			},
			[]string{"policy"},
		),
	}
}

func (p *PrometheusRecorder) RecordCheck(policy string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	p.checks.WithLabelValues(policy, result).Inc()
}

func (p *PrometheusRecorder) RecordBlock(policy string) {
	p.blocks.WithLabelValues(policy).Inc()
}

func (p *PrometheusRecorder) RecordFallback() {
	p.fallbacks.Inc()
}

func (p *PrometheusRecorder) ObserveCheckDuration(policy string, seconds float64) {
	p.duration.WithLabelValues(policy).Observe(seconds)
}
