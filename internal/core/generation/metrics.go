package generation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the generation pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests           *prometheus.CounterVec
	bestEffortFailures *prometheus.CounterVec
	rehosts            *prometheus.CounterVec
	upstreamDuration   prometheus.Histogram
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postgen_generation_requests_total",
				Help: "Total number of generation requests, partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		bestEffortFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postgen_best_effort_failures_total",
				Help: "Total number of swallowed failures after a successful generation, partitioned by step.",
			},
			[]string{"step"},
		),
		rehosts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postgen_image_rehosts_total",
				Help: "Total number of variant image rehost attempts, partitioned by result.",
			},
			[]string{"result"},
		),
		upstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "postgen_upstream_duration_seconds",
				Help:    "Duration of generation webhook calls.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
			},
		),
	}
}

func (m *Metrics) observeRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeBestEffortFailure(step string) {
	if m == nil {
		return
	}
	m.bestEffortFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) observeRehost(result string) {
	if m == nil {
		return
	}
	m.rehosts.WithLabelValues(result).Inc()
}

func (m *Metrics) observeUpstream(d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.Observe(d.Seconds())
}
