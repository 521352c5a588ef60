package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports stage metrics through a Prometheus registerer.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
	tokens    *prometheus.GaugeVec
}

// NewPrometheusMetricsRecorder registers the cpgcore collectors with reg. A
// nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cpgcore",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cpgcore",
			Name:      "stage_results_total",
			Help:      "Pipeline stage outcomes.",
		}, []string{"stage", "status"}),
		tokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cpgcore",
			Name:      "tokens_total",
			Help:      "Reported gene tokens of the last run by classification.",
		}, []string{"class"}),
	}
	for _, c := range []prometheus.Collector{r.durations, r.results, r.tokens} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, stage string, success bool, duration time.Duration) {
	if stage == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(stage).Observe(duration.Seconds())
	r.results.WithLabelValues(stage, status).Inc()
}

// ObserveTokens implements TokenObserver.
func (r *PrometheusMetricsRecorder) ObserveTokens(_ context.Context, counts TokenCounts) {
	r.tokens.WithLabelValues("synonym").Set(float64(counts.Synonym))
	r.tokens.WithLabelValues("established").Set(float64(counts.Established))
	r.tokens.WithLabelValues("unestablished").Set(float64(counts.Unestablished))
}
