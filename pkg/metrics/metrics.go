package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names used as the "stage" label.
const (
	StageEmbed    = "embed"
	StageSearch   = "search"
	StageRerank   = "rerank"
	StageMerge    = "merge"
	StageAssemble = "assemble"
	StageGenerate = "generate"
)

// Outcome names used as the "outcome" label.
const (
	OutcomeAnswered    = "answered"
	OutcomeNoResults   = "no_results"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the pipeline collectors on a private registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	Requests      *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	Candidates    prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sciencesage",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each retrieval pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"stage"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sciencesage",
			Name:      "requests_total",
			Help:      "Pipeline requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sciencesage",
			Name:      "fallbacks_total",
			Help:      "Answers and rephrasings that degraded to their fallback",
		}, []string{"operation"}),
		Candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sciencesage",
			Name:      "search_candidates",
			Help:      "Number of candidates kept after the minimum score filter",
			Buckets:   prometheus.LinearBuckets(0, 5, 11),
		}),
	}

	m.registry.MustRegister(
		m.StageDuration,
		m.Requests,
		m.Fallbacks,
		m.Candidates,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStage records the time elapsed since start for stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) CountRequest(operation, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) CountFallback(operation string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveCandidates(n int) {
	if m == nil {
		return
	}
	m.Candidates.Observe(float64(n))
}

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
