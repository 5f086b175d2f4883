// Package metrics holds the prometheus collectors askgate components report to.
//
// Every component takes a *Metrics and tolerates nil, so tests and the CLI can
// run without a registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "askgate"

// Metrics bundles the collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	AdmissionChecks    *prometheus.CounterVec
	QuotaRecords       prometheus.Gauge
	MirrorWrites       *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	CacheEntries       prometheus.Gauge
	GenerationRequests *prometheus.CounterVec
	EmbeddingRequests  *prometheus.CounterVec
	AnswerDuration     *prometheus.HistogramVec
	TopicsCreated      prometheus.Counter
	TopicsDiscarded    prometheus.Counter
	FeedbackRecorded   *prometheus.CounterVec
}

// New creates a Metrics with a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		AdmissionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "checks_total",
			Help:      "Admission checks by result (allowed, denied).",
		}, []string{"result"}),
		QuotaRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "records",
			Help:      "Quota records currently held in memory.",
		}),
		MirrorWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_writes_total",
			Help:      "Local mirror writes by file and result.",
		}, []string{"file", "result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Similarity cache lookups by result (hit, miss).",
		}, []string{"result"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries in the similarity cache.",
		}),
		GenerationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "generation_requests_total",
			Help:      "Answer generation calls by result.",
		}, []string{"result"}),
		EmbeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "embedding_requests_total",
			Help:      "Embedding calls by result.",
		}, []string{"result"}),
		AnswerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "Time to answer a question by source.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 3, 10),
		}, []string{"source"}),
		TopicsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "topics",
			Name:      "created_total",
			Help:      "Topics persisted by clustering runs.",
		}),
		TopicsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "topics",
			Name:      "discarded_total",
			Help:      "Topics dropped as repeats of recent topics.",
		}),
		FeedbackRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Feedback entries by rating.",
		}, []string{"rating"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.AdmissionChecks,
		m.QuotaRecords,
		m.MirrorWrites,
		m.CacheLookups,
		m.CacheEntries,
		m.GenerationRequests,
		m.EmbeddingRequests,
		m.AnswerDuration,
		m.TopicsCreated,
		m.TopicsDiscarded,
		m.FeedbackRecorded,
	)
	return m
}

// Registry exposes the underlying registry (tests, custom collectors)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Result maps an error to the "ok"/"error" label used by result counters
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
