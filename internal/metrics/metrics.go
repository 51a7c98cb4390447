package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_runs_started_total",
			Help: "Total number of research runs started",
		},
		[]string{"depth"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"depth", "termination_reason"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meridian_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900},
		},
		[]string{"depth"},
	)

	RunConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meridian_run_final_confidence",
			Help:    "Final global confidence per run",
			Buckets: []float64{0.2, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"depth"},
	)

	IterationsPerRun = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meridian_run_iterations",
			Help:    "Iterations executed per run",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"depth"},
	)

	// Iteration metrics
	IterationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_iteration_duration_seconds",
			Help:    "Single iteration duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SourcesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_sources_accepted_total",
			Help: "Total sources accepted into research memory",
		},
	)

	SourcesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_sources_rejected_total",
			Help: "Total duplicate sources rejected by research memory",
		},
	)

	SubtopicsSpawned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_subtopics_spawned_total",
			Help: "Total subtopics added by adaptive plan expansion",
		},
	)

	SubtopicsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_subtopics_pruned_total",
			Help: "Total subtopics removed as dead ends",
		},
	)

	// Task metrics
	TaskErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_task_errors_total",
			Help: "Total per-task errors inside the execution engine",
		},
		[]string{"phase"},
	)

	SearchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_search_latency_ms",
			Help:    "Search task latency in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	AnalysisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_analysis_latency_ms",
			Help:    "Analysis task latency in milliseconds",
			Buckets: []float64{500, 1000, 2500, 5000, 10000, 30000},
		},
	)

	// Token metrics
	TokensUsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_tokens_used_total",
			Help: "Total LLM tokens consumed",
		},
	)

	RunTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_run_tokens",
			Help:    "Tokens consumed per run",
			Buckets: []float64{1000, 5000, 10000, 20000, 30000, 50000},
		},
	)

	BudgetRefusals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_budget_refusals_total",
			Help: "Total LLM calls refused by the token budget",
		},
		[]string{"scope"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_cache_evictions_total",
			Help: "Total cache evictions",
		},
		[]string{"cache"},
	)

	// Intent metrics
	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_intent_classifications_total",
			Help: "Total query intent classifications",
		},
		[]string{"intent"},
	)

	FallbackExtractions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_fallback_extractions_total",
			Help: "Total insights rescued by the fallback extractor",
		},
	)
)

// RecordRunMetrics records metrics for a completed run.
func RecordRunMetrics(depth, reason string, durationSeconds, confidence float64, iterations, tokens int) {
	RunsCompleted.WithLabelValues(depth, reason).Inc()
	RunDuration.WithLabelValues(depth).Observe(durationSeconds)
	RunConfidence.WithLabelValues(depth).Observe(confidence)
	IterationsPerRun.WithLabelValues(depth).Observe(float64(iterations))
	if tokens > 0 {
		RunTokens.Observe(float64(tokens))
	}
}

// RecordIterationMetrics records metrics for one iteration.
func RecordIterationMetrics(durationSeconds float64, accepted, rejected, tokens int) {
	IterationDuration.Observe(durationSeconds)
	if accepted > 0 {
		SourcesAccepted.Add(float64(accepted))
	}
	if rejected > 0 {
		SourcesRejected.Add(float64(rejected))
	}
	if tokens > 0 {
		TokensUsed.Add(float64(tokens))
	}
}

// RecordTaskLatencies records engine task latencies in milliseconds.
func RecordTaskLatencies(searchMS, analysisMS float64) {
	if searchMS > 0 {
		SearchLatency.Observe(searchMS)
	}
	if analysisMS > 0 {
		AnalysisLatency.Observe(analysisMS)
	}
}
