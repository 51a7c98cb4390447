// Package engine runs one research iteration as two semaphore-bounded
// parallel phases: search, then analysis over the combined source pool.
//
// Guarantees: deterministic ordering by subtopic index, per-task failure
// isolation, no shared mutable state inside tasks, and timeout safety
// with partial result preservation.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Kocoro-lab/Meridian/internal/config"
	"github.com/Kocoro-lab/Meridian/internal/models"
	"go.uber.org/zap"
)

// DefaultTimeout bounds each phase.
const DefaultTimeout = 120 * time.Second

// Searcher retrieves sources for one query.
type Searcher interface {
	SearchSubtopic(ctx context.Context, query string, maxResults int) ([]models.SourceMetadata, error)
}

// Analyst extracts findings for one subtopic from the source pool.
type Analyst interface {
	AnalyzeSubtopic(ctx context.Context, subtopic string, sources []models.SourceMetadata) ([]models.Insight, []models.Statistic, []models.Contradiction, error)
}

// Query pairs a search string with its task key for logging.
type Query struct {
	Text string
	Key  string
}

// SubtopicResult is the immutable per-subtopic output bundle of one
// iteration.
type SubtopicResult struct {
	SubtopicName      string
	SubtopicIndex     int
	Sources           []models.SourceMetadata
	Insights          []models.Insight
	Statistics        []models.Statistic
	Contradictions    []models.Contradiction
	Error             string
	SearchLatencyMS   float64
	AnalysisLatencyMS float64
}

// Options configures one iteration run.
type Options struct {
	MaxResults    int
	MaxConcurrent int
	RunID         string
	Iteration     int
	Timeout       time.Duration
}

// Engine executes iterations.
type Engine struct {
	searcher Searcher
	analyst  Analyst
	logger   *zap.Logger
}

// New creates an engine.
func New(searcher Searcher, analyst Analyst, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{searcher: searcher, analyst: analyst, logger: logger}
}

type searchOut struct {
	sources []models.SourceMetadata
	latency float64
	err     string
}

type analyzeOut struct {
	insights       []models.Insight
	statistics     []models.Statistic
	contradictions []models.Contradiction
	latency        float64
	err            string
}

// ExecuteIteration runs the search phase over queries, merges the new
// sources into the pool, then runs the analysis phase per subtopic.
// Both phases share one semaphore. Results come back in subtopic order;
// the second return value is every source found this iteration in
// deterministic query order.
func (e *Engine) ExecuteIteration(
	ctx context.Context,
	queries []Query,
	subtopics []models.Subtopic,
	existingSources []models.SourceMetadata,
	opts Options,
) ([]SubtopicResult, []models.SourceMetadata) {
	maxConcurrent := config.ClampConcurrency(opts.MaxConcurrent)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sem := make(chan struct{}, maxConcurrent)

	searchRaw := e.searchPhase(ctx, queries, sem, opts, timeout)

	var allNew []models.SourceMetadata
	for _, out := range searchRaw {
		allNew = append(allNew, out.sources...)
	}

	combined := make([]models.SourceMetadata, 0, len(existingSources)+len(allNew))
	combined = append(combined, existingSources...)
	combined = append(combined, allNew...)

	analysisRaw := e.analysisPhase(ctx, subtopics, combined, sem, opts, timeout)

	results := make([]SubtopicResult, 0, len(subtopics))
	for i, st := range subtopics {
		r := SubtopicResult{SubtopicName: st.Name, SubtopicIndex: i}
		// iteration 1 maps queries 1:1 to subtopics; refined iterations
		// share the pool and leave later indexes without a search slot
		if i < len(searchRaw) {
			r.Sources = searchRaw[i].sources
			r.SearchLatencyMS = searchRaw[i].latency
			r.Error = searchRaw[i].err
		}
		if i < len(analysisRaw) {
			r.Insights = analysisRaw[i].insights
			r.Statistics = analysisRaw[i].statistics
			r.Contradictions = analysisRaw[i].contradictions
			r.AnalysisLatencyMS = analysisRaw[i].latency
			if r.Error == "" {
				r.Error = analysisRaw[i].err
			}
		}
		results = append(results, r)
	}
	return results, allNew
}

func (e *Engine) searchPhase(ctx context.Context, queries []Query, sem chan struct{}, opts Options, timeout time.Duration) []searchOut {
	if len(queries) == 0 {
		return nil
	}
	phaseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outs := make([]searchOut, len(queries))
	done := make(chan struct{})
	go func() {
		defer close(done)
		var inner = make(chan int, len(queries))
		for i := range queries {
			go func(i int) {
				outs[i] = e.searchOne(phaseCtx, queries[i], sem, opts)
				inner <- i
			}(i)
		}
		for range queries {
			<-inner
		}
	}()

	select {
	case <-done:
		return outs
	case <-phaseCtx.Done():
		e.logger.Error("Search phase timeout",
			zap.String("run_id", opts.RunID),
			zap.Int("iteration", opts.Iteration),
		)
		timedOut := make([]searchOut, len(queries))
		for i := range timedOut {
			timedOut[i] = searchOut{err: "timeout"}
		}
		return timedOut
	}
}

func (e *Engine) searchOne(ctx context.Context, q Query, sem chan struct{}, opts Options) (out searchOut) {
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return searchOut{err: "timeout"}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = searchOut{latency: msSince(start), err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	e.logger.Debug("Task start",
		zap.String("run_id", opts.RunID),
		zap.Int("iteration", opts.Iteration),
		zap.String("key", q.Key),
		zap.String("phase", "search"),
	)
	sources, err := e.searcher.SearchSubtopic(ctx, q.Text, opts.MaxResults)
	latency := msSince(start)
	if err != nil {
		e.logger.Error("Task error",
			zap.String("run_id", opts.RunID),
			zap.Int("iteration", opts.Iteration),
			zap.String("key", q.Key),
			zap.String("phase", "search"),
			zap.Error(err),
		)
		return searchOut{latency: latency, err: err.Error()}
	}
	e.logger.Debug("Task complete",
		zap.String("run_id", opts.RunID),
		zap.Int("iteration", opts.Iteration),
		zap.String("key", q.Key),
		zap.String("phase", "search"),
		zap.Float64("latency_ms", latency),
		zap.Int("count", len(sources)),
	)
	return searchOut{sources: sources, latency: latency}
}

func (e *Engine) analysisPhase(ctx context.Context, subtopics []models.Subtopic, pool []models.SourceMetadata, sem chan struct{}, opts Options, timeout time.Duration) []analyzeOut {
	if len(subtopics) == 0 {
		return nil
	}
	phaseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outs := make([]analyzeOut, len(subtopics))
	done := make(chan struct{})
	go func() {
		defer close(done)
		inner := make(chan int, len(subtopics))
		for i := range subtopics {
			go func(i int) {
				outs[i] = e.analyzeOne(phaseCtx, subtopics[i].Name, pool, sem, opts)
				inner <- i
			}(i)
		}
		for range subtopics {
			<-inner
		}
	}()

	select {
	case <-done:
		return outs
	case <-phaseCtx.Done():
		e.logger.Error("Analysis phase timeout",
			zap.String("run_id", opts.RunID),
			zap.Int("iteration", opts.Iteration),
		)
		timedOut := make([]analyzeOut, len(subtopics))
		for i := range timedOut {
			timedOut[i] = analyzeOut{err: "timeout"}
		}
		return timedOut
	}
}

func (e *Engine) analyzeOne(ctx context.Context, subtopic string, pool []models.SourceMetadata, sem chan struct{}, opts Options) (out analyzeOut) {
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return analyzeOut{err: "timeout"}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = analyzeOut{latency: msSince(start), err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	insights, statistics, contradictions, err := e.analyst.AnalyzeSubtopic(ctx, subtopic, pool)
	latency := msSince(start)
	if err != nil {
		e.logger.Error("Task error",
			zap.String("run_id", opts.RunID),
			zap.Int("iteration", opts.Iteration),
			zap.String("subtopic", subtopic),
			zap.String("phase", "analysis"),
			zap.Error(err),
		)
		return analyzeOut{latency: latency, err: err.Error()}
	}
	return analyzeOut{
		insights:       insights,
		statistics:     statistics,
		contradictions: contradictions,
		latency:        latency,
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
