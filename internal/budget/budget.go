// Package budget enforces token ceilings for a single research run.
//
// Lock ordering: TokenBudget.mu is a leaf lock; never call out of the
// package while holding it.
package budget

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultPerIterationTokens = 8000
	DefaultPerRunTokens       = 30000

	// softThreshold is the run-usage fraction past which calls are
	// delayed instead of refused.
	defaultSoftThreshold = 0.8
)

// ErrBudgetExceeded signals that a prospective call would cross a token
// ceiling. It is a control signal: callers finalize with partial results
// rather than treating it as a failure.
type ErrBudgetExceeded struct {
	Scope     string // "iteration" or "run"
	Limit     int
	Current   int
	Requested int
}

func (e *ErrBudgetExceeded) Error() string {
	return fmt.Sprintf("token budget exceeded: %s limit %d, used %d, requested %d",
		e.Scope, e.Limit, e.Current, e.Requested)
}

// TokenBudget tracks token consumption per iteration and across the run.
type TokenBudget struct {
	mu sync.Mutex

	perIteration int
	perRun       int

	iterationUsed map[int]int
	runUsed       int
	iteration     int

	softThreshold float64
	limiter       *rate.Limiter

	logger *zap.Logger
}

// Option configures a TokenBudget.
type Option func(*TokenBudget)

// WithLimits overrides the per-iteration and per-run ceilings. Zero
// values keep the defaults.
func WithLimits(perIteration, perRun int) Option {
	return func(b *TokenBudget) {
		if perIteration > 0 {
			b.perIteration = perIteration
		}
		if perRun > 0 {
			b.perRun = perRun
		}
	}
}

// WithSoftThreshold overrides the backpressure threshold fraction.
func WithSoftThreshold(f float64) Option {
	return func(b *TokenBudget) {
		if f > 0 && f < 1 {
			b.softThreshold = f
		}
	}
}

// NewTokenBudget creates a budget with the default ceilings.
func NewTokenBudget(logger *zap.Logger, opts ...Option) *TokenBudget {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &TokenBudget{
		perIteration:  DefaultPerIterationTokens,
		perRun:        DefaultPerRunTokens,
		iterationUsed: make(map[int]int),
		softThreshold: defaultSoftThreshold,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	// backpressure pacing near the run ceiling: roughly one delayed
	// permit per second once the soft threshold is crossed
	b.limiter = rate.NewLimiter(rate.Limit(1), 1)
	return b
}

// Estimate approximates the token cost of a prompt. Four characters per
// token, never below one.
func Estimate(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// Check verifies that an estimated spend fits both ceilings for the
// given iteration. Past the soft threshold it applies a pacing delay
// before allowing the call.
func (b *TokenBudget) Check(ctx context.Context, iteration, estimated int) error {
	b.mu.Lock()
	iterUsed := b.iterationUsed[iteration]
	runUsed := b.runUsed
	perIteration := b.perIteration
	perRun := b.perRun
	soft := b.softThreshold
	b.mu.Unlock()

	if iterUsed+estimated > perIteration {
		return &ErrBudgetExceeded{Scope: "iteration", Limit: perIteration, Current: iterUsed, Requested: estimated}
	}
	if runUsed+estimated > perRun {
		return &ErrBudgetExceeded{Scope: "run", Limit: perRun, Current: runUsed, Requested: estimated}
	}

	if float64(runUsed) >= soft*float64(perRun) {
		b.logger.Debug("Token budget backpressure engaged",
			zap.Int("run_used", runUsed),
			zap.Int("per_run", perRun),
		)
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("budget backpressure wait: %w", err)
		}
	}
	return nil
}

// SetIteration marks the iteration that subsequent spend attributes to.
// The orchestrator calls this at the top of each loop pass so that
// clients deep in the call tree need no iteration plumbing.
func (b *TokenBudget) SetIteration(iteration int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.iteration = iteration
}

// CurrentIteration returns the iteration set by SetIteration, never
// below one.
func (b *TokenBudget) CurrentIteration() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.iteration < 1 {
		return 1
	}
	return b.iteration
}

// Record accounts actual token usage after a call completes.
func (b *TokenBudget) Record(iteration, actual int) {
	if actual <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.iterationUsed[iteration] += actual
	b.runUsed += actual
}

// Snapshot reports current usage for trace entries.
type Snapshot struct {
	RunUsed      int
	RunLimit     int
	PerIteration map[int]int
	IterationCap int
}

// Snapshot returns a copy of current usage.
func (b *TokenBudget) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	per := make(map[int]int, len(b.iterationUsed))
	for k, v := range b.iterationUsed {
		per[k] = v
	}
	return Snapshot{
		RunUsed:      b.runUsed,
		RunLimit:     b.perRun,
		PerIteration: per,
		IterationCap: b.perIteration,
	}
}

// IterationUsed returns tokens consumed in one iteration.
func (b *TokenBudget) IterationUsed(iteration int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.iterationUsed[iteration]
}

// RunUsed returns tokens consumed across the run.
func (b *TokenBudget) RunUsed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runUsed
}
