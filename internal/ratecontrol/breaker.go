package ratecontrol

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState is the circuit state for one outbound service.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned without attempting the call while the
// breaker is cooling down.
var ErrBreakerOpen = errors.New("service circuit open")

// BreakerConfig tunes when a breaker trips and recovers.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	Cooldown         time.Duration // open duration before probing again
}

// DefaultBreakerConfig matches the retry policy: a service that fails
// five fully retried calls in a row is down, not flaky.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Breaker fails fast once a service has failed repeatedly, instead of
// burning retry budget and wall clock on every subsequent call.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *zap.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time

	now func() time.Time
}

// NewBreaker creates a breaker for one named service.
func NewBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  BreakerClosed,
		now:    time.Now,
	}
}

// State reports the current circuit state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// Execute runs op unless the circuit is open. Context errors from op do
// not count against the service.
func (b *Breaker) Execute(ctx context.Context, op func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op()
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		if ctx.Err() != nil {
			return err
		}
	}
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stateLocked() == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

// stateLocked moves an expired open circuit to half-open.
func (b *Breaker) stateLocked() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transitionLocked(BreakerHalfOpen)
	}
	return b.state
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked()
	if success {
		b.failures = 0
		if state == BreakerHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transitionLocked(BreakerClosed)
			}
		}
		return
	}

	b.successes = 0
	switch state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openLocked()
		}
	case BreakerHalfOpen:
		// The probe failed; back to cooling down.
		b.openLocked()
	}
}

func (b *Breaker) openLocked() {
	b.openedAt = b.now()
	b.transitionLocked(BreakerOpen)
}

func (b *Breaker) transitionLocked(next BreakerState) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.failures = 0
	b.successes = 0
	b.logger.Info("Circuit state changed",
		zap.String("service", b.name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}
