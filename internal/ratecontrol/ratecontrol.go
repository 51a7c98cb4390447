// Package ratecontrol throttles outbound provider calls and classifies
// transport failures for retry.
package ratecontrol

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"
)

type config struct {
	RateLimits struct {
		ServiceOverrides map[string]struct {
			MaxCalls int     `yaml:"max_calls"`
			PeriodS  float64 `yaml:"period_seconds"`
		} `yaml:"service_overrides"`
	} `yaml:"rate_limits"`
}

// ServiceLimit is the sustained call allowance for one external service.
type ServiceLimit struct {
	MaxCalls int
	Period   time.Duration
}

var (
	mu          sync.RWMutex
	loaded      *config
	initialized bool
)

var defaultPaths = []string{
	os.Getenv("RATE_LIMITS_CONFIG_PATH"),
	"/app/config/rate_limits.yaml",
	"./config/rate_limits.yaml",
}

var builtInServiceLimits = map[string]ServiceLimit{
	"llm":    {MaxCalls: 10, Period: time.Second},
	"search": {MaxCalls: 5, Period: time.Second},
}

func loadLocked() {
	var cfg config
	for _, p := range defaultPaths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var tmp config
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			log.Printf("WARNING: failed to unmarshal rate limit config from %s: %v", p, err)
			continue
		}
		cfg = tmp
		log.Printf("Loaded rate limit configuration from %s", p)
		break
	}
	if len(cfg.RateLimits.ServiceOverrides) == 0 {
		if path, ok := findUpConfig(); ok {
			if data, err := os.ReadFile(path); err == nil {
				var tmp config
				if err := yaml.Unmarshal(data, &tmp); err == nil {
					cfg = tmp
					log.Printf("Loaded rate limit configuration from %s", path)
				}
			}
		}
	}
	loaded = &cfg
	initialized = true
}

func findUpConfig() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "rate_limits.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}

func get() *config {
	mu.RLock()
	if initialized {
		defer mu.RUnlock()
		return loaded
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		loadLocked()
	}
	return loaded
}

// LimitForService resolves the configured limit for a service name,
// falling back to built-in defaults.
func LimitForService(service string) ServiceLimit {
	name := strings.ToLower(strings.TrimSpace(service))
	cfg := get()
	if cfg != nil && cfg.RateLimits.ServiceOverrides != nil {
		if o, ok := cfg.RateLimits.ServiceOverrides[name]; ok && o.MaxCalls > 0 && o.PeriodS > 0 {
			return ServiceLimit{MaxCalls: o.MaxCalls, Period: time.Duration(o.PeriodS * float64(time.Second))}
		}
	}
	if l, ok := builtInServiceLimits[name]; ok {
		return l
	}
	return ServiceLimit{MaxCalls: 10, Period: time.Second}
}

// Reload drops the cached config so the next lookup re-reads it.
func Reload() {
	mu.Lock()
	defer mu.Unlock()
	initialized = false
	loadLocked()
}

// Limiter is a token bucket. Tokens are fractional; refill is lazy on
// each acquire.
type Limiter struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLimiter builds a bucket allowing maxCalls per period, starting full.
func NewLimiter(maxCalls int, period time.Duration) *Limiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	if period <= 0 {
		period = time.Second
	}
	return &Limiter{
		capacity:   float64(maxCalls),
		refillRate: float64(maxCalls) / period.Seconds(),
		tokens:     float64(maxCalls),
		lastRefill: time.Now(),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// NewLimiterForService builds a bucket from the service table.
func NewLimiterForService(service string) *Limiter {
	l := LimitForService(service)
	return NewLimiter(l.MaxCalls, l.Period)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *Limiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.refillRate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
		l.lastRefill = now
	}
}

// TryAcquire takes a token without blocking. Returns false when empty.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Acquire blocks until a token is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refillLocked()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.refillRate * float64(time.Second))
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Tokens reports the current token count after refill.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.tokens
}

// Registry hands out one shared limiter per service.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty limiter registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// For returns the limiter for a service, creating it on first use.
func (r *Registry) For(service string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(strings.TrimSpace(service))
	if l, ok := r.limiters[name]; ok {
		return l
	}
	l := NewLimiterForService(name)
	r.limiters[name] = l
	return l
}

// Retry policy constants.
const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 16 * time.Second
	retryMultiplier      = 2.0
	MaxRetries           = 3
)

// HTTPStatusError carries a non-2xx response status through the retry
// classifier.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// IsRetryable reports whether an error warrants another attempt.
// 429 and 5xx are retryable; other 4xx are not; timeouts and connection
// failures are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *HTTPStatusError
	if errors.As(err, &se) {
		if se.StatusCode == 429 {
			return true
		}
		if se.StatusCode >= 500 {
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}

// NewBackoff returns the standard exponential backoff for provider
// calls: 0.5s base, x2, capped at 16s.
func NewBackoff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.Multiplier = retryMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// Retry runs op under the standard backoff; non-retryable errors abort
// immediately as permanent.
func Retry(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, NewBackoff(ctx))
}
