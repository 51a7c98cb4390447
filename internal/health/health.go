// Package health probes the external services a run depends on and
// serves the result over HTTP next to the metrics endpoint.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Status is the aggregate service condition.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 2 * time.Second

// Checker probes one dependency. Critical failures mark the whole
// service unhealthy; non-critical ones only degrade it.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
	Critical() bool
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Status     Status  `json:"status"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// Report aggregates all probe outcomes.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Manager runs registered checkers and reports the aggregate.
type Manager struct {
	mu       sync.Mutex
	checkers []Checker
	logger   *zap.Logger
}

// NewManager creates an empty health manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// Register adds a checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Evaluate runs every checker with a per-probe timeout.
func (m *Manager) Evaluate(ctx context.Context) Report {
	m.mu.Lock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.Unlock()

	report := Report{Status: StatusHealthy, Checks: make(map[string]CheckResult, len(checkers))}
	for _, c := range checkers {
		probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := c.Check(probeCtx)
		cancel()

		result := CheckResult{Status: StatusHealthy, DurationMS: float64(time.Since(start).Microseconds()) / 1000}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
			if c.Critical() {
				report.Status = StatusUnhealthy
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
			m.logger.Warn("Health check failed",
				zap.String("check", c.Name()),
				zap.Bool("critical", c.Critical()),
				zap.Error(err),
			)
		}
		report.Checks[c.Name()] = result
	}
	return report
}

// Handler serves the aggregate health as JSON. Unhealthy maps to 503;
// degraded still returns 200.
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		report := m.Evaluate(r.Context())

		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
}

// HTTPChecker probes a dependency over HTTP with a GET request.
type HTTPChecker struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

// NewHTTPChecker probes url; any response below 500 counts as up, since
// a 404 on the probe path still proves the service is reachable.
func NewHTTPChecker(name, url string, critical bool) *HTTPChecker {
	return &HTTPChecker{
		name:     name,
		url:      url,
		critical: critical,
		client:   &http.Client{Timeout: checkTimeout},
	}
}

func (c *HTTPChecker) Name() string   { return c.name }
func (c *HTTPChecker) Critical() bool { return c.critical }

func (c *HTTPChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// RedisChecker pings the shared cache backend.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a non-critical probe; the engine works
// without Redis, just without cross-process cache hits.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string   { return "redis" }
func (c *RedisChecker) Critical() bool { return false }

func (c *RedisChecker) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
