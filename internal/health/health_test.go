package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubChecker struct {
	name     string
	err      error
	critical bool
}

func (s *stubChecker) Name() string                  { return s.name }
func (s *stubChecker) Check(_ context.Context) error { return s.err }
func (s *stubChecker) Critical() bool                { return s.critical }

func TestManager_AllHealthy(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&stubChecker{name: "llm", critical: true})
	m.Register(&stubChecker{name: "search", critical: true})

	report := m.Evaluate(context.Background())
	require.Equal(t, StatusHealthy, report.Status)
	require.Len(t, report.Checks, 2)
}

func TestManager_NonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&stubChecker{name: "llm", critical: true})
	m.Register(&stubChecker{name: "redis", err: fmt.Errorf("connection refused")})

	report := m.Evaluate(context.Background())
	require.Equal(t, StatusDegraded, report.Status)
	require.Equal(t, StatusUnhealthy, report.Checks["redis"].Status)
	require.Equal(t, "connection refused", report.Checks["redis"].Error)
}

func TestManager_CriticalFailureIsUnhealthy(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&stubChecker{name: "llm", err: fmt.Errorf("down"), critical: true})

	report := m.Evaluate(context.Background())
	require.Equal(t, StatusUnhealthy, report.Status)
}

func TestHandler_StatusCodes(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(&stubChecker{name: "llm", err: fmt.Errorf("down"), critical: true})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, StatusUnhealthy, report.Status)
}

func TestHTTPChecker_NotFoundStillCountsAsUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewHTTPChecker("llm", srv.URL+"/health", true)
	require.NoError(t, c.Check(context.Background()))
}

func TestHTTPChecker_ServerErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPChecker("llm", srv.URL+"/health", true)
	require.Error(t, c.Check(context.Background()))
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisChecker(rdb)
	require.NoError(t, c.Check(context.Background()))
	require.False(t, c.Critical())

	mr.Close()
	require.Error(t, c.Check(context.Background()))
}
