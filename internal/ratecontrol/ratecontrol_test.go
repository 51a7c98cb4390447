package ratecontrol

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_StartsFull(t *testing.T) {
	l := NewLimiter(3, time.Second)
	for i := 0; i < 3; i++ {
		if !l.TryAcquire() {
			t.Fatalf("expected token %d available", i)
		}
	}
	if l.TryAcquire() {
		t.Fatal("expected bucket empty after capacity draws")
	}
}

func TestLimiter_Refills(t *testing.T) {
	l := NewLimiter(2, 100*time.Millisecond)
	base := time.Now()
	l.now = func() time.Time { return base }
	l.lastRefill = base

	if !l.TryAcquire() || !l.TryAcquire() {
		t.Fatal("expected two initial tokens")
	}
	if l.TryAcquire() {
		t.Fatal("expected empty bucket")
	}

	// half a period restores one token
	l.now = func() time.Time { return base.Add(50 * time.Millisecond) }
	if !l.TryAcquire() {
		t.Fatal("expected one token after refill")
	}
	if l.TryAcquire() {
		t.Fatal("expected bucket empty again")
	}
}

func TestLimiter_AcquireBlocksThenSucceeds(t *testing.T) {
	l := NewLimiter(1, 50*time.Millisecond)
	if !l.TryAcquire() {
		t.Fatal("expected initial token")
	}

	start := time.Now()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited := time.Since(start); waited < 20*time.Millisecond {
		t.Fatalf("expected a blocking wait, waited only %v", waited)
	}
}

func TestLimiter_AcquireHonorsCancel(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	l.TryAcquire()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLimitForService_Defaults(t *testing.T) {
	llm := LimitForService("llm")
	if llm.MaxCalls != 10 || llm.Period != time.Second {
		t.Fatalf("unexpected llm limit: %+v", llm)
	}
	search := LimitForService("search")
	if search.MaxCalls != 5 {
		t.Fatalf("unexpected search limit: %+v", search)
	}
}

func TestRegistry_SharesLimiters(t *testing.T) {
	r := NewRegistry()
	a := r.For("llm")
	b := r.For("LLM")
	if a != b {
		t.Fatal("expected the same limiter instance per service")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&HTTPStatusError{StatusCode: 429}, true},
		{&HTTPStatusError{StatusCode: 503}, true},
		{&HTTPStatusError{StatusCode: 400}, false},
		{&HTTPStatusError{StatusCode: 404}, false},
		{context.DeadlineExceeded, true},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRetry_PermanentOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return &HTTPStatusError{StatusCode: 400}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt for a 400, got %d", calls)
	}
}
