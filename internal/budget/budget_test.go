package budget

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestEstimate(t *testing.T) {
	if got := Estimate(""); got != 1 {
		t.Fatalf("expected minimum estimate 1, got %d", got)
	}
	if got := Estimate("abcd"); got != 1 {
		t.Fatalf("expected 1 for 4 chars, got %d", got)
	}
	if got := Estimate(string(make([]byte, 400))); got != 100 {
		t.Fatalf("expected 100 for 400 chars, got %d", got)
	}
}

func TestCheck_IterationCeiling(t *testing.T) {
	b := NewTokenBudget(zap.NewNop(), WithLimits(100, 1000))
	ctx := context.Background()

	if err := b.Check(ctx, 1, 90); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.Record(1, 90)

	err := b.Check(ctx, 1, 20)
	var be *ErrBudgetExceeded
	if !errors.As(err, &be) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if be.Scope != "iteration" || be.Limit != 100 || be.Current != 90 || be.Requested != 20 {
		t.Fatalf("unexpected error fields: %+v", be)
	}

	// a fresh iteration has its own ceiling
	if err := b.Check(ctx, 2, 20); err != nil {
		t.Fatalf("unexpected error for new iteration: %v", err)
	}
}

func TestCheck_RunCeiling(t *testing.T) {
	b := NewTokenBudget(zap.NewNop(), WithLimits(100, 150), WithSoftThreshold(0.99))
	ctx := context.Background()

	b.Record(1, 90)
	b.Record(2, 50)

	err := b.Check(ctx, 3, 20)
	var be *ErrBudgetExceeded
	if !errors.As(err, &be) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if be.Scope != "run" {
		t.Fatalf("expected run scope, got %q", be.Scope)
	}
}

func TestRecord_Concurrent(t *testing.T) {
	b := NewTokenBudget(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Record(1, 10)
		}()
	}
	wg.Wait()
	if got := b.RunUsed(); got != 500 {
		t.Fatalf("expected 500 tokens recorded, got %d", got)
	}
	if got := b.IterationUsed(1); got != 500 {
		t.Fatalf("expected 500 for iteration 1, got %d", got)
	}
}

func TestSnapshot_CopiesState(t *testing.T) {
	b := NewTokenBudget(zap.NewNop(), WithLimits(100, 1000))
	b.Record(1, 40)
	snap := b.Snapshot()
	if snap.RunUsed != 40 || snap.PerIteration[1] != 40 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	snap.PerIteration[1] = 999
	if b.IterationUsed(1) != 40 {
		t.Fatal("snapshot mutation leaked into budget state")
	}
}
