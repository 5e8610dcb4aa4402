package executor

import (
	"context"
	"testing"
	"time"

	"github.com/fluxfuzzer/fluxfuzzer/internal/coverage"
)

func TestPassthroughExecutorNormalRun(t *testing.T) {
	e := NewPassthroughExecutor(func(input []byte) ([]byte, bool) {
		trace := make([]byte, 4)
		trace[0] = 1
		return trace, false
	}, time.Second)

	res, err := e.Execute(context.Background(), []byte("input"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Crashed || res.TimedOut {
		t.Fatalf("expected a clean run, got %+v", res)
	}
	if len(res.Trace) != coverage.MapSize {
		t.Fatalf("expected trace padded to %d, got %d", coverage.MapSize, len(res.Trace))
	}
}

func TestPassthroughExecutorRecoversPanic(t *testing.T) {
	e := NewPassthroughExecutor(func(input []byte) ([]byte, bool) {
		panic("boom")
	}, time.Second)

	res, err := e.Execute(context.Background(), []byte("input"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Crashed {
		t.Fatal("expected a panic to be converted into a crash result")
	}
}

func TestPassthroughExecutorEnforcesTimeout(t *testing.T) {
	e := NewPassthroughExecutor(func(input []byte) ([]byte, bool) {
		time.Sleep(100 * time.Millisecond)
		return nil, false
	}, 10*time.Millisecond)

	res, err := e.Execute(context.Background(), []byte("input"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected a slow target to time out")
	}
}

func TestPassthroughExecutorReportsResultCrashed(t *testing.T) {
	e := NewPassthroughExecutor(func(input []byte) ([]byte, bool) {
		return make([]byte, 8), true
	}, time.Second)

	res, err := e.Execute(context.Background(), []byte("input"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Crashed {
		t.Fatal("expected Target's crashed=true to be preserved")
	}
}
