package executor

import (
	"context"
	"time"

	"github.com/fluxfuzzer/fluxfuzzer/internal/coverage"
)

// TargetFunc is an in-process harness: given an input, it returns the raw
// coverage trace it produced and whether it panicked/crashed.
type TargetFunc func(input []byte) (trace []byte, crashed bool)

// PassthroughExecutor calls a Go function directly instead of forking a
// subprocess or dialing a network target. It exists for self-tests and for
// fuzzing pure-Go targets linked directly into this binary, recovering
// panics the same way the teacher's worker pool guards goroutines
// (internal/parallel/worker_pool.go's recover-and-report pattern).
type PassthroughExecutor struct {
	Target  TargetFunc
	Timeout time.Duration
}

// NewPassthroughExecutor wraps target with an optional per-call timeout.
func NewPassthroughExecutor(target TargetFunc, timeout time.Duration) *PassthroughExecutor {
	return &PassthroughExecutor{Target: target, Timeout: timeout}
}

// Execute runs Target on input, converting a panic into a crash result
// rather than propagating it, and enforcing Timeout via a done channel
// since a blocked Go call can't be killed the way a subprocess can.
func (p *PassthroughExecutor) Execute(ctx context.Context, input []byte) (*coverage.ExecutionResult, error) {
	type outcome struct {
		trace   []byte
		crashed bool
	}

	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{trace: make([]byte, coverage.MapSize), crashed: true}
			}
		}()
		trace, crashed := p.Target(input)
		done <- outcome{trace: trace, crashed: crashed}
	}()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	select {
	case o := <-done:
		res := &coverage.ExecutionResult{
			Trace:    padTrace(o.trace),
			Crashed:  o.crashed,
			Duration: time.Since(start),
		}
		classify(res)
		return res, nil
	case <-time.After(timeout):
		res := &coverage.ExecutionResult{
			Trace:    make([]byte, coverage.MapSize),
			TimedOut: true,
			Duration: time.Since(start),
		}
		classify(res)
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func padTrace(trace []byte) []byte {
	if len(trace) == coverage.MapSize {
		return trace
	}
	out := make([]byte, coverage.MapSize)
	copy(out, trace)
	return out
}
