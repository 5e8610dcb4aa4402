// Package executor provides the concrete coverage.Executor implementations
// a fuzzing run drives against: a forked subprocess harness, an HTTP
// persistent-mode target, a WebSocket persistent-mode target, and a direct
// in-process function for self-tests.
package executor

import "github.com/fluxfuzzer/fluxfuzzer/internal/coverage"

// classify is the small status-assignment helper every Executor in this
// package shares, so status assignment stays consistent across transports.
func classify(res *coverage.ExecutionResult) {
	switch {
	case res.TimedOut:
		res.Status = coverage.ExecTimeout
	case res.Crashed:
		res.Status = coverage.ExecCrash
	default:
		res.Status = coverage.ExecNone
	}
}
