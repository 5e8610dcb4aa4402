package executor

import (
	"context"
	"testing"
	"time"
)

func TestNewWebSocketExecutorAppliesDefaults(t *testing.T) {
	e := NewWebSocketExecutor(WebSocketExecutorConfig{URL: "ws://example.invalid/fuzz"})
	if e.timeout != 5*time.Second {
		t.Fatalf("expected default timeout of 5s, got %v", e.timeout)
	}
	if e.covJSONPath != "coverage" {
		t.Fatalf("expected default coverage path %q, got %q", "coverage", e.covJSONPath)
	}
}

func TestNewWebSocketExecutorHonorsOverrides(t *testing.T) {
	e := NewWebSocketExecutor(WebSocketExecutorConfig{
		URL:         "ws://example.invalid/fuzz",
		Timeout:     2 * time.Second,
		CovJSONPath: "trace",
	})
	if e.timeout != 2*time.Second {
		t.Fatalf("expected overridden timeout of 2s, got %v", e.timeout)
	}
	if e.covJSONPath != "trace" {
		t.Fatalf("expected overridden coverage path %q, got %q", "trace", e.covJSONPath)
	}
}

func TestWebSocketExecutorExecuteFailsOnUnreachableTarget(t *testing.T) {
	e := NewWebSocketExecutor(WebSocketExecutorConfig{URL: "ws://127.0.0.1:1/fuzz", Timeout: 200 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := e.Execute(ctx, []byte("input"))
	if err != nil {
		t.Fatalf("unexpected error (failures should surface as a crashed result): %v", err)
	}
	if !res.Crashed {
		t.Fatal("expected a dial failure against an unreachable target to report Crashed")
	}
}
