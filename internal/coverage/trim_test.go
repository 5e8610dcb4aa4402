package coverage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// markerExecutor's trace depends only on how many 'A' bytes (capped at 2, so
// classification never remaps it) the input contains. Removing any other
// byte leaves the checksum unchanged, so Trim can strip filler down to the
// markers without the test needing a real instrumented target.
type markerExecutor struct{}

func (markerExecutor) Execute(ctx context.Context, input []byte) (*ExecutionResult, error) {
	count := bytes.Count(input, []byte{'A'})
	if count > 2 {
		count = 2
	}
	trace := make([]byte, 8)
	trace[0] = byte(count)
	return &ExecutionResult{Trace: trace}, nil
}

func markerChecksum(data []byte) uint32 {
	res, _ := markerExecutor{}.Execute(context.Background(), data)
	return ChecksumTrace(Classified(res.Trace))
}

func TestTrimRemovesFillerKeepsChecksum(t *testing.T) {
	original := []byte("AA" + strings.Repeat("X", 60))
	tc := &TestCase{Data: original, ExecCksum: markerChecksum(original)}

	trimmed, err := Trim(context.Background(), tc, markerExecutor{})
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if !trimmed {
		t.Fatal("expected trimming to remove at least one byte")
	}
	if !tc.TrimDone {
		t.Error("TrimDone should be set")
	}
	if len(tc.Data) >= len(original) {
		t.Errorf("Data len = %d, want < %d", len(tc.Data), len(original))
	}
	if bytes.Count(tc.Data, []byte{'A'}) != 2 {
		t.Errorf("expected both markers preserved, got %q", tc.Data)
	}
}

func TestTrimPersistsToPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000000")
	original := []byte("AA" + strings.Repeat("X", 60))
	if err := os.WriteFile(path, original, 0644); err != nil {
		t.Fatal(err)
	}

	tc := &TestCase{Data: original, Path: path, ExecCksum: markerChecksum(original)}
	trimmed, err := Trim(context.Background(), tc, markerExecutor{})
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if !trimmed {
		t.Fatal("expected trimming to occur")
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, tc.Data) {
		t.Errorf("on-disk bytes %q do not match tc.Data %q", onDisk, tc.Data)
	}
}

func TestTrimShortInputNoop(t *testing.T) {
	tc := &TestCase{Data: []byte("AB")}
	trimmed, err := Trim(context.Background(), tc, markerExecutor{})
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if trimmed {
		t.Error("expected no trimming below the minimum input size")
	}
	if !tc.TrimDone {
		t.Error("TrimDone should still be set")
	}
}

func TestNextPow2(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {16, 16}, {17, 32},
	}
	for _, tt := range tests {
		if got := nextPow2(tt.in); got != tt.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
