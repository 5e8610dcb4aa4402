package executor

import (
	"testing"
	"time"
)

func TestParseTimeoutAcceptsBareMilliseconds(t *testing.T) {
	d, err := ParseTimeout("1500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 1500*time.Millisecond {
		t.Fatalf("expected 1500ms, got %v", d)
	}
}

func TestParseTimeoutAcceptsGoDuration(t *testing.T) {
	d, err := ParseTimeout("500ms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", d)
	}
}

func TestParseTimeoutRejectsGarbage(t *testing.T) {
	if _, err := ParseTimeout("not-a-timeout"); err == nil {
		t.Fatal("expected an error for an unparseable timeout")
	}
}

func TestIsCrashExitCode(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{0, false},
		{1, false},
		{128 + 11, true}, // SIGSEGV-style exit code
		{139, true},
		{159, true},
		{160, false},
		{127, false},
	}
	for _, c := range cases {
		if got := isCrashExitCode(c.code); got != c.want {
			t.Errorf("isCrashExitCode(%d) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestNewForkExecutorDetectsStdinMode(t *testing.T) {
	withPlaceholder := NewForkExecutor([]string{"target", "@@"}, time.Second, t.TempDir())
	if withPlaceholder.StdinMode {
		t.Fatal("argv containing @@ should not enable stdin mode")
	}

	withoutPlaceholder := NewForkExecutor([]string{"target"}, time.Second, t.TempDir())
	if !withoutPlaceholder.StdinMode {
		t.Fatal("argv without @@ should enable stdin mode")
	}
}
