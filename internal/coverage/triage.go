package coverage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// VirginMaps bundles the three global virgin maps (spec.md §3): normal
// coverage, timeouts, and crashes.
type VirginMaps struct {
	Bits   *VirginMap
	Tmout  *VirginMap
	Crash  *VirginMap
}

// NewVirginMaps creates the three virgin maps at the given bitmap size.
func NewVirginMaps(size int) *VirginMaps {
	return &VirginMaps{
		Bits:  NewVirginMap(size),
		Tmout: NewVirginMap(size),
		Crash: NewVirginMap(size),
	}
}

// Triager retains crashes/hangs that introduce a new edge against their own
// virgin maps, writing them to <out>/crashes and <out>/hangs (spec.md §4.1
// Triage, §6 naming).
type Triager struct {
	dir        string
	virgins    *VirginMaps
	hangTmout  time.Duration
	nextCrash  int
	nextHang   int
}

// NewTriager creates a triager writing under dir with the given generous
// re-run timeout for confirming hangs.
func NewTriager(dir string, virgins *VirginMaps, hangTimeout time.Duration) *Triager {
	os.MkdirAll(filepath.Join(dir, "crashes"), 0755)
	os.MkdirAll(filepath.Join(dir, "hangs"), 0755)
	return &Triager{dir: dir, virgins: virgins, hangTmout: hangTimeout}
}

// TriageCrash simplifies the trace, checks it against virgin_crash, and on
// a new bit writes crashes/id:NNNNNN,sig:SS,<op>.
func (t *Triager) TriageCrash(input []byte, res *ExecutionResult, op string) (bool, string, error) {
	simplified := SimplifyTrace(Classified(res.Trace))
	if HasNewBits(simplified, t.virgins.Crash) == NoNewBits {
		return false, "", nil
	}

	name := fmt.Sprintf("id:%06d,sig:%02d,%s", t.nextCrash, res.Signal, op)
	t.nextCrash++
	path := filepath.Join(t.dir, "crashes", name)
	if err := os.WriteFile(path, input, 0644); err != nil {
		return true, name, err
	}
	return true, name, nil
}

// TriageHang simplifies the trace, checks it against virgin_tmout, re-runs
// with the generous hang_tmout to rule out slow-but-correct inputs, and on
// a confirmed, new-bit hang writes hangs/id:NNNNNN,<op>.
func (t *Triager) TriageHang(ctx context.Context, input []byte, res *ExecutionResult, op string, exec Executor) (bool, string, error) {
	simplified := SimplifyTrace(Classified(res.Trace))
	if HasNewBits(simplified, t.virgins.Tmout) == NoNewBits {
		return false, "", nil
	}

	confirmCtx, cancel := context.WithTimeout(ctx, t.hangTmout)
	defer cancel()
	confirm, err := exec.Execute(confirmCtx, input)
	if err != nil || !confirm.TimedOut {
		return false, "", nil
	}

	name := fmt.Sprintf("id:%06d,%s", t.nextHang, op)
	t.nextHang++
	path := filepath.Join(t.dir, "hangs", name)
	if werr := os.WriteFile(path, input, 0644); werr != nil {
		return true, name, werr
	}
	return true, name, nil
}
