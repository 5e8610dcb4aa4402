package coverage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxfuzzer/fluxfuzzer/internal/pipeline"
)

// MutationStage names one step of the deterministic-then-havoc pipeline a
// FeedbackLoop drives per queue entry (spec.md §4.5).
type MutationStage int

const (
	StageDeterministic MutationStage = iota
	StageHavocStage
	StageSpliceStage
)

// Mutation is one candidate produced by a MutationSource: the bytes to run
// plus the bookkeeping the corpus needs if it turns out interesting.
type Mutation struct {
	Data  []byte
	Stage string // one of the coverage.Stage* constants
	Pos   int
	HasPos bool
}

// MutationSource generates candidate inputs from a base test case. The
// feedback loop only depends on this interface, not on any concrete
// mutator implementation, so the mutator package can keep depending on
// nothing but byte buffers and a dictionary model.
type MutationSource interface {
	// Deterministic yields the entry's deterministic-stage candidates
	// (bitflip/byteflip/arith/interest/extras) over ch, closing it when
	// exhausted or ctx is done. Returns the per-stage find counts are left
	// to the caller's own bookkeeping via the returned mutations.
	Deterministic(ctx context.Context, base []byte, passedDet bool) <-chan Mutation
	// Havoc yields `iterations` havoc-stage candidates.
	Havoc(ctx context.Context, base []byte, iterations int) <-chan Mutation
	// Splice yields candidates built by recombining base with another
	// queue entry, then re-running through havoc for a few iterations.
	Splice(ctx context.Context, base []byte, other []byte, iterations int) <-chan Mutation
}

// Counters are the global run counters spec.md §3 tracks across the whole
// session (exposed for status reporting / the TUI).
type Counters struct {
	QueuedPaths    int64
	UniqueCrashes  int64
	UniqueHangs    int64
	TotalExecs     int64
	QueueCycle     int64
	CyclesWoFinds  int64
	LastPathTime   int64 // unix nanos, 0 if none yet

	mu     sync.Mutex
	nFuzz  []int64 // histogram indexed by TestCase.NFuzzEntry
}

// NewCounters creates a zeroed counters block.
func NewCounters() *Counters {
	return &Counters{nFuzz: make([]int64, 0, 1024)}
}

// NFuzzHits returns the current hit count for a histogram bucket.
func (c *Counters) NFuzzHits(entry int) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry < 0 || entry >= len(c.nFuzz) {
		return 0
	}
	return c.nFuzz[entry]
}

// NFuzzBump increments a test case's histogram bucket, allocating a fresh
// one if it is new.
func (c *Counters) NFuzzBump(tc *TestCase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tc.NFuzzEntry == 0 && len(c.nFuzz) == 0 {
		c.nFuzz = append(c.nFuzz, 0)
	}
	for tc.NFuzzEntry >= len(c.nFuzz) {
		c.nFuzz = append(c.nFuzz, 0)
	}
	c.nFuzz[tc.NFuzzEntry]++
}

// MedianNFuzz computes the global median hit count, used by the COE
// schedule.
func (c *Counters) MedianNFuzz() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.nFuzz) == 0 {
		return 0
	}
	sorted := append([]int64(nil), c.nFuzz...)
	for i := 1; i < len(sorted); i++ {
		v := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > v {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = v
	}
	return int(sorted[len(sorted)/2])
}

// FeedbackLoop is the control loop of spec.md §4.5: it pulls the next entry
// from its Scheduler, calibrates/trims it if needed, computes its energy
// budget, drives its deterministic and havoc/splice stages through a
// MutationSource, and feeds every resulting execution back through
// HasNewBits to decide what the corpus and triager retain.
type FeedbackLoop struct {
	Corpus    *Corpus
	Scheduler Scheduler
	Executor  Executor
	Source    MutationSource
	Triager   *Triager
	Virgins   *VirginMaps
	Counters  *Counters

	Schedule    Schedule
	BaseEnergy  float64
	IgnoreFinds bool
	HangTimeout time.Duration

	stopSoon atomic.Bool
}

// NewFeedbackLoop wires a control loop over already-constructed
// collaborators.
func NewFeedbackLoop(corpus *Corpus, sched Scheduler, exec Executor, src MutationSource, triager *Triager, virgins *VirginMaps) *FeedbackLoop {
	return &FeedbackLoop{
		Corpus:     corpus,
		Scheduler:  sched,
		Executor:   exec,
		Source:     src,
		Triager:    triager,
		Virgins:    virgins,
		Counters:   NewCounters(),
		Schedule:   ScheduleFast,
		BaseEnergy: 1,
	}
}

// Stop requests the loop exit at the next safe point (between full
// executions), the same discipline a signal handler uses in spec.md §5:
// suspension is only safe inside Executor calls, never mid-update.
func (f *FeedbackLoop) Stop() { f.stopSoon.Store(true) }

// StopRequested reports whether Stop has been called.
func (f *FeedbackLoop) StopRequested() bool { return f.stopSoon.Load() }

// runState is the per-tick state the RunOnce pipeline's stages share. It is
// rebuilt fresh for every scheduled entry, never reused across ticks.
type runState struct {
	ctx          context.Context
	tc           *TestCase
	entries      []*TestCase
	avg          GlobalAverages
	energy       float64
	foundNewPath bool
}

// RunOnce executes the eight-step body of the control loop for a single
// scheduled entry (spec.md §4.5) as an internal/pipeline.Pipeline: a flat,
// data-defined stage sequence rather than a type hierarchy, so adding or
// reordering a step is a one-line edit to runOncePipeline. It returns false
// when the scheduler returned no entry (an empty corpus).
func (f *FeedbackLoop) RunOnce(ctx context.Context) (bool, error) {
	entries := f.Corpus.Entries()
	tc := f.Scheduler.Next(entries)
	if tc == nil {
		return false, nil
	}

	rs := &runState{ctx: ctx, tc: tc, entries: entries}
	pc := &pipeline.Context{Data: rs}
	err := f.runOncePipeline().Run(pc)
	return true, err
}

// runOncePipeline builds the calibrate/trim/energy/deterministic/havoc/
// splice/bookkeeping sequence. Construction is cheap (a handful of
// closures), so it is rebuilt per call rather than cached on FeedbackLoop.
func (f *FeedbackLoop) runOncePipeline() *pipeline.Pipeline {
	return pipeline.New("fuzz-entry",
		f.stageCalibrate,
		f.stageTrim,
		f.stageEnergy,
		f.stageDeterministic,
		f.stageHavoc,
		f.stageSplice,
		f.stageBookkeeping,
	)
}

// stageCalibrate retries calibration if a previous attempt failed or this
// is a freshly-added entry (BitmapSize == 0 means never calibrated).
func (f *FeedbackLoop) stageCalibrate(c *pipeline.Context) pipeline.Outcome {
	rs := c.Data.(*runState)
	tc := rs.tc
	if tc.CalFailed == 0 && tc.BitmapSize != 0 {
		return pipeline.Continue
	}
	trace, err := Calibrate(rs.ctx, tc, f.Executor)
	if err == ErrCalibrationBroken {
		return pipeline.Stop
	}
	if err != nil {
		c.Err = err
		return pipeline.Abort
	}
	f.Corpus.RefreshTopRated(tc, trace)
	f.Corpus.CullQueue(tc.BitmapSize)
	return pipeline.Continue
}

// stageTrim trims the entry once, regardless of outcome.
func (f *FeedbackLoop) stageTrim(c *pipeline.Context) pipeline.Outcome {
	rs := c.Data.(*runState)
	if rs.tc.TrimDone {
		return pipeline.Continue
	}
	if _, err := Trim(rs.ctx, rs.tc, f.Executor); err != nil {
		c.Err = err
		return pipeline.Abort
	}
	return pipeline.Continue
}

// stageEnergy computes this round's energy budget.
func (f *FeedbackLoop) stageEnergy(c *pipeline.Context) pipeline.Outcome {
	rs := c.Data.(*runState)
	rs.avg = f.globalAverages()
	hits := int(f.Counters.NFuzzHits(rs.tc.NFuzzEntry))
	rs.energy = ComputeEnergy(f.BaseEnergy, rs.tc, rs.avg, f.Schedule, hits)
	if ksched, ok := f.Scheduler.(*KScheduler); ok {
		rs.energy = ksched.Filter.Energy(rs.tc, rs.energy)
	}
	return pipeline.Continue
}

// stageDeterministic runs the deterministic stages, unless already
// completed for this entry.
func (f *FeedbackLoop) stageDeterministic(c *pipeline.Context) pipeline.Outcome {
	rs := c.Data.(*runState)
	if rs.tc.PassedDet {
		return pipeline.Continue
	}
	det := f.Source.Deterministic(rs.ctx, rs.tc.Data, rs.tc.PassedDet)
	for m := range det {
		if f.stopSoon.Load() {
			break
		}
		newPath, err := f.runCandidate(rs.ctx, rs.tc, m)
		if err != nil {
			c.Err = err
			return pipeline.Abort
		}
		rs.foundNewPath = rs.foundNewPath || newPath
	}
	rs.tc.PassedDet = true
	return pipeline.Continue
}

// stageHavoc runs the havoc stage, its iteration budget scaled by energy.
func (f *FeedbackLoop) stageHavoc(c *pipeline.Context) pipeline.Outcome {
	rs := c.Data.(*runState)
	if f.stopSoon.Load() {
		return pipeline.Continue
	}
	havoc := f.Source.Havoc(rs.ctx, rs.tc.Data, int(rs.energy))
	for m := range havoc {
		if f.stopSoon.Load() {
			break
		}
		newPath, err := f.runCandidate(rs.ctx, rs.tc, m)
		if err != nil {
			c.Err = err
			return pipeline.Abort
		}
		rs.foundNewPath = rs.foundNewPath || newPath
	}
	return pipeline.Continue
}

// stageSplice runs the splice stage, only once the scheduler has flagged a
// dry cycle and the caller hasn't disabled it via -d/ignore_finds
// semantics.
func (f *FeedbackLoop) stageSplice(c *pipeline.Context) pipeline.Outcome {
	rs := c.Data.(*runState)
	fifoSched, ok := f.Scheduler.(*FIFOScheduler)
	if !ok || !fifoSched.UseSplicing || f.IgnoreFinds || f.stopSoon.Load() {
		return pipeline.Continue
	}
	other := pickSpliceDonor(rs.entries, rs.tc)
	if other == nil {
		return pipeline.Continue
	}
	splice := f.Source.Splice(rs.ctx, rs.tc.Data, other.Data, int(rs.energy))
	for m := range splice {
		if f.stopSoon.Load() {
			break
		}
		newPath, err := f.runCandidate(rs.ctx, rs.tc, m)
		if err != nil {
			c.Err = err
			return pipeline.Abort
		}
		rs.foundNewPath = rs.foundNewPath || newPath
	}
	return pipeline.Continue
}

// stageBookkeeping updates the entry's fuzz-level bookkeeping and the
// global last-path-found clock.
func (f *FeedbackLoop) stageBookkeeping(c *pipeline.Context) pipeline.Outcome {
	rs := c.Data.(*runState)
	rs.tc.WasFuzzed = true
	rs.tc.FuzzLevel++
	f.Counters.NFuzzBump(rs.tc)
	if rs.foundNewPath {
		f.Counters.LastPathTime = nowUnixNanoHook()
	}
	return pipeline.Continue
}

// runCandidate executes one mutated candidate, classifies its trace, and
// either retains it into the corpus (new coverage) or hands it to the
// triager (crash/hang). Returns whether it introduced a new path.
func (f *FeedbackLoop) runCandidate(ctx context.Context, parent *TestCase, m Mutation) (bool, error) {
	res, err := f.Executor.Execute(ctx, m.Data)
	atomic.AddInt64(&f.Counters.TotalExecs, 1)
	if err != nil {
		return false, err
	}

	if res.TimedOut {
		new, name, terr := f.Triager.TriageHang(ctx, m.Data, res, m.Stage, f.Executor)
		if terr != nil {
			return false, terr
		}
		if new && name != "" {
			atomic.AddInt64(&f.Counters.UniqueHangs, 1)
		}
		return false, nil
	}
	if res.Crashed {
		new, name, terr := f.Triager.TriageCrash(m.Data, res, m.Stage)
		if terr != nil {
			return false, terr
		}
		if new && name != "" {
			atomic.AddInt64(&f.Counters.UniqueCrashes, 1)
		}
		return false, nil
	}

	classified := Classified(res.Trace)
	status := HasNewBits(classified, f.Virgins.Bits)
	if status == NoNewBits {
		return false, nil
	}

	child, aerr := f.Corpus.Add(m.Data, parent.ID, parent.Depth+1, m.Stage, m.Pos, m.HasPos)
	if aerr != nil {
		return false, aerr
	}
	child.HasNewCov = status == NewEdge

	trace, cerr := Calibrate(ctx, child, f.Executor)
	if cerr == ErrCalibrationBroken {
		return false, nil
	}
	if cerr != nil {
		return false, cerr
	}
	f.Corpus.RefreshTopRated(child, trace)
	f.Corpus.CullQueue(child.BitmapSize)

	atomic.AddInt64(&f.Counters.QueuedPaths, 1)
	return true, nil
}

// globalAverages recomputes the corpus-wide averages ComputeEnergy needs.
// Cheap enough to recompute per scheduling decision at the corpus sizes this
// package targets; a large-scale deployment would cache this incrementally.
func (f *FeedbackLoop) globalAverages() GlobalAverages {
	return ComputeGlobalAverages(f.Corpus.Entries(), f.Counters)
}

// ComputeGlobalAverages computes the corpus-wide averages ComputeEnergy and
// DefaultWeight need, exported so a caller wiring its own Scheduler (an
// AliasScheduler's WeightFunc, for instance) can build them outside a
// FeedbackLoop.
func ComputeGlobalAverages(entries []*TestCase, counters *Counters) GlobalAverages {
	if len(entries) == 0 {
		return GlobalAverages{}
	}
	var sumExec, sumBitmap float64
	for _, e := range entries {
		sumExec += float64(e.ExecUs)
		sumBitmap += float64(e.BitmapSize)
	}
	avg := GlobalAverages{
		AvgExecUs:     sumExec / float64(len(entries)),
		AvgBitmapSize: sumBitmap / float64(len(entries)),
	}
	if counters != nil {
		avg.MedianNFuzz = counters.MedianNFuzz()
	}
	return avg
}

// AverageTCRef computes the corpus-wide average TCRef (top-rated reference
// count), the avgTopSize term DefaultWeight normalizes against.
func AverageTCRef(entries []*TestCase) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += float64(e.TCRef)
	}
	return sum / float64(len(entries))
}

// pickSpliceDonor finds another favored entry whose data differs from tc's
// to splice against, or nil if none qualifies.
func pickSpliceDonor(entries []*TestCase, tc *TestCase) *TestCase {
	for _, e := range entries {
		if e == tc || !e.Favored {
			continue
		}
		if len(e.Data) > 1 {
			return e
		}
	}
	return nil
}

// nowUnixNanoHook centralizes the one wall-clock read LastPathTime needs,
// so a future "resume" implementation has a single seam to inject a fixed
// clock for deterministic replay.
func nowUnixNanoHook() int64 {
	return time.Now().UnixNano()
}
