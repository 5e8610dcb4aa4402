package coverage

import (
	"crypto/rand"
	"encoding/binary"
	"math"
)

// Scheduler selects the next TestCase to fuzz.
type Scheduler interface {
	Next(entries []*TestCase) *TestCase
	// NotifyCycleComplete reports that a full queue cycle has finished, so
	// FIFO-style schedulers can flip use_splicing / exit_when_done style
	// hints. FeedbackLoop does not call it.
	NotifyCycleComplete(foundNewPaths bool)
}

func randFloat() float64 {
	var b [8]byte
	rand.Read(b[:])
	return float64(binary.BigEndian.Uint64(b[:])%1_000_000) / 1_000_000.0
}

func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	rand.Read(b[:])
	return int(binary.BigEndian.Uint64(b[:]) % uint64(n))
}

// --- FIFOScheduler: classical AFL skip-probability walk ---

// FIFOScheduler walks the corpus with a cursor, skipping entries with the
// probabilities spec.md §4.3 assigns: 99% skip of non-favored when any
// favored entry is still pending, 95% skip of already-fuzzed favored
// entries, 75% skip of already-fuzzed non-favored entries otherwise.
type FIFOScheduler struct {
	cursor          int
	UseSplicing     bool
	cyclesWithoutFinds int
	ExitWhenDone    bool
}

// NewFIFOScheduler creates a new classical-AFL scheduler.
func NewFIFOScheduler() *FIFOScheduler {
	return &FIFOScheduler{}
}

// Next returns the next entry to fuzz, applying the skip-probability walk.
// It scans the queue at most twice per call; if every candidate it meets is
// skipped it returns the first entry. It returns nil only for an empty
// corpus.
func (s *FIFOScheduler) Next(entries []*TestCase) *TestCase {
	if len(entries) == 0 {
		return nil
	}

	anyPendingFavored := false
	for _, e := range entries {
		if e.Favored && !e.WasFuzzed {
			anyPendingFavored = true
			break
		}
	}

	attempts := 0
	for attempts < len(entries)*2 {
		if s.cursor >= len(entries) {
			s.cursor = 0
		}
		e := entries[s.cursor]
		s.cursor++
		attempts++

		if s.shouldSkip(e, anyPendingFavored) {
			continue
		}
		return e
	}
	// Degenerate corpus (everything skipped): return the first entry rather
	// than spinning forever.
	return entries[0]
}

func (s *FIFOScheduler) shouldSkip(e *TestCase, anyPendingFavored bool) bool {
	if e.NearDuplicate && e.WasFuzzed {
		return randFloat() < 0.95
	}
	if anyPendingFavored {
		if !e.Favored {
			return randFloat() < 0.99
		}
		if e.WasFuzzed {
			return randFloat() < 0.95
		}
		return false
	}
	if !e.Favored && e.WasFuzzed {
		return randFloat() < 0.75
	}
	return false
}

// NotifyCycleComplete flips UseSplicing after a cycle with no new finds,
// and ExitWhenDone after two consecutive such cycles.
func (s *FIFOScheduler) NotifyCycleComplete(foundNewPaths bool) {
	if foundNewPaths {
		s.cyclesWithoutFinds = 0
		return
	}
	s.cyclesWithoutFinds++
	if s.cyclesWithoutFinds >= 1 {
		s.UseSplicing = true
	}
	if s.cyclesWithoutFinds >= 2 {
		s.ExitWhenDone = true
	}
}

// --- AliasScheduler: Walker's alias method over per-entry weights ---

// WeightFunc computes the AFL++/Rezzuf scalar weight for an entry
// (spec.md §4.3):
//
//	w = log10(hits+1)
//	  * (avgExecUs+eps)/(execUs+eps)
//	  * log(bitmapSize+1)/(avgBitmapSize+eps)
//	  * (1 + tcRef/(avgTopSize+eps))
//	  * (favored ? 5 : 1)
//	  * (wasFuzzed ? 1 : 2)
type WeightFunc func(tc *TestCase) float64

const weightEpsilon = 1e-8

// DefaultWeight implements the spec.md §4.3 weight formula given the
// corpus-wide n_fuzz hit count for this entry and the averages needed to
// normalize against.
func DefaultWeight(tc *TestCase, hits int, avg GlobalAverages, avgTopSize float64) float64 {
	w := math.Log10(float64(hits) + 1)
	w *= (avg.AvgExecUs + weightEpsilon) / (float64(tc.ExecUs) + weightEpsilon)
	w *= math.Log(float64(tc.BitmapSize)+1) / (avg.AvgBitmapSize + weightEpsilon)
	w *= 1 + float64(tc.TCRef)/(avgTopSize+weightEpsilon)
	if tc.Favored {
		w *= 5
	}
	if !tc.WasFuzzed {
		w *= 2
	}
	if w <= 0 {
		w = weightEpsilon
	}
	return w
}

// AliasTable is Walker's O(1) sampler for a discrete distribution: built
// once from a weight vector, each draw is a single uniform pick plus a
// biased coin flip, and satisfies P(pick i) = w_i / sum(w_j).
type AliasTable struct {
	prob  []float64
	alias []int
}

// BuildAliasTable constructs the table from non-negative weights.
func BuildAliasTable(weights []float64) *AliasTable {
	n := len(weights)
	table := &AliasTable{prob: make([]float64, n), alias: make([]int, n)}
	if n == 0 {
		return table
	}

	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		for i := range table.prob {
			table.prob[i] = 1
		}
		return table
	}

	scaled := make([]float64, n)
	small, large := make([]int, 0, n), make([]int, 0, n)
	for i, w := range weights {
		scaled[i] = w / total * float64(n)
		if scaled[i] < 1 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		s := small[len(small)-1]
		small = small[:len(small)-1]
		l := large[len(large)-1]
		large = large[:len(large)-1]

		table.prob[s] = scaled[s]
		table.alias[s] = l

		scaled[l] = scaled[l] + scaled[s] - 1
		if scaled[l] < 1 {
			small = append(small, l)
		} else {
			large = append(large, l)
		}
	}
	for _, l := range large {
		table.prob[l] = 1
	}
	for _, s := range small {
		table.prob[s] = 1
	}

	return table
}

// Sample draws one index in O(1).
func (t *AliasTable) Sample() int {
	n := len(t.prob)
	if n == 0 {
		return -1
	}
	i := randIntn(n)
	if randFloat() < t.prob[i] {
		return i
	}
	return t.alias[i]
}

// AliasScheduler rebuilds a Walker alias table whenever the corpus has
// grown and draws the next seed in O(1) (spec.md §4.3: AFL++/Rezzuf).
type AliasScheduler struct {
	weightFn    WeightFunc
	table       *AliasTable
	builtForLen int
	order       []*TestCase
}

// NewAliasScheduler creates an alias-table scheduler using the given weight
// function (typically DefaultWeight bound to current corpus averages).
func NewAliasScheduler(weightFn WeightFunc) *AliasScheduler {
	return &AliasScheduler{weightFn: weightFn}
}

// Rebuild recomputes weights and the alias table if the corpus has grown
// since the last build.
func (s *AliasScheduler) Rebuild(entries []*TestCase) {
	if len(entries) == s.builtForLen && s.table != nil {
		return
	}
	weights := make([]float64, len(entries))
	for i, e := range entries {
		weights[i] = s.weightFn(e)
	}
	s.table = BuildAliasTable(weights)
	s.order = entries
	s.builtForLen = len(entries)
}

// Next rebuilds the table if needed and draws the next seed.
func (s *AliasScheduler) Next(entries []*TestCase) *TestCase {
	if len(entries) == 0 {
		return nil
	}
	s.Rebuild(entries)
	idx := s.table.Sample()
	if idx < 0 || idx >= len(s.order) {
		return entries[0]
	}
	return s.order[idx]
}

// NotifyCycleComplete is a no-op for the alias scheduler: sampling is
// stateless across cycles.
func (s *AliasScheduler) NotifyCycleComplete(foundNewPaths bool) {}

// --- KScheduler: Rezzuf-KScheduler border-edge extension ---

// KSchedulerFilter rejects seeds whose border-edge/frontier state makes them
// uninteresting to fuzz again (spec.md §4.3 KScheduler extension); KScheduler
// pairs it with an AliasScheduler. The alias table itself is unchanged
// (still rebuilt only on corpus growth); this filter runs before energy
// assignment.
type KSchedulerFilter struct {
	lastCksum uint32
}

// Accept decides whether tc should be fuzzed this round: rejects if no
// border edge was hit, if its CntFreeCksum equals the previous seed's, or if
// CntFreeCksumDup is set. CntFreeCksumDup is populated by an external
// border-edge annotator this package only reads (spec.md §9 Open Questions).
func (k *KSchedulerFilter) Accept(tc *TestCase) bool {
	if tc.BorderEdgeCnt == 0 {
		return false
	}
	if tc.CntFreeCksum == k.lastCksum {
		return false
	}
	if tc.CntFreeCksumDup {
		return false
	}
	k.lastCksum = tc.CntFreeCksum
	return true
}

// Energy returns energy proportional to ThresEnergy (the sum of the
// border-edge Katz-centrality scores), for accepted seeds only.
func (k *KSchedulerFilter) Energy(tc *TestCase, base float64) float64 {
	if tc.ThresEnergy <= 0 {
		return base
	}
	return base * tc.ThresEnergy
}

// KScheduler combines an AliasScheduler draw with the KSchedulerFilter
// border-edge filter: it redraws from the alias table up to len(entries)
// times looking for a seed the filter accepts, falling back to the last
// draw if every candidate is rejected (spec.md §4.3 KScheduler extension,
// selectable via -p kscheduler).
type KScheduler struct {
	Alias  *AliasScheduler
	Filter *KSchedulerFilter
}

// NewKScheduler builds a KScheduler over the given weight function.
func NewKScheduler(weightFn WeightFunc) *KScheduler {
	return &KScheduler{Alias: NewAliasScheduler(weightFn), Filter: &KSchedulerFilter{}}
}

// Next draws from the alias table, skipping entries the border-edge filter
// rejects.
func (k *KScheduler) Next(entries []*TestCase) *TestCase {
	if len(entries) == 0 {
		return nil
	}
	var tc *TestCase
	for i := 0; i < len(entries); i++ {
		tc = k.Alias.Next(entries)
		if k.Filter.Accept(tc) {
			return tc
		}
	}
	return tc
}

// NotifyCycleComplete delegates to the wrapped alias scheduler.
func (k *KScheduler) NotifyCycleComplete(foundNewPaths bool) {
	k.Alias.NotifyCycleComplete(foundNewPaths)
}
