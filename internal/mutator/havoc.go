package mutator

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sort"
)

func randFloat() float64 {
	var b [8]byte
	rand.Read(b[:])
	return float64(binary.BigEndian.Uint64(b[:])%1_000_000) / 1_000_000.0
}

// MaxFile clamps how large a single havoc-stage candidate may grow to,
// mirroring AFL's MAX_FILE guard against runaway splice/insert stacking.
const MaxFile = 1 << 20

// havocStackMax is the AFL/AFL++ HAVOC_STACK_POW2 table: each havoc round
// applies one of these counts of primitive operations, the entry chosen
// uniformly at random (so the count is uniform on a log2 scale).
var havocStackMax = []int{1, 2, 4, 8, 16, 32, 64, 128}

// HavocOp is one primitive the havoc stage can apply. Every op takes the
// current buffer and a dictionary (which may be nil) and returns a new
// buffer.
type HavocOp func(data []byte, dict *Dictionary) []byte

// baseHavocOps is AFL's original 17-entry havoc table (flip bit, set
// interesting byte/word/dword, subtract/add byte/word/dword, set random
// byte, delete bytes, clone/insert bytes, overwrite with random or
// dictionary token).
func baseHavocOps() []HavocOp {
	return []HavocOp{
		havocFlipBit,
		func(d []byte, _ *Dictionary) []byte { return havocSetInteresting(d, 1) },
		func(d []byte, _ *Dictionary) []byte { return havocSetInteresting(d, 2) },
		func(d []byte, _ *Dictionary) []byte { return havocSetInteresting(d, 4) },
		func(d []byte, _ *Dictionary) []byte { return havocArith(d, 1, true) },
		func(d []byte, _ *Dictionary) []byte { return havocArith(d, 2, true) },
		func(d []byte, _ *Dictionary) []byte { return havocArith(d, 4, true) },
		func(d []byte, _ *Dictionary) []byte { return havocArith(d, 1, false) },
		func(d []byte, _ *Dictionary) []byte { return havocArith(d, 2, false) },
		func(d []byte, _ *Dictionary) []byte { return havocArith(d, 4, false) },
		havocSetRandomByte,
		havocDeleteBytes,
		havocDeleteBytes,
		havocCloneOrInsert,
		havocCloneOrInsert,
		havocOverwriteRandom,
		havocOverwriteWithDict,
	}
}

// aflppExtraOps is AFL++'s additional 17 "custom" havoc cases: extra
// dictionary-insert variants, whole-token overwrite with insertion, and
// simple byte-shuffle/swap perturbations layered on top of AFL's original
// table (spec.md §4.4 AFL++ havoc bank).
func aflppExtraOps() []HavocOp {
	return []HavocOp{
		havocInsertDictToken,
		havocInsertDictToken,
		havocOverwriteWithDict,
		havocOverwriteWithDict,
		havocSwapTwoBytes,
		havocSwapTwoBytes,
		func(d []byte, _ *Dictionary) []byte { return havocByteSwapN(d, 2) },
		func(d []byte, _ *Dictionary) []byte { return havocByteSwapN(d, 4) },
		havocFlipBit,
		havocSetRandomByte,
		havocSetRandomByte,
		func(d []byte, _ *Dictionary) []byte { return havocArith(d, 1, true) },
		func(d []byte, _ *Dictionary) []byte { return havocArith(d, 2, true) },
		havocDeleteBytes,
		havocCloneOrInsert,
		havocOverwriteRandom,
		havocInsertDictToken,
	}
}

func havocFlipBit(data []byte, _ *Dictionary) []byte {
	if len(data) == 0 {
		return data
	}
	out := append([]byte(nil), data...)
	bit := secureRandomInt(len(out) * 8)
	out[bit/8] ^= 1 << uint(7-bit%8)
	return out
}

func havocSetInteresting(data []byte, width int) []byte {
	if len(data) < width {
		return data
	}
	out := append([]byte(nil), data...)
	pos := secureRandomInt(len(out) - width + 1)
	switch width {
	case 1:
		out[pos] = byte(interesting8[secureRandomInt(len(interesting8))])
	case 2:
		v := uint16(interesting16[secureRandomInt(len(interesting16))])
		out[pos], out[pos+1] = byte(v>>8), byte(v)
	case 4:
		v := uint32(interesting32[secureRandomInt(len(interesting32))])
		out[pos], out[pos+1], out[pos+2], out[pos+3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	}
	return out
}

func havocArith(data []byte, width int, add bool) []byte {
	if len(data) < width {
		return data
	}
	out := append([]byte(nil), data...)
	pos := secureRandomInt(len(out) - width + 1)
	delta := secureRandomInt(35) + 1
	if !add {
		delta = -delta
	}
	switch width {
	case 1:
		out[pos] = byte(int(out[pos]) + delta)
	case 2:
		v := uint16(out[pos])<<8 | uint16(out[pos+1])
		v = uint16(int(v) + delta)
		out[pos], out[pos+1] = byte(v>>8), byte(v)
	case 4:
		v := uint32(out[pos])<<24 | uint32(out[pos+1])<<16 | uint32(out[pos+2])<<8 | uint32(out[pos+3])
		v = uint32(int64(v) + int64(delta))
		out[pos], out[pos+1], out[pos+2], out[pos+3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	}
	return out
}

func havocSetRandomByte(data []byte, _ *Dictionary) []byte {
	if len(data) == 0 {
		return data
	}
	out := append([]byte(nil), data...)
	out[secureRandomInt(len(out))] = byte(secureRandomInt(256))
	return out
}

func havocDeleteBytes(data []byte, _ *Dictionary) []byte {
	if len(data) <= 1 {
		return data
	}
	delLen := secureRandomInt(len(data)/2) + 1
	if delLen >= len(data) {
		delLen = len(data) - 1
	}
	pos := secureRandomInt(len(data) - delLen + 1)
	out := make([]byte, 0, len(data)-delLen)
	out = append(out, data[:pos]...)
	out = append(out, data[pos+delLen:]...)
	return out
}

func havocCloneOrInsert(data []byte, _ *Dictionary) []byte {
	if len(data) == 0 {
		return secureRandomBytes(1)
	}
	if len(data)+64 > MaxFile {
		return data
	}
	cloneLen := secureRandomInt(len(data)/2+1) + 1
	useExisting := secureRandomInt(4) > 0
	var chunk []byte
	if useExisting {
		srcPos := secureRandomInt(len(data) - min(cloneLen, len(data)) + 1)
		end := srcPos + cloneLen
		if end > len(data) {
			end = len(data)
		}
		chunk = append([]byte(nil), data[srcPos:end]...)
	} else {
		chunk = secureRandomBytes(cloneLen)
	}
	dst := secureRandomInt(len(data) + 1)
	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:dst]...)
	out = append(out, chunk...)
	out = append(out, data[dst:]...)
	return out
}

func havocOverwriteRandom(data []byte, _ *Dictionary) []byte {
	if len(data) == 0 {
		return data
	}
	out := append([]byte(nil), data...)
	n := secureRandomInt(len(out)/2+1) + 1
	pos := secureRandomInt(len(out) - n + 1)
	copy(out[pos:pos+n], secureRandomBytes(n))
	return out
}

func havocOverwriteWithDict(data []byte, dict *Dictionary) []byte {
	if dict == nil || dict.Len() == 0 || len(data) == 0 {
		return havocOverwriteRandom(data, nil)
	}
	tok := pickToken(dict)
	if len(tok) > len(data) {
		return data
	}
	out := append([]byte(nil), data...)
	pos := secureRandomInt(len(out) - len(tok) + 1)
	copy(out[pos:], tok)
	return out
}

func havocInsertDictToken(data []byte, dict *Dictionary) []byte {
	if dict == nil || dict.Len() == 0 {
		return havocCloneOrInsert(data, nil)
	}
	tok := pickToken(dict)
	if len(data)+len(tok) > MaxFile {
		return data
	}
	pos := secureRandomInt(len(data) + 1)
	out := make([]byte, 0, len(data)+len(tok))
	out = append(out, data[:pos]...)
	out = append(out, tok...)
	out = append(out, data[pos:]...)
	return out
}

func havocSwapTwoBytes(data []byte, _ *Dictionary) []byte {
	if len(data) < 2 {
		return data
	}
	out := append([]byte(nil), data...)
	i := secureRandomInt(len(out))
	j := secureRandomInt(len(out))
	out[i], out[j] = out[j], out[i]
	return out
}

func havocByteSwapN(data []byte, n int) []byte {
	if len(data) < n {
		return data
	}
	out := append([]byte(nil), data...)
	pos := secureRandomInt(len(out) - n + 1)
	for i, j := pos, pos+n-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func pickToken(dict *Dictionary) []byte {
	all := dict.All()
	if len(all) == 0 {
		return nil
	}
	return all[secureRandomInt(len(all))]
}

// HavocSelector picks which op table entry runs next in a havoc stack.
// uniformHavocSelector is the classical AFL behaviour; MOptSelector and
// SloptSelector below implement AFL++'s pluggable selection distributions
// on top of the same interface.
type HavocSelector interface {
	Next(nOps int) int
	Reward(opIdx int, foundNewPath bool)
}

// uniformHavocSelector is the classical AFL behaviour: every op equally
// likely, no feedback.
type uniformHavocSelector struct{}

func (uniformHavocSelector) Next(nOps int) int             { return secureRandomInt(nOps) }
func (uniformHavocSelector) Reward(int, bool)              {}

// NewUniformHavocSelector returns AFL's classical uniform op selector.
func NewUniformHavocSelector() HavocSelector { return uniformHavocSelector{} }

// MOptSelector implements MOpt's particle-swarm-inspired weight adaptation:
// each op carries a probability mass that is nudged up on a rewarded pick
// and renormalized, with a periodic "pacemaker" reset back to uniform so
// the swarm keeps exploring (spec.md §4.4 MOpt, Open Question: pacemaker
// transition implemented here as a fixed iteration-count swap interval).
type MOptSelector struct {
	weights       []float64
	iterations    int
	pacemakerEvery int
}

// NewMOptSelector creates a selector over nOps equally-weighted operators.
// pacemakerEvery is how many Next() calls elapse before weights reset to
// uniform (0 disables the reset).
func NewMOptSelector(nOps int, pacemakerEvery int) *MOptSelector {
	w := make([]float64, nOps)
	for i := range w {
		w[i] = 1.0 / float64(nOps)
	}
	return &MOptSelector{weights: w, pacemakerEvery: pacemakerEvery}
}

// Next draws an operator index proportional to its current weight.
func (m *MOptSelector) Next(nOps int) int {
	if len(m.weights) != nOps {
		m.reset(nOps)
	}
	m.iterations++
	if m.pacemakerEvery > 0 && m.iterations%m.pacemakerEvery == 0 {
		m.reset(nOps)
	}

	target := randFloat()
	var cum float64
	for i, w := range m.weights {
		cum += w
		if target <= cum {
			return i
		}
	}
	return len(m.weights) - 1
}

func (m *MOptSelector) reset(nOps int) {
	m.weights = make([]float64, nOps)
	for i := range m.weights {
		m.weights[i] = 1.0 / float64(nOps)
	}
}

// Reward nudges opIdx's weight up on a find and renormalizes every weight
// so they keep summing to 1.
func (m *MOptSelector) Reward(opIdx int, foundNewPath bool) {
	if opIdx < 0 || opIdx >= len(m.weights) || !foundNewPath {
		return
	}
	m.weights[opIdx] += 0.1
	var sum float64
	for _, w := range m.weights {
		sum += w
	}
	for i := range m.weights {
		m.weights[i] /= sum
	}
}

// SloptSelector is a simple multi-armed-bandit (UCB1-style) variant: it
// tracks per-op pick counts and reward counts and favors operators with the
// best observed hit rate, breaking ties toward under-sampled operators
// (spec.md §4.4 "Slopt" variant).
type SloptSelector struct {
	picks   []int
	rewards []int
	total   int
}

// NewSloptSelector creates a bandit selector over nOps operators.
func NewSloptSelector(nOps int) *SloptSelector {
	return &SloptSelector{picks: make([]int, nOps), rewards: make([]int, nOps)}
}

// Next picks the operator with the highest UCB1 score, exploring
// un-tried operators first.
func (s *SloptSelector) Next(nOps int) int {
	if len(s.picks) != nOps {
		s.picks = make([]int, nOps)
		s.rewards = make([]int, nOps)
		s.total = 0
	}
	for i, p := range s.picks {
		if p == 0 {
			return i
		}
	}

	best, bestScore := 0, -1.0
	for i := range s.picks {
		mean := float64(s.rewards[i]) / float64(s.picks[i])
		bonus := ucbBonus(s.total, s.picks[i])
		score := mean + bonus
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// Reward records the outcome of the last pick of opIdx.
func (s *SloptSelector) Reward(opIdx int, foundNewPath bool) {
	if opIdx < 0 || opIdx >= len(s.picks) {
		return
	}
	s.picks[opIdx]++
	s.total++
	if foundNewPath {
		s.rewards[opIdx]++
	}
}

func ucbBonus(total, picks int) float64 {
	if picks == 0 {
		return 1e9
	}
	if total <= 1 {
		return 1.0
	}
	return math.Sqrt(2 * math.Log(float64(total)) / float64(picks))
}

// HavocStage runs `iterations` rounds of stacked havoc mutation over base,
// streaming each candidate on the returned channel. Each round stacks a
// random count of primitive ops drawn from havocStackMax, selected via
// selector (pass NewUniformHavocSelector() for classical AFL behaviour).
// extra, when true, also draws from AFL++'s extra custom bank.
func HavocStage(base []byte, dict *Dictionary, selector HavocSelector, iterations int, extra bool) <-chan StageMutation {
	ch := make(chan StageMutation, 16)
	go func() {
		defer close(ch)
		ops := baseHavocOps()
		if extra {
			ops = append(ops, aflppExtraOps()...)
		}
		for it := 0; it < iterations; it++ {
			stackLen := havocStackMax[secureRandomInt(len(havocStackMax))]
			data := append([]byte(nil), base...)
			lastOp := -1
			for s := 0; s < stackLen; s++ {
				opIdx := selector.Next(len(ops))
				lastOp = opIdx
				data = ops[opIdx](data, dict)
				if len(data) > MaxFile {
					data = data[:MaxFile]
				}
			}
			ch <- StageMutation{Data: data, Stage: StageHavoc, Val: lastOp, HasVal: true}
		}
	}()
	return ch
}

// SpliceAt finds a cut point where a and b first diverge byte-for-byte
// (scanning from a random offset, AFL's locate_diffs behaviour) and returns
// a copy of a with the tail from that point replaced by b's tail. Returns
// ok=false if a and b are identical or too short to diverge.
func SpliceAt(a, b []byte) (spliced []byte, ok bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return nil, false
	}

	start := secureRandomInt(n)
	cut := -1
	for i := start; i < n; i++ {
		if a[i] != b[i] {
			cut = i
			break
		}
	}
	if cut < 0 {
		for i := 0; i < start; i++ {
			if a[i] != b[i] {
				cut = i
				break
			}
		}
	}
	if cut < 0 {
		return nil, false
	}

	out := make([]byte, 0, cut+len(b)-cut)
	out = append(out, a[:cut]...)
	out = append(out, b[cut:]...)
	return out, true
}

// SpliceStage produces one spliced base, then runs it through `iterations`
// rounds of havoc, the way AFL's splicing stage feeds its result straight
// back into havoc rather than treating it as a queue candidate on its own
// (spec.md §4.4 splicing).
func SpliceStage(base, donor []byte, dict *Dictionary, selector HavocSelector, iterations int, extra bool) <-chan StageMutation {
	spliced, ok := SpliceAt(base, donor)
	if !ok {
		spliced = base
	}
	out := make(chan StageMutation, 16)
	go func() {
		defer close(out)
		for m := range HavocStage(spliced, dict, selector, iterations, extra) {
			m.Stage = StageSplice
			out <- m
		}
	}()
	return out
}

// sortTokensByLen sorts a [][]byte slice ascending by length, the same
// ordering the deterministic extras stages rely on.
func sortTokensByLen(toks [][]byte) {
	sort.Slice(toks, func(i, j int) bool { return len(toks[i]) < len(toks[j]) })
}
