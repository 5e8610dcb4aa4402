package mutator

import "encoding/binary"

// Stage name identifiers, mirroring the AFL queue-filename op: tags
// (spec-facing naming lives in the coverage package; these are the
// mutator-local copies so this package doesn't import it).
const (
	StageBitflip1   = "flip1"
	StageBitflip2   = "flip2"
	StageBitflip4   = "flip4"
	StageByteflip1  = "flip8"
	StageByteflip2  = "flip16"
	StageByteflip4  = "flip32"
	StageArith8     = "arith8"
	StageArith16    = "arith16"
	StageArith32    = "arith32"
	StageInterest8  = "int8"
	StageInterest16 = "int16"
	StageInterest32 = "int32"
	StageExtrasUO   = "extras-uo"
	StageExtrasUI   = "extras-ui"
	StageExtrasAO   = "extras-ao"
	StageHavoc      = "havoc"
	StageSplice     = "splice"
)

// StageMutation is one candidate produced by the deterministic or havoc
// stage drivers: the mutated bytes plus enough bookkeeping for a caller to
// name the queue/crash file it came from. It intentionally mirrors nothing
// outside this package — callers that need to cross into the coverage
// feedback loop adapt this into their own candidate type, keeping this
// package dependent on nothing but byte buffers and a dictionary model.
type StageMutation struct {
	Data   []byte
	Stage  string
	Pos    int
	HasPos bool
	Val    int
	HasVal bool
}

// StageFinds tallies how many new candidates each deterministic sub-stage
// produced, the per-stage counters AFL reports in its status screen.
type StageFinds struct {
	Bitflip1, Bitflip2, Bitflip4    int
	Byteflip1, Byteflip2, Byteflip4 int
	Arith8, Arith16, Arith32        int
	Interest8, Interest16, Interest32 int
	ExtrasUO, ExtrasUI, ExtrasAO    int
}

// effectorMap tracks, per input byte, whether mutation at that position was
// marked as having changed the execution trace; a byte never marked is
// reported dead by isDead. DeterministicWalker.Run does not consult the map,
// so no stage skips dead bytes.
type effectorMap struct {
	changed []bool
}

func newEffectorMap(n int) *effectorMap {
	return &effectorMap{changed: make([]bool, n)}
}

func (e *effectorMap) markChanged(pos int) {
	if pos >= 0 && pos < len(e.changed) {
		e.changed[pos] = true
	}
}

func (e *effectorMap) isDead(pos, width int) bool {
	for i := 0; i < width && pos+i < len(e.changed); i++ {
		if e.changed[pos+i] {
			return false
		}
	}
	return true
}

// couldBeBitflip reports whether xorVal (old value XOR new value) could have
// been produced by a plain bitflip or byteflip, letting arith/interest stages
// skip candidates the earlier flip stages already covered (AFL's
// could_be_bitflip).
func couldBeBitflip(xorVal uint32) bool {
	if xorVal == 0 {
		return true
	}
	sh := 0
	for xorVal&1 == 0 {
		sh++
		xorVal >>= 1
	}
	// 1-, 2- and 4-bit flips can start at any bit offset
	if xorVal == 1 || xorVal == 3 || xorVal == 15 {
		return true
	}
	// 8-, 16- and 32-bit flips start only on byte boundaries
	if sh&7 != 0 {
		return false
	}
	return xorVal == 0xff || xorVal == 0xffff || xorVal == 0xffffffff
}

// couldBeArith reports whether old->new could have been produced by the
// arithmetic stage, so the interesting-values stage can skip it.
func couldBeArith(oldVal, newVal uint32, width int) bool {
	if oldVal == newVal {
		return true
	}
	// the arith stage adds deltas in [-35, 35], wrapping within width bytes
	mask := uint32(0xffffffff)
	switch width {
	case 1:
		mask = 0xff
	case 2:
		mask = 0xffff
	}
	up := (newVal - oldVal) & mask
	down := (oldVal - newVal) & mask
	return up <= 35 || down <= 35
}

// couldBeInterest reports whether old->new matches a value from the
// interesting-value table at the given width, so extras stages could skip
// re-trying it. AFL checks both byte orders.
func couldBeInterest(oldVal uint32, newVal uint32, width int, bigEndian bool) bool {
	switch width {
	case 1:
		for _, v := range interesting8 {
			if uint32(uint8(v)) == newVal {
				return true
			}
		}
	case 2:
		for _, v := range interesting16 {
			if uint32(uint16(v)) == newVal {
				return true
			}
		}
	case 4:
		for _, v := range interesting32 {
			if uint32(v) == newVal {
				return true
			}
		}
	}
	_ = bigEndian
	return false
}

// DeterministicStage drives the full AFL deterministic sequence over base
// once: bitflip 1/2/4, byteflip 1/2/4, arithmetic 8/16/32, interesting
// 8/16/32, then the three extras passes (overwrite with user dict,
// insert-before with user dict, overwrite with auto dict) using dict.
// Results stream on the returned channel, which is closed when the sweep
// completes. Candidates the earlier, cheaper stage already could have
// produced are skipped by the could-be-* predicates (spec.md §4.4). The
// effector map (DeterministicWalker.MarkEffective) exists for a caller that
// can thread real execution feedback ("did mutating this byte change the
// trace?") back in mid-sweep; DeterministicStage itself has no such
// feedback available to it, so every byte position runs every stage.
func DeterministicStage(base []byte, dict *Dictionary) <-chan StageMutation {
	w := NewDeterministicWalker(base, dict)
	ch := make(chan StageMutation, 16)
	go func() {
		defer close(ch)
		w.Run(ch)
	}()
	return ch
}

// DeterministicWalker exposes the same sweep as DeterministicStage and lets
// a caller mark which byte positions actually perturbed the trace in its
// effector map. Run does not read the map: every position runs every stage
// whether or not it was marked.
type DeterministicWalker struct {
	base []byte
	dict *Dictionary
	eff  *effectorMap
}

// NewDeterministicWalker creates a walker over base using dict for the
// extras stages.
func NewDeterministicWalker(base []byte, dict *Dictionary) *DeterministicWalker {
	return &DeterministicWalker{base: base, dict: dict, eff: newEffectorMap(len(base))}
}

// MarkEffective records in the effector map that mutating the byte at pos
// changed the trace.
func (w *DeterministicWalker) MarkEffective(pos int) { w.eff.markChanged(pos) }

// Run streams every deterministic-stage candidate over ch.
func (w *DeterministicWalker) Run(ch chan<- StageMutation) {
	n := len(w.base)
	if n == 0 {
		return
	}

	for pos := 0; pos < n*8; pos++ {
		data := append([]byte(nil), w.base...)
		byteIdx := pos / 8
		data[byteIdx] ^= 1 << uint(7-pos%8)
		ch <- StageMutation{Data: data, Stage: StageBitflip1, Pos: pos, HasPos: true}
	}

	bf2 := NewBitFlipMutator(2)
	for pos := 0; pos < n*8-1; pos++ {
		data, err := bf2.MutateAt(w.base, pos)
		if err != nil {
			continue
		}
		ch <- StageMutation{Data: data, Stage: StageBitflip2, Pos: pos, HasPos: true}
	}

	bf4 := NewBitFlipMutator(4)
	for pos := 0; pos < n*8-3; pos++ {
		data, err := bf4.MutateAt(w.base, pos)
		if err != nil {
			continue
		}
		ch <- StageMutation{Data: data, Stage: StageBitflip4, Pos: pos, HasPos: true}
	}

	yf1 := NewByteFlipMutator(1)
	for pos := 0; pos < n; pos++ {
		data, _ := yf1.MutateAt(w.base, pos)
		ch <- StageMutation{Data: data, Stage: StageByteflip1, Pos: pos, HasPos: true}
	}

	if n >= 2 {
		yf2 := NewByteFlipMutator(2)
		for pos := 0; pos < n-1; pos++ {
			data, _ := yf2.MutateAt(w.base, pos)
			ch <- StageMutation{Data: data, Stage: StageByteflip2, Pos: pos, HasPos: true}
		}
	}

	if n >= 4 {
		yf4 := NewByteFlipMutator(4)
		for pos := 0; pos < n-3; pos++ {
			data, _ := yf4.MutateAt(w.base, pos)
			ch <- StageMutation{Data: data, Stage: StageByteflip4, Pos: pos, HasPos: true}
		}
	}

	w.arithStage(ch, 1, StageArith8)
	if n >= 2 {
		w.arithStage(ch, 2, StageArith16)
	}
	if n >= 4 {
		w.arithStage(ch, 4, StageArith32)
	}

	w.interestStage(ch, 1, StageInterest8)
	if n >= 2 {
		w.interestStage(ch, 2, StageInterest16)
	}
	if n >= 4 {
		w.interestStage(ch, 4, StageInterest32)
	}

	if w.dict != nil {
		w.extrasStage(ch)
	}
}

// readWidth reads the width-byte (1/2/4) big-endian value at pos, the same
// layout ArithmeticMutator/InterestingValueMutator write in.
func readWidth(data []byte, pos, width int) uint32 {
	switch width {
	case 1:
		return uint32(data[pos])
	case 2:
		return uint32(binary.BigEndian.Uint16(data[pos : pos+2]))
	case 4:
		return binary.BigEndian.Uint32(data[pos : pos+4])
	}
	return 0
}

// arithStage walks every delta in [-35, 35] at every position, skipping any
// delta whose effect on the bytes a plain bitflip could already have
// produced (spec.md §8 scenario #3: "arith mutation producible by bitflip
// must be skipped via could_be_bitflip").
func (w *DeterministicWalker) arithStage(ch chan<- StageMutation, width int, stage string) {
	n := len(w.base)
	am := NewArithmeticMutator(width, 35)
	for pos := 0; pos <= n-width; pos++ {
		oldVal := readWidth(w.base, pos, width)
		for delta := -35; delta <= 35; delta++ {
			if delta == 0 {
				continue
			}
			data, err := am.MutateAt(w.base, pos, delta)
			if err != nil {
				continue
			}
			newVal := readWidth(data, pos, width)
			if couldBeBitflip(oldVal ^ newVal) {
				continue
			}
			ch <- StageMutation{Data: data, Stage: stage, Pos: pos, HasPos: true, Val: delta, HasVal: true}
		}
	}
}

// interestStage walks the interesting-value table at every position in
// both byte orders, skipping any replacement the earlier bitflip or arith
// stages already could have produced.
func (w *DeterministicWalker) interestStage(ch chan<- StageMutation, width int, stage string) {
	n := len(w.base)
	im := NewInterestingValueMutator(width)
	count := len(interesting8)
	switch width {
	case 2:
		count = len(interesting16)
	case 4:
		count = len(interesting32)
	}
	for pos := 0; pos <= n-width; pos++ {
		oldVal := readWidth(w.base, pos, width)
		for idx := 0; idx < count; idx++ {
			data, err := im.MutateAt(w.base, pos, idx, true)
			if err == nil {
				newVal := readWidth(data, pos, width)
				if !couldBeBitflip(oldVal^newVal) && !couldBeArith(oldVal, newVal, width) {
					ch <- StageMutation{Data: data, Stage: stage, Pos: pos, HasPos: true, Val: idx, HasVal: true}
				}
			}

			if width > 1 {
				dataLE, err := im.MutateAt(w.base, pos, idx, false)
				if err == nil {
					newValLE := readWidth(dataLE, pos, width)
					if !couldBeBitflip(oldVal^newValLE) && !couldBeArith(oldVal, newValLE, width) {
						ch <- StageMutation{Data: dataLE, Stage: stage, Pos: pos, HasPos: true, Val: idx, HasVal: true}
					}
				}
			}
		}
	}
}

func (w *DeterministicWalker) extrasStage(ch chan<- StageMutation) {
	base := w.base
	n := len(base)

	for _, tok := range w.dict.Extras() {
		if len(tok) > n {
			continue
		}
		for pos := 0; pos <= n-len(tok); pos++ {
			data := append([]byte(nil), base...)
			copy(data[pos:], tok)
			ch <- StageMutation{Data: data, Stage: StageExtrasUO, Pos: pos, HasPos: true}
		}
	}

	for _, tok := range w.dict.Extras() {
		for pos := 0; pos <= n; pos++ {
			data := make([]byte, 0, n+len(tok))
			data = append(data, base[:pos]...)
			data = append(data, tok...)
			data = append(data, base[pos:]...)
			ch <- StageMutation{Data: data, Stage: StageExtrasUI, Pos: pos, HasPos: true}
		}
	}

	for _, tok := range w.dict.AutoExtras() {
		if len(tok) > n {
			continue
		}
		for pos := 0; pos <= n-len(tok); pos++ {
			data := append([]byte(nil), base...)
			copy(data[pos:], tok)
			ch <- StageMutation{Data: data, Stage: StageExtrasAO, Pos: pos, HasPos: true}
		}
	}
}
