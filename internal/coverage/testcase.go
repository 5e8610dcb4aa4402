package coverage

import "sync"

// TestCase is one entry of the corpus: a seed or a discovered input
// annotated with coverage and scheduling metadata. Field names follow
// AFLTestcase in the original fuzzuf source (algorithms/afl/afl_testcase.cpp)
// field-for-field.
type TestCase struct {
	// Input backing. Path is always set once the entry is saved; Data is
	// the in-memory buffer, which may be released (set to nil) for entries
	// that are cheap to mmap back from disk.
	Path string
	Data []byte

	ID       int // sequence number, becomes the NNNNNN in the queue filename
	SourceID int // src:MMMMMM parent id, -1 for root seeds
	Depth    int // parent depth + 1; roots are 1

	BitmapSize int    // popcount of the classified trace
	ExecCksum  uint32 // checksum of the classified trace
	ExecUs     int64  // median run time in microseconds
	Handicap   int    // cycles behind the head when discovered

	Favored       bool
	WasFuzzed     bool
	PassedDet     bool
	TrimDone      bool
	HasNewCov     bool
	VarBehavior   bool
	NearDuplicate bool // TLSH fuzzy match against a favored entry; set by CullQueue

	CalFailed int // failed calibration attempts so far; calibration gives up once it reaches CalChances

	TraceMini []byte // compact bit-projection for cover-set minimisation

	FuzzLevel   int // times this entry was scheduled
	NFuzzEntry  int // index into the global n_fuzz histogram
	TCRef       int // reference count from top_rated

	// KScheduler (Rezzuf-KScheduler) inputs.
	BorderEdge    []uint32 // new-frontier edges this seed touches
	BorderEdgeCnt int
	ThresEnergy   float64 // sum of border-edge Katz-centrality scores

	CntFreeCksum    uint32 // supplied by an external border-edge annotator
	CntFreeCksumDup bool   // ditto; read-only from the scheduler's perspective

	mu sync.Mutex
}

// Lock/Unlock let calibration, trimming and the updater serialize their
// read-modify-write of a TestCase without requiring the whole corpus to
// hold a single global lock during a single seed's processing.
func (tc *TestCase) Lock()   { tc.mu.Lock() }
func (tc *TestCase) Unlock() { tc.mu.Unlock() }

// StageName identifiers used in queue/crash/hang filenames (§6).
const (
	StageBitflip1  = "flip1"
	StageBitflip2  = "flip2"
	StageBitflip4  = "flip4"
	StageByteflip1 = "flip8"
	StageByteflip2 = "flip16"
	StageByteflip4 = "flip32"
	StageArith8    = "arith8"
	StageArith16   = "arith16"
	StageArith32   = "arith32"
	StageInterest8 = "int8"
	StageInterest16 = "int16"
	StageInterest32 = "int32"
	StageExtrasUO  = "extras-uo"
	StageExtrasUI  = "extras-ui"
	StageExtrasAO  = "extras-ao"
	StageHavoc     = "havoc"
	StageSplice    = "splice"
)
