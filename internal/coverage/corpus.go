package coverage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fluxfuzzer/fluxfuzzer/internal/analyzer"
	"github.com/fluxfuzzer/fluxfuzzer/internal/requester"
)

// tlshFanoutThreshold is the favored-set size above which nearDuplicateOfFavored
// hashes candidates through a worker pool instead of serially; below it the
// pool-submission overhead isn't worth paying.
const tlshFanoutThreshold = 64

// Corpus is the ordered set of TestCase entries. Insertion appends; entries
// are never removed (spec.md §3 Corpus). A parallel top-rated mapping,
// keyed by bitmap byte index, caches the currently-best entry covering that
// byte for cover-set minimisation (cull_queue).
type Corpus struct {
	mu       sync.RWMutex
	dir      string
	entries  []*TestCase
	topRated map[int]*TestCase // byte index -> best TestCase covering it
	nextID   int
}

// NewCorpus creates a corpus backed by dir, creating the queue/crashes/hangs
// subdirectories the way the teacher's Corpus does for its own on-disk
// layout (os.MkdirAll before any writes).
func NewCorpus(dir string) *Corpus {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "fluxfuzzer-corpus")
	}
	os.MkdirAll(filepath.Join(dir, "queue", ".state", "deterministic_done"), 0755)
	os.MkdirAll(filepath.Join(dir, "crashes"), 0755)
	os.MkdirAll(filepath.Join(dir, "hangs"), 0755)

	return &Corpus{
		dir:      dir,
		entries:  make([]*TestCase, 0),
		topRated: make(map[int]*TestCase),
	}
}

// Dir returns the corpus's output directory root.
func (c *Corpus) Dir() string { return c.dir }

// Len returns the number of entries.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot slice of all entries in insertion order.
func (c *Corpus) Entries() []*TestCase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*TestCase, len(c.entries))
	copy(out, c.entries)
	return out
}

// At returns the entry at position i, or nil if out of range.
func (c *Corpus) At(i int) *TestCase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.entries) {
		return nil
	}
	return c.entries[i]
}

// QueueFilename builds the id:NNNNNN,src:MMMMMM,op:<stage>[,pos:P][,+val]
// name used under <out>/queue (spec.md §6).
func QueueFilename(id, src int, op string, pos int, hasPos bool, val int, hasVal bool) string {
	name := fmt.Sprintf("id:%06d", id)
	if src >= 0 {
		name += fmt.Sprintf(",src:%06d", src)
	}
	name += ",op:" + op
	if hasPos {
		name += fmt.Sprintf(",pos:%d", pos)
	}
	if hasVal {
		sign := "+"
		if val < 0 {
			sign = ""
		}
		name += fmt.Sprintf(",%s%d", sign, val)
	}
	return name
}

// Add appends a newly-discovered entry, assigns its sequence id, writes its
// backing file under queue/, and returns it. Called only when Feedback
// determined the candidate introduced new bits (spec.md §4.5 step 7).
func (c *Corpus) Add(data []byte, sourceID, depth int, op string, pos int, hasPos bool) (*TestCase, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++

	tc := &TestCase{
		Data:     data,
		ID:       id,
		SourceID: sourceID,
		Depth:    depth,
		CalFailed: 0,
	}
	name := QueueFilename(id, sourceID, op, pos, hasPos, 0, false)
	tc.Path = filepath.Join(c.dir, "queue", name)
	c.entries = append(c.entries, tc)
	c.mu.Unlock()

	if err := os.WriteFile(tc.Path, data, 0644); err != nil {
		return tc, err
	}
	return tc, nil
}

// AddSeed appends an initial seed scanned from the input directory.
func (c *Corpus) AddSeed(path string, data []byte) *TestCase {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	tc := &TestCase{
		Data:     data,
		Path:     path,
		ID:       id,
		SourceID: -1,
		Depth:    1,
	}
	c.entries = append(c.entries, tc)
	return tc
}

// NextID previews the id the next Add call will assign, used by the resume
// discipline to decide whether a scanned `id:NNNNNN` seed file is ours.
func (c *Corpus) NextID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextID
}

// SetNextID is used by resume to continue sequence numbering.
func (c *Corpus) SetNextID(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.nextID {
		c.nextID = n
	}
}

// RefreshTopRated updates the top_rated cache for one entry: for each
// non-zero byte of trace, if no incumbent exists or this entry wins on
// len*exec_us, it replaces the incumbent (whose TCRef is decremented) and
// receives a freshly minimised TraceMini bit for that byte (spec.md §4.2).
func (c *Corpus) RefreshTopRated(tc *TestCase, classifiedTrace []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	score := int64(len(tc.Data)) * tc.ExecUs
	if tc.TraceMini == nil {
		tc.TraceMini = make([]byte, (len(classifiedTrace)+7)/8)
	}

	for i, b := range classifiedTrace {
		if b == 0 {
			continue
		}
		incumbent, exists := c.topRated[i]
		if exists {
			incumbentScore := int64(len(incumbent.Data)) * incumbent.ExecUs
			if incumbentScore <= score && incumbent != tc {
				continue
			}
			if incumbent != tc {
				incumbent.TCRef--
			}
		}
		if !exists || incumbent != tc {
			c.topRated[i] = tc
			tc.TCRef++
		}
		tc.TraceMini[i/8] |= 1 << uint(i%8)
	}
}

// CullQueue runs cover-set minimisation: it marks a minimal subset of
// entries `Favored` whose unioned TraceMini covers every bit any entry
// covers, preferring entries with small len*exec_us via the top_rated cache
// (spec.md §4.2). Returns the count of favored entries.
func (c *Corpus) CullQueue(bitmapSize int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalBits := bitmapSize * 8
	tempV := make([]byte, (totalBits+7)/8)
	for i := range tempV {
		tempV[i] = 0xFF
	}

	for _, e := range c.entries {
		e.Favored = false
	}

	favoredCount := 0
	var favored []*TestCase
	for i := 0; i < totalBits; i++ {
		entry, ok := c.topRated[i]
		if !ok {
			continue
		}
		byteIdx, bitIdx := i/8, uint(i%8)
		if tempV[byteIdx]&(1<<bitIdx) == 0 {
			continue
		}
		if !entry.Favored {
			entry.Favored = true
			favoredCount++
			favored = append(favored, entry)
		}
		// AND tempV with the complement of entry's TraceMini.
		for j := range tempV {
			var miniByte byte
			if j < len(entry.TraceMini) {
				miniByte = entry.TraceMini[j]
			}
			tempV[j] &^= miniByte
		}
	}

	c.refreshNearDuplicates(favored)
	return favoredCount
}

// redundantTLSHDistance is the TLSH distance below which an unfavored entry
// is treated as a near-duplicate of a favored one even though its TraceMini
// covers some bit no favored entry covers exactly (e.g. the differing bits
// come from padding or a reordered field rather than a distinct code path).
const redundantTLSHDistance = 30

// refreshNearDuplicates recomputes NearDuplicate for every unfavored entry
// against the freshly-culled favored set, called by CullQueue under its own
// lock. Hashing fans out across a worker pool once the favored set is large
// enough (favoredHashes), since each entry's TLSH hash is independent work.
func (c *Corpus) refreshNearDuplicates(favored []*TestCase) {
	favoredHashes := c.favoredHashes(favored)
	for _, e := range c.entries {
		if e.Favored {
			e.NearDuplicate = false
			continue
		}
		e.NearDuplicate = false
		eHash, err := analyzer.ComputeTLSH(e.Data)
		if err != nil {
			continue
		}
		for _, fHash := range favoredHashes {
			if fHash != nil && eHash.Distance(fHash) <= redundantTLSHDistance {
				e.NearDuplicate = true
				break
			}
		}
	}
}

// IsRedundant reports whether e is fs_redundant: unfavored, already fuzzed,
// and either every bit in its TraceMini is covered by some favored entry's
// TraceMini, or CullQueue found it a near-duplicate of a favored entry by
// TLSH fuzzy hash (spec.md §4.2 step 5).
func (c *Corpus) IsRedundant(e *TestCase) bool {
	if e.Favored || !e.WasFuzzed {
		return false
	}
	if e.TraceMini == nil {
		return e.NearDuplicate
	}
	c.mu.RLock()
	favored := make([]*TestCase, 0)
	for _, o := range c.entries {
		if o.Favored {
			favored = append(favored, o)
		}
	}
	c.mu.RUnlock()

	for byteIdx, b := range e.TraceMini {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) == 0 {
				continue
			}
			covered := false
			for _, f := range favored {
				if byteIdx < len(f.TraceMini) && f.TraceMini[byteIdx]&(1<<uint(bit)) != 0 {
					covered = true
					break
				}
			}
			if !covered {
				return e.NearDuplicate
			}
		}
	}
	return true
}

// favoredHashes computes each favored entry's TLSH hash, fanning the work
// out across a worker pool once the favored set is large enough that the
// pool's submission overhead pays for itself (tlshFanoutThreshold). Each
// task writes only to its own index of hashes, so no locking is needed
// beyond the pool's own WaitGroup.
func (c *Corpus) favoredHashes(favored []*TestCase) []*analyzer.TLSHHash {
	hashes := make([]*analyzer.TLSHHash, len(favored))
	if len(favored) < tlshFanoutThreshold {
		for i, f := range favored {
			h, err := analyzer.ComputeTLSH(f.Data)
			if err == nil {
				hashes[i] = h
			}
		}
		return hashes
	}

	pool, err := requester.NewWorkerPool(&requester.WorkerPoolOptions{
		Size: 8, PreAlloc: true, MaxBlocking: len(favored),
	})
	if err != nil {
		for i, f := range favored {
			h, err := analyzer.ComputeTLSH(f.Data)
			if err == nil {
				hashes[i] = h
			}
		}
		return hashes
	}
	defer pool.Shutdown()

	for i, f := range favored {
		i, f := i, f
		pool.Submit(func() {
			if h, err := analyzer.ComputeTLSH(f.Data); err == nil {
				hashes[i] = h
			}
		})
	}
	pool.Wait()
	return hashes
}

// Favored returns all currently-favored entries.
func (c *Corpus) Favored() []*TestCase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*TestCase
	for _, e := range c.entries {
		if e.Favored {
			out = append(out, e)
		}
	}
	return out
}

// ByID finds an entry by its sequence id, used by resume to locate a
// parent's depth from an embedded src:MMMMMM.
func (c *Corpus) ByID(id int) *TestCase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}
