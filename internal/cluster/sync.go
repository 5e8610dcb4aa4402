package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fluxfuzzer/fluxfuzzer/internal/coverage"
)

// SyncManager implements AFL's -M/-S parallel fuzzing exchange: each
// instance periodically publishes its own newly-found queue entries under
// a shared sync directory, and imports entries published by every other
// instance it finds there. Unlike the HTTP task dispatch the rest of this
// package drives, instances never talk to each other directly - the shared
// directory is the only coordination channel, so a -S secondary can join
// or leave at any time without the master noticing.
type SyncManager struct {
	syncDir  string
	instance string
	corpus   *coverage.Corpus
	interval time.Duration

	exported map[int]bool
	imported map[string]bool
}

// NewSyncManager prepares the instance's publish directory under syncDir.
func NewSyncManager(syncDir, instance string, corpus *coverage.Corpus, interval time.Duration) (*SyncManager, error) {
	own := filepath.Join(syncDir, instance, "queue")
	if err := os.MkdirAll(own, 0755); err != nil {
		return nil, fmt.Errorf("cluster: preparing sync dir: %w", err)
	}
	return &SyncManager{
		syncDir:  syncDir,
		instance: instance,
		corpus:   corpus,
		interval: interval,
		exported: make(map[int]bool),
		imported: make(map[string]bool),
	}, nil
}

// Run exports and imports on every tick until ctx is done.
func (s *SyncManager) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.exportNew()
			s.importSiblings()
		}
	}
}

// exportNew writes every corpus entry this instance hasn't published yet
// into its own sync-dir queue, named by id so siblings can dedupe by
// filename alone.
func (s *SyncManager) exportNew() {
	own := filepath.Join(s.syncDir, s.instance, "queue")
	for _, tc := range s.corpus.Entries() {
		if s.exported[tc.ID] {
			continue
		}
		name := fmt.Sprintf("id_%06d,sync:%s", tc.ID, s.instance)
		path := filepath.Join(own, name)
		if err := os.WriteFile(path, tc.Data, 0644); err != nil {
			continue
		}
		s.exported[tc.ID] = true
	}
}

// importSiblings walks every other instance's published queue directory
// and adds files this instance hasn't seen yet as new corpus seeds. The
// feedback loop's own calibration decides whether an imported entry keeps
// its coverage-worthy status; SyncManager only moves bytes in.
func (s *SyncManager) importSiblings() {
	siblings, err := os.ReadDir(s.syncDir)
	if err != nil {
		return
	}
	for _, sib := range siblings {
		if !sib.IsDir() || sib.Name() == s.instance {
			continue
		}
		queueDir := filepath.Join(s.syncDir, sib.Name(), "queue")
		entries, err := os.ReadDir(queueDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			key := sib.Name() + "/" + e.Name()
			if s.imported[key] || e.IsDir() {
				continue
			}
			path := filepath.Join(queueDir, e.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			s.corpus.AddSeed(path, data)
			s.imported[key] = true
		}
	}
}
