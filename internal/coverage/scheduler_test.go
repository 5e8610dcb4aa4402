package coverage

import "testing"

func TestFIFOScheduler_SkipsNonFavoredWhenFavoredPending(t *testing.T) {
	s := NewFIFOScheduler()
	favoredPending := &TestCase{Favored: true}
	plain := &TestCase{}

	favoredHits, plainHits := 0, 0
	for i := 0; i < 2000; i++ {
		if !s.shouldSkip(favoredPending, true) {
			favoredHits++
		}
		if !s.shouldSkip(plain, true) {
			plainHits++
		}
	}
	if favoredHits != 2000 {
		t.Errorf("pending favored entry should never be skipped, got %d/2000 selected", favoredHits)
	}
	if plainHits == 0 || plainHits > 200 {
		t.Errorf("non-favored entry should be skipped ~99%% of the time, got %d/2000 selected", plainHits)
	}
}

func TestFIFOScheduler_NearDuplicateSkippedLikeRedundant(t *testing.T) {
	s := NewFIFOScheduler()
	dup := &TestCase{NearDuplicate: true, WasFuzzed: true}

	selected := 0
	for i := 0; i < 2000; i++ {
		if !s.shouldSkip(dup, false) {
			selected++
		}
	}
	if selected == 0 || selected > 200 {
		t.Errorf("near-duplicate entry should be skipped ~95%% of the time, got %d/2000 selected", selected)
	}
}

func TestFIFOScheduler_NextSkipsEmptyCorpus(t *testing.T) {
	s := NewFIFOScheduler()
	if got := s.Next(nil); got != nil {
		t.Errorf("Next(nil) = %v, want nil", got)
	}
}

func TestFIFOScheduler_NotifyCycleComplete(t *testing.T) {
	s := NewFIFOScheduler()
	s.NotifyCycleComplete(false)
	if !s.UseSplicing {
		t.Error("one no-find cycle should enable splicing")
	}
	if s.ExitWhenDone {
		t.Error("one no-find cycle should not yet request exit")
	}
	s.NotifyCycleComplete(false)
	if !s.ExitWhenDone {
		t.Error("two consecutive no-find cycles should request exit")
	}
	s.NotifyCycleComplete(true)
	if s.cyclesWithoutFinds != 0 {
		t.Error("a find should reset the no-find counter")
	}
}

func TestBuildAliasTable_Uniform(t *testing.T) {
	weights := []float64{1, 1, 1, 1}
	table := BuildAliasTable(weights)

	counts := make([]int, len(weights))
	for i := 0; i < 40000; i++ {
		idx := table.Sample()
		if idx < 0 || idx >= len(weights) {
			t.Fatalf("Sample returned out-of-range index %d", idx)
		}
		counts[idx]++
	}
	for i, c := range counts {
		if c < 8000 || c > 12000 {
			t.Errorf("uniform weight index %d got %d draws out of 40000, expected ~10000", i, c)
		}
	}
}

func TestBuildAliasTable_SkewedFavorsHeavyIndex(t *testing.T) {
	weights := []float64{100, 1, 1, 1}
	table := BuildAliasTable(weights)

	heavy := 0
	for i := 0; i < 10000; i++ {
		if table.Sample() == 0 {
			heavy++
		}
	}
	if heavy < 8000 {
		t.Errorf("heavily-weighted index should dominate draws, got %d/10000", heavy)
	}
}

func TestBuildAliasTable_EmptyAndZeroWeights(t *testing.T) {
	if table := BuildAliasTable(nil); table.Sample() != -1 {
		t.Error("empty table should always return -1")
	}
	table := BuildAliasTable([]float64{0, 0, 0})
	idx := table.Sample()
	if idx < 0 || idx >= 3 {
		t.Errorf("all-zero weights should fall back to a uniform draw, got %d", idx)
	}
}

func TestAliasScheduler_RebuildsOnlyOnGrowth(t *testing.T) {
	calls := 0
	entries := []*TestCase{{ExecUs: 1}, {ExecUs: 2}}
	s := NewAliasScheduler(func(tc *TestCase) float64 {
		calls++
		return 1
	})

	s.Next(entries)
	firstCalls := calls
	s.Next(entries)
	if calls != firstCalls {
		t.Errorf("Rebuild should be a no-op when corpus length is unchanged, weight fn called %d more times", calls-firstCalls)
	}

	s.Next(append(entries, &TestCase{ExecUs: 3}))
	if calls == firstCalls {
		t.Error("Rebuild should recompute weights once the corpus grows")
	}
}

func TestKSchedulerFilter_RejectsNoBorderEdge(t *testing.T) {
	f := &KSchedulerFilter{}
	tc := &TestCase{BorderEdgeCnt: 0}
	if f.Accept(tc) {
		t.Error("entry with no border edge should be rejected")
	}
}

func TestKSchedulerFilter_RejectsDuplicateChecksum(t *testing.T) {
	f := &KSchedulerFilter{}
	a := &TestCase{BorderEdgeCnt: 1, CntFreeCksum: 42}
	if !f.Accept(a) {
		t.Fatal("first seed with a fresh checksum should be accepted")
	}
	b := &TestCase{BorderEdgeCnt: 1, CntFreeCksum: 42}
	if f.Accept(b) {
		t.Error("seed repeating the previous checksum should be rejected")
	}
}

func TestKSchedulerFilter_RejectsExplicitDup(t *testing.T) {
	f := &KSchedulerFilter{}
	tc := &TestCase{BorderEdgeCnt: 1, CntFreeCksum: 1, CntFreeCksumDup: true}
	if f.Accept(tc) {
		t.Error("CntFreeCksumDup should be rejected regardless of checksum novelty")
	}
}

func TestKSchedulerFilter_EnergyScalesByThresEnergy(t *testing.T) {
	f := &KSchedulerFilter{}
	tc := &TestCase{ThresEnergy: 2.5}
	if got := f.Energy(tc, 10); got != 25 {
		t.Errorf("Energy = %v, want 25", got)
	}
	tc2 := &TestCase{ThresEnergy: 0}
	if got := f.Energy(tc2, 10); got != 10 {
		t.Errorf("Energy with no border-edge score should pass base through unchanged, got %v", got)
	}
}

func TestKScheduler_NextSkipsRejectedCandidates(t *testing.T) {
	// Every entry but one has no border edge and is always rejected; with
	// len(entries) redraw attempts the accepted entry must eventually win
	// since it's the only one the filter ever accepts.
	accepted := &TestCase{BorderEdgeCnt: 1, CntFreeCksum: 7}
	rejected := &TestCase{BorderEdgeCnt: 0}
	// Zero-weight the filter-rejected entries so the alias draw always
	// redirects to accepted, isolating the filter's behavior from alias
	// sampling randomness.
	k := NewKScheduler(func(tc *TestCase) float64 {
		if tc.BorderEdgeCnt == 0 {
			return 0
		}
		return 1
	})
	entries := []*TestCase{rejected, rejected, rejected, accepted}

	got := k.Next(entries)
	if got != accepted {
		t.Errorf("expected the only acceptable entry to be picked, got %v", got)
	}
}

func TestKScheduler_NextEmptyCorpus(t *testing.T) {
	k := NewKScheduler(func(tc *TestCase) float64 { return 1 })
	if got := k.Next(nil); got != nil {
		t.Errorf("Next(nil) = %v, want nil", got)
	}
}
