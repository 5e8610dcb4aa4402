package mutator

import "testing"

func TestDeterministicStageFlipsEveryBit(t *testing.T) {
	base := []byte{0x00, 0x00}
	var flips int
	for m := range DeterministicStage(base, NewDictionary()) {
		if m.Stage == StageBitflip1 {
			flips++
		}
	}
	if flips < len(base)*8 {
		t.Fatalf("expected at least %d bitflip/1 candidates, got %d", len(base)*8, flips)
	}
}

func TestDeterministicStageNeverMutatesBaseInPlace(t *testing.T) {
	base := []byte{0xAA, 0x55, 0x00, 0xFF}
	original := append([]byte(nil), base...)
	for range DeterministicStage(base, NewDictionary()) {
	}
	for i := range base {
		if base[i] != original[i] {
			t.Fatalf("base mutated in place at offset %d: %x != %x", i, base, original)
		}
	}
}

func TestDeterministicStageExtrasIncludesDictionaryTokens(t *testing.T) {
	base := make([]byte, 16)
	dict := NewDictionary()
	dict.AddExtra([]byte("TOKEN"))

	found := false
	for m := range DeterministicStage(base, dict) {
		if m.Stage == StageExtrasUO {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected at least one extras-uo candidate when the dictionary is non-empty")
	}
}

func TestCouldBeBitflipSkipsMultiBitChanges(t *testing.T) {
	if !couldBeBitflip(0) {
		t.Fatal("a zero xor (no change) is trivially consistent with a bitflip")
	}
	if !couldBeBitflip(0x01) {
		t.Fatal("single set bit should be classified as a possible bitflip")
	}
	if !couldBeBitflip(0xFF) {
		t.Fatal("a byte-aligned all-bits xor should be classified as a possible bitflip")
	}
	if couldBeBitflip(0x05) {
		t.Fatal("two scattered set bits should not be classified as a possible bitflip")
	}
}

func TestCouldBeArithDetectsSmallDeltas(t *testing.T) {
	if !couldBeArith(10, 12, 8) {
		t.Fatal("small positive delta should be classified as possible arithmetic")
	}
	if couldBeArith(10, 250, 8) {
		t.Fatal("large delta should not be classified as possible arithmetic")
	}
}

func TestEffectorMapMarksAndQueries(t *testing.T) {
	e := newEffectorMap(16)
	if !e.isDead(0, 1) {
		t.Fatal("fresh effector map should report an unmarked byte dead")
	}
	e.markChanged(0)
	if e.isDead(0, 1) {
		t.Fatal("a changed byte must not be reported dead")
	}
}
