package mutator

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDictionaryAddExtraSortsByLength(t *testing.T) {
	d := NewDictionary()
	d.AddExtra([]byte("longtoken"))
	d.AddExtra([]byte("a"))
	d.AddExtra([]byte("mid"))

	extras := d.Extras()
	if len(extras) != 3 {
		t.Fatalf("expected 3 extras, got %d", len(extras))
	}
	for i := 1; i < len(extras); i++ {
		if len(extras[i-1]) > len(extras[i]) {
			t.Fatalf("extras not sorted ascending by length: %v", extras)
		}
	}
}

func TestDictionaryAutoEviction(t *testing.T) {
	d := NewDictionary()
	for i := 0; i < MaxAutoExtras+10; i++ {
		tok := make([]byte, MinAutoExtraLen)
		tok[0] = byte(i)
		d.Auto(tok)
	}
	if len(d.AutoExtras()) > MaxAutoExtras {
		t.Fatalf("auto dictionary exceeded cap: %d > %d", len(d.AutoExtras()), MaxAutoExtras)
	}
}

func TestDictionaryAutoRejectsOutOfRangeLengths(t *testing.T) {
	d := NewDictionary()
	d.Auto([]byte("a"))
	d.Auto(make([]byte, MaxAutoExtraLen+1))
	if len(d.AutoExtras()) != 0 {
		t.Fatalf("expected out-of-range tokens to be rejected, got %d entries", len(d.AutoExtras()))
	}
}

func TestDictionaryLoadFileParsesQuotedTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.txt")
	contents := "# comment line\n\"abc\"\n\"a\\\"b\"\n\"\\x41\\x42\"\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	d := NewDictionary()
	if err := d.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	extras := d.All()
	if len(extras) != 3 {
		t.Fatalf("expected 3 parsed tokens, got %d: %v", len(extras), extras)
	}

	found := map[string]bool{}
	for _, e := range extras {
		found[string(e)] = true
	}
	if !found["abc"] || !found[`a"b`] || !found["AB"] {
		t.Fatalf("unexpected parsed tokens: %v", found)
	}
}

func TestDictionaryLenCountsExtrasAndAuto(t *testing.T) {
	d := NewDictionary()
	d.AddExtra([]byte("one"))
	d.AddExtra([]byte("two"))
	d.Auto([]byte("three"))
	if d.Len() != 3 {
		t.Fatalf("expected Len() == 3, got %d", d.Len())
	}
}
