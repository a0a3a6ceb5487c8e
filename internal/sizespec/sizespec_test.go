package sizespec

import "testing"

func TestParseSuffixes(t *testing.T) {
	cases := map[string]int64{
		"0":    0,
		"512":  512,
		"64K":  64 * 1024,
		"4k":   4 * 1024,
		"4M":   4 << 20,
		"2G":   2 << 30,
		"1T":   1 << 40,
	}
	for spec, want := range cases {
		got, err := Parse(spec)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", spec, err)
			continue
		}
		if got != want {
			t.Errorf("Parse(%q) = %d, want %d", spec, got, want)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, spec := range []string{"", "abc", "-5", "5X"} {
		if _, err := Parse(spec); err == nil {
			t.Errorf("Parse(%q): expected error", spec)
		}
	}
}

func TestPathOffsetVariants(t *testing.T) {
	path, off, err := PathOffset("/mnt/data")
	if err != nil || path != "/mnt/data" || off != 0 {
		t.Fatalf("PathOffset(bare) = %q,%d,%v", path, off, err)
	}

	path, off, err = PathOffset("/mnt/data:4M")
	if err != nil || path != "/mnt/data" || off != 4<<20 {
		t.Fatalf("PathOffset(suffix) = %q,%d,%v", path, off, err)
	}

	path, off, err = PathOffset("/mnt/data:")
	if err != nil || path != "/mnt/data" || off != 0 {
		t.Fatalf("PathOffset(trailing colon) = %q,%d,%v", path, off, err)
	}

	if _, _, err = PathOffset("/mnt/data:bogus"); err == nil {
		t.Fatalf("PathOffset(bad offset): expected error")
	}
}
