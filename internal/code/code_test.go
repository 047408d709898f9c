package code

import (
	"strings"
	"testing"
)

func TestDictionarySize(t *testing.T) {
	if n := wordCount(); n != 256 {
		t.Fatalf("expected 256 dictionary words, got %d", n)
	}
	seen := make(map[string]bool, 256)
	for _, w := range dictionary {
		if seen[w] {
			t.Fatalf("duplicate dictionary word %q", w)
		}
		seen[w] = true
	}
}

func TestGenerateParseRoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		parsed, err := Parse(c.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.String(), err)
		}
		if parsed != c {
			t.Fatalf("round trip mismatch: %+v != %+v", parsed, c)
		}
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	c, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	upper := strings.ToUpper(c.String())
	parsed, err := Parse(upper)
	if err != nil {
		t.Fatalf("Parse(%q): %v", upper, err)
	}
	if parsed != c {
		t.Fatalf("case-insensitive round trip mismatch: %+v != %+v", parsed, c)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []string{
		"invalid",
		"abc-guitar-palace",
		"7-notaword-palace",
		"10-guitar-palace",
		"",
		"5-guitar",
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should have failed", s)
		}
	}
}
