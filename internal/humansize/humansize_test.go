package humansize

import "testing"

func TestParseSingleComponent(t *testing.T) {
	cases := map[string]int64{
		"1GiB":  1 << 30,
		"1GB":   1e9,
		"512MB": 512 * 1e6,
		"100":   100,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseSumsMultipleComponents(t *testing.T) {
	got, err := Parse("1GiB 200MiB")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := int64(1<<30) + int64(200<<20)
	if got != want {
		t.Fatalf("Parse = %d, want %d", got, want)
	}
}

func TestParseRejectsEmptyInput(t *testing.T) {
	if _, err := Parse("   "); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-size"); err == nil {
		t.Fatalf("expected error for unparseable component")
	}
}
