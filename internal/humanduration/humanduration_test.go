package humanduration

import (
	"testing"
	"time"
)

func TestParseKnownUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"7d":       7 * 24 * time.Hour,
		"1day":     24 * time.Hour,
		"2days":    2 * 24 * time.Hour,
		"3h":       3 * time.Hour,
		"1hour":    time.Hour,
		"90min":    90 * time.Minute,
		"5minutes": 5 * time.Minute,
		"30s":      30 * time.Second,
		"45seconds": 45 * time.Second,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseIsCaseInsensitiveOnUnit(t *testing.T) {
	got, err := Parse("7D")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != 7*24*time.Hour {
		t.Fatalf("Parse(7D) = %v, want %v", got, 7*24*time.Hour)
	}
}

func TestParseRejectsMissingNumber(t *testing.T) {
	if _, err := Parse("d"); err == nil {
		t.Fatalf("expected error for missing leading number")
	}
}

func TestParseRejectsUnknownUnit(t *testing.T) {
	if _, err := Parse("7fortnights"); err == nil {
		t.Fatalf("expected error for unrecognized unit")
	}
}
