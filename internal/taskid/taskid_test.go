package taskid

import (
	"testing"
	"time"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	for _, kind := range []Kind{Task, Job} {
		id, err := Generate(kind)
		if err != nil {
			t.Fatalf("Generate(%s): %v", kind, err)
		}
		before := time.Now().UTC()
		parsed, err := Parse(id)
		if err != nil {
			t.Fatalf("Parse(%q): %v", id, err)
		}
		if parsed.Kind != kind {
			t.Errorf("kind = %q, want %q", parsed.Kind, kind)
		}
		if diff := before.Sub(parsed.Timestamp); diff < -time.Second || diff > time.Second {
			t.Errorf("timestamp %v not within 1s of generation time %v", parsed.Timestamp, before)
		}
		if len(parsed.Suffix) != 4 {
			t.Errorf("suffix %q len = %d, want 4", parsed.Suffix, len(parsed.Suffix))
		}
	}
}

func TestGenerateSortsChronologically(t *testing.T) {
	a, _ := generateAt(Job, time.Date(2026, 2, 5, 21, 58, 37, 0, time.UTC))
	b, _ := generateAt(Job, time.Date(2026, 2, 5, 21, 58, 38, 0, time.UTC))
	if !(a < b) {
		t.Errorf("expected %q < %q", a, b)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"bogus",
		"widget_20260205_215837_a7k2",
		"job_2026020_215837_a7k2",
		"job_20260205_215837_A7K2",
		"job_20260205_215837_a7k",
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) should have failed", c)
		}
	}
}
