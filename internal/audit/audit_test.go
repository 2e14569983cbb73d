package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenRecordVerifyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := l.Record(Entry{
			Actor:       "console",
			Action:      "CREATE_FLAG",
			TargetType:  "job",
			TargetID:    "1",
			DetailsJSON: `{"n":1}`,
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	result := Verify(path)
	if !result.Valid {
		t.Errorf("Verify: valid=false error=%q line=%d", result.Error, result.ErrorLine)
	}
	if result.Lines != 3 {
		t.Errorf("Lines = %d, want 3", result.Lines)
	}
}

func TestOpenResumesChainAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	l, _ := Open(path)
	l.Record(Entry{Actor: "console", Action: "CREATE_FLAG", TargetType: "job", TargetID: "1"})
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	l2.Record(Entry{Actor: "console", Action: "PROCESS_RESULT", TargetType: "job", TargetID: "1"})
	l2.Close()

	result := Verify(path)
	if !result.Valid {
		t.Errorf("chain broke across reopen: %q at line %d", result.Error, result.ErrorLine)
	}
	if result.Lines != 2 {
		t.Errorf("Lines = %d, want 2", result.Lines)
	}
}

func TestVerifyDetectsTamper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, _ := Open(path)
	l.Record(Entry{Actor: "console", Action: "CREATE_FLAG", TargetType: "job", TargetID: "1"})
	l.Record(Entry{Actor: "console", Action: "PROCESS_RESULT", TargetType: "job", TargetID: "1"})
	l.Close()

	// Tamper: rewrite the first line with different content, which changes
	// its hash and so invalidates the second line's prev_hash reference.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := bytes.SplitN(raw, []byte("\n"), 2)
	tampered := []byte(`{"ts":"x","actor":"console","action":"TAMPERED","target_type":"job","target_id":"1","details_json":"","prev_hash":"` + GenesisHash + `"}`)
	out := append(tampered, '\n')
	out = append(out, lines[1]...)
	if err := os.WriteFile(path, out, 0600); err != nil {
		t.Fatal(err)
	}

	result := Verify(path)
	if result.Valid {
		t.Error("expected tamper to be detected")
	}
}
