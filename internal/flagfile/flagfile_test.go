package flagfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAtomicProducesCompleteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "result.json")
	if err := WriteAtomic(path, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("data = %q", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not survive a successful write")
	}
}

func TestWriteAtomicOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.json")
	if err := WriteAtomic(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := WriteAtomic(path, []byte("two")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Errorf("data = %q, want two", data)
	}
}

func TestClaimSucceedsOnce(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "inbox", "job.flag")
	dst := filepath.Join(dir, "processing", "job.flag")
	os.MkdirAll(filepath.Dir(src), 0750)
	os.WriteFile(src, []byte("{}"), 0600)

	if err := Claim(src, dst); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone after claim")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("dst missing: %v", err)
	}

	if err := Claim(src, dst); err != ErrAlreadyClaimed {
		t.Errorf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
}

func TestValidateLabel(t *testing.T) {
	if err := ValidateLabel(""); err != nil {
		t.Errorf("empty label should pass: %v", err)
	}
	if err := ValidateLabel(strings.Repeat("a", 100)); err != nil {
		t.Errorf("100-char label should pass: %v", err)
	}
	if err := ValidateLabel(strings.Repeat("a", 101)); err == nil {
		t.Error("101-char label should fail")
	}
	if err := ValidateLabel("bad@label"); err == nil {
		t.Error("label with @ should fail")
	}
	if err := ValidateLabel("bad\nlabel"); err == nil {
		t.Error("label with newline should fail")
	}
}

func TestSummarizeParamsTruncates(t *testing.T) {
	small := map[string]any{"x": 1}
	s, err := SummarizeParams(small)
	if err != nil {
		t.Fatal(err)
	}
	if s != `{"x":1}` {
		t.Errorf("small summary = %q", s)
	}

	big := map[string]any{"value": strings.Repeat("x", 600)}
	s, err = SummarizeParams(big)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 512 {
		t.Errorf("truncated length = %d, want 512", len(s))
	}
	if !strings.HasSuffix(s, "...") {
		t.Errorf("truncated summary should end with ..., got %q", s[len(s)-10:])
	}
}

func TestFlagRoundTrip(t *testing.T) {
	f := Flag{
		TaskID:    "job_20260205_215837_a7k2",
		Handler:   "acquire_source",
		Params:    map[string]any{"x": float64(1)},
		CreatedAt: NowUTC(),
	}
	data, err := EncodeFlag(f)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeFlag(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.TaskID != f.TaskID || decoded.Handler != f.Handler {
		t.Errorf("decoded = %+v, want %+v", decoded, f)
	}
}

func TestResultFilename(t *testing.T) {
	if got := ResultFilename("job_1", true); got != "job_1.result.json" {
		t.Errorf("got %q", got)
	}
	if got := ResultFilename("job_1", false); got != "job_1.error.json" {
		t.Errorf("got %q", got)
	}
}
