package nas

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewValidatesRoot(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty root")
	}
	if _, err := New("/does/not/exist/anywhere"); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestEnsureDirsAndVerify(t *testing.T) {
	root := t.TempDir()
	l, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := l.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}

	results := l.VerifyAllPaths()
	for name, ok := range results {
		if !ok {
			t.Errorf("path %s not accessible after EnsureDirs", name)
		}
	}

	if _, err := os.Stat(l.WorkerInbox()); err != nil {
		t.Errorf("Worker_Inbox missing: %v", err)
	}
	if _, err := os.Stat(l.Processing()); err != nil {
		t.Errorf("processing dir missing: %v", err)
	}
}

func TestCreateWorkDir(t *testing.T) {
	root := t.TempDir()
	l, _ := New(root)
	path, err := l.CreateWorkDir(42)
	if err != nil {
		t.Fatalf("CreateWorkDir: %v", err)
	}
	want := filepath.Join(root, "02_WORK", "containers", "42")
	if path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
}

func TestMoveFileSameVolume(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone")
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "hello" {
		t.Errorf("dst contents = %q, %v", data, err)
	}
}
