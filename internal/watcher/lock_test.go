package watcher

import (
	"testing"

	"github.com/RaneyMD/cornerstone-archive/internal/nas"
)

func newTestLayout(t *testing.T) *nas.Layout {
	t.Helper()
	root := t.TempDir()
	l, err := nas.New(root)
	if err != nil {
		t.Fatalf("nas.New: %v", err)
	}
	if err := l.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return l
}

func TestAcquireLockRejectsSecondHolder(t *testing.T) {
	layout := newTestLayout(t)

	lock, err := AcquireLock(layout, "Orion")
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	if _, err := AcquireLock(layout, "Orion"); err != ErrAlreadyLocked {
		t.Errorf("second AcquireLock = %v, want ErrAlreadyLocked", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Released; a new holder may now acquire it.
	lock2, err := AcquireLock(layout, "Orion")
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	_ = lock2.Release()
}

func TestLockReleaseIdempotent(t *testing.T) {
	layout := newTestLayout(t)
	lock, err := AcquireLock(layout, "Vega")
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
}
