// Package flagfile implements the atomic file writer, the flag/result
// codec, and the claim-rename primitive that together carry the
// orchestration protocol's messages across the shared filesystem.
package flagfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteAtomic writes data to path by creating a sibling temp file,
// flushing and fsyncing it, then renaming it over the final destination.
// On any failure the temp file is best-effort removed; path is left
// untouched (either wholly updated, or not at all).
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("flagfile: create directory %s: %w", dir, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("flagfile: create temp file: %w", err)
	}

	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("flagfile: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("flagfile: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("flagfile: close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("flagfile: rename into place: %w", err)
	}
	cleanup = false
	return nil
}

// ErrAlreadyClaimed is returned by Claim when the source flag is gone —
// another watcher (or the same one, racing itself) already moved it.
var ErrAlreadyClaimed = fmt.Errorf("flagfile: already claimed")

// Claim atomically moves a flag from its inbox path to a processing path,
// granting exclusive execution rights to the caller. It uses a
// fail-if-exists link-then-unlink sequence so two concurrent claimants
// can never both succeed: exactly one Link call wins, the other sees
// os.IsExist, and the loser treats that as "someone else has it" — never
// as a reason to retry the rename itself (doing so over a renamed-away
// source would silently create a duplicate at dst).
func Claim(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("flagfile: create processing directory: %w", err)
	}
	if err := os.Link(src, dst); err != nil {
		if os.IsExist(err) {
			return ErrAlreadyClaimed
		}
		if os.IsNotExist(err) {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("flagfile: claim link: %w", err)
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		// The link succeeded, so dst exists, but the error is reported
		// and callers skip the flag. The source stays in the inbox as a
		// second link; later scans still list it, but their claims fail
		// with ErrAlreadyClaimed for as long as dst (same filename) exists.
		return fmt.Errorf("flagfile: remove claimed source: %w", err)
	}
	return nil
}
