package watcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"

	"github.com/RaneyMD/cornerstone-archive/internal/procctl"
)

// maxPromptFileBytes is the bounded-size ceiling for the optional
// post-handler prompt file: reject anything larger or unreadable.
const maxPromptFileBytes = 100 * 1024

// PromptRunner invokes an external command after each successful job
// handler and tolerantly parses its stdout as JSON. The prompt file is
// loaded and size-checked at startup, but its contents are not passed to
// the command. Any failure here is recorded but never fails the handler.
type PromptRunner struct {
	argv    []string
	prompt  []byte
	timeout time.Duration
	dryRun  bool
}

// LoadPromptRunner reads path once at startup. An empty path disables the
// post-handler action entirely (nil, nil).
func LoadPromptRunner(path string, argv []string, timeout time.Duration, dryRun bool) (*PromptRunner, error) {
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("watcher: stat prompt file: %w", err)
	}
	if info.Size() > maxPromptFileBytes {
		return nil, fmt.Errorf("watcher: prompt file %s exceeds %d bytes", path, maxPromptFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watcher: read prompt file: %w", err)
	}
	return &PromptRunner{argv: argv, prompt: data, timeout: timeout, dryRun: dryRun}, nil
}

// Invoke runs the configured command with no stdin (the loaded prompt is
// not sent to it) and returns
// the tolerantly-parsed JSON object from its stdout, or an error describing
// why the step did not succeed. Dry-run mode skips the actual subprocess.
func (p *PromptRunner) Invoke(ctx context.Context) (map[string]any, error) {
	if p.dryRun {
		return map[string]any{"dry_run": true}, nil
	}
	res, err := procctl.RunBounded(ctx, p.argv, "", p.timeout)
	if err != nil {
		return nil, fmt.Errorf("watcher: run prompt command: %w", err)
	}
	if res.Code != 0 {
		return nil, fmt.Errorf("watcher: prompt command exited %d: %s", res.Code, res.Stderr)
	}
	obj, err := tolerantJSON(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("watcher: parse prompt command output: %w", err)
	}
	return obj, nil
}

// tolerantJSON extracts the first top-level JSON object from s, skipping
// any leading non-JSON noise (banners, log lines) a wrapped tool may emit
// before its structured output.
func tolerantJSON(s string) (map[string]any, error) {
	idx := bytes.IndexByte([]byte(s), '{')
	if idx < 0 {
		return nil, fmt.Errorf("no JSON object found in output")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s[idx:]), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
