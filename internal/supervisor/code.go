package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
	"github.com/RaneyMD/cornerstone-archive/internal/procctl"
)

const gitTimeout = 60 * time.Second

func currentCommit(ctx context.Context, repoDir string) string {
	res, err := procctl.RunBounded(ctx, []string{"git", "rev-parse", "HEAD"}, repoDir, gitTimeout)
	if err != nil || res.Code != 0 {
		return "unknown"
	}
	return strings.TrimSpace(res.Stdout)
}

// stopForUpdate stops the watcher if it is running, tolerating "not found"
// (nothing to stop) as success — the update proceeds either way.
func stopForUpdate(hc *HandlerContext) bool {
	pid, alive, _ := procctl.Find(procctl.WorkerMatcher(hc.WorkerID))
	if !alive {
		return true
	}
	return procctl.StopGracefully(pid, hc.StopTimeout)
}

func updateCode(ctx context.Context, hc *HandlerContext, flag flagfile.Flag) HandlerResult {
	if err := flagfile.ValidateLabel(flag.Label); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}
	}

	if !stopForUpdate(hc) {
		return HandlerResult{Success: false, Message: "failed to stop watcher gracefully"}
	}

	before := currentCommit(ctx, hc.RepoDir)
	res, err := procctl.RunBounded(ctx, []string{"git", "pull", "origin", "main"}, hc.RepoDir, gitTimeout)
	pullFailed := err != nil || res.Code != 0

	// Restart regardless of pull outcome — an operator mid-incident needs
	// the watcher back up even if the update itself did not land.
	procctl.SpawnDetached(hc.WatcherArgv, hc.RepoDir)

	if pullFailed {
		msg := "git pull failed"
		if res.Stderr != "" {
			msg += ": " + res.Stderr
		}
		return HandlerResult{Success: false, Message: msg}
	}

	after := currentCommit(ctx, hc.RepoDir)
	auditRecord(ctx, hc, "UPDATE_CODE", map[string]any{
		"before_commit": before, "after_commit": after, "label": flag.Label,
	})
	return HandlerResult{
		Success: true,
		Message: fmt.Sprintf("code updated: %s -> %s", before, after),
		Details: map[string]any{"before_commit": before, "after_commit": after},
	}
}

func updateCodeDeps(ctx context.Context, hc *HandlerContext, flag flagfile.Flag) HandlerResult {
	if err := flagfile.ValidateLabel(flag.Label); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}
	}

	if !stopForUpdate(hc) {
		return HandlerResult{Success: false, Message: "failed to stop watcher gracefully"}
	}

	before := currentCommit(ctx, hc.RepoDir)
	gitRes, err := procctl.RunBounded(ctx, []string{"git", "pull", "origin", "main"}, hc.RepoDir, gitTimeout)
	if err != nil || gitRes.Code != 0 {
		procctl.SpawnDetached(hc.WatcherArgv, hc.RepoDir)
		return HandlerResult{Success: false, Message: "git pull failed: " + gitRes.Stderr}
	}

	depRes, err := procctl.RunBounded(ctx, []string{"go", "mod", "download"}, hc.RepoDir, gitTimeout)
	depsFailed := err != nil || depRes.Code != 0

	procctl.SpawnDetached(hc.WatcherArgv, hc.RepoDir)

	if depsFailed {
		return HandlerResult{Success: false, Message: "dependency install failed: " + depRes.Stderr}
	}

	after := currentCommit(ctx, hc.RepoDir)
	auditRecord(ctx, hc, "UPDATE_CODE_DEPS", map[string]any{
		"before_commit": before, "after_commit": after, "label": flag.Label,
	})
	return HandlerResult{
		Success: true,
		Message: fmt.Sprintf("code + deps updated: %s -> %s", before, after),
		Details: map[string]any{"before_commit": before, "after_commit": after},
	}
}

func rollbackCode(ctx context.Context, hc *HandlerContext, flag flagfile.Flag) HandlerResult {
	if err := flagfile.ValidateLabel(flag.Label); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}
	}

	commitsBack := 1
	if v, ok := flag.Params["commits_back"]; ok {
		switch n := v.(type) {
		case float64:
			commitsBack = int(n)
		case string:
			if parsed, err := strconv.Atoi(n); err == nil {
				commitsBack = parsed
			}
		}
	}
	if commitsBack < 1 || commitsBack > 10 {
		return HandlerResult{Success: false, Message: fmt.Sprintf("commits_back must be 1-10 (got %d)", commitsBack)}
	}

	if !stopForUpdate(hc) {
		return HandlerResult{Success: false, Message: "failed to stop watcher gracefully"}
	}

	before := currentCommit(ctx, hc.RepoDir)
	reverted := 0
	failedAt := 0
	for i := 0; i < commitsBack; i++ {
		res, err := procctl.RunBounded(ctx, []string{"git", "revert", "--no-edit", "HEAD"}, hc.RepoDir, gitTimeout)
		if err != nil || res.Code != 0 {
			failedAt = i + 1
			break
		}
		reverted++
	}
	final := currentCommit(ctx, hc.RepoDir)

	// Always try to bring the watcher back, even on a partial revert.
	procctl.SpawnDetached(hc.WatcherArgv, hc.RepoDir)

	details := map[string]any{
		"commits_reverted": reverted,
		"before_commit":    before,
		"final_commit":     final,
		"label":            flag.Label,
	}
	if failedAt > 0 {
		details["failed_at"] = failedAt
	}
	auditRecord(ctx, hc, "ROLLBACK_CODE", details)

	return HandlerResult{
		Success: failedAt == 0,
		Message: fmt.Sprintf("reverted %d/%d commits", reverted, commitsBack),
		Details: details,
	}
}
