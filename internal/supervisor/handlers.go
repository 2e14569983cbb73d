package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaneyMD/cornerstone-archive/internal/audit"
	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/procctl"
	"github.com/RaneyMD/cornerstone-archive/internal/store"
)

// HandlerContext bundles the dependencies every control handler needs.
type HandlerContext struct {
	Layout      *nas.Layout
	Store       *store.Store
	Audit       *audit.Log
	WorkerID    string
	Logger      zerolog.Logger
	StopTimeout time.Duration
	RepoDir     string
	WatcherArgv []string // argv used to spawn a fresh watcher process
}

// HandlerResult is a control handler's outcome. Message becomes part of the
// "{handler} ({label})[ - ERROR: ...]" action string the pass-level result
// reports; Details is folded into the handler's audit row.
type HandlerResult struct {
	Success bool
	Message string
	Details map[string]any
}

// HandlerFunc is the signature every control handler implements.
type HandlerFunc func(ctx context.Context, hc *HandlerContext, flag flagfile.Flag) HandlerResult

// Handlers is the fixed registry of the eight control handlers, keyed by
// the same names as flagfile.SupervisorHandlers.
var Handlers = map[string]HandlerFunc{
	"pause_watcher":    pauseWatcher,
	"resume_watcher":   resumeWatcher,
	"restart_watcher":  restartWatcher,
	"update_code":      updateCode,
	"update_code_deps": updateCodeDeps,
	"rollback_code":    rollbackCode,
	"diagnostics":      diagnosticsHandler,
	"verify_db":        verifyDB,
}

func auditRecord(ctx context.Context, hc *HandlerContext, action string, details map[string]any) {
	now := flagfile.NowUTC()
	if err := hc.Store.InsertAudit(ctx, "supervisor", action, "supervisor_control", hc.WorkerID, details, now); err != nil {
		hc.Logger.Error().Err(err).Str("action", action).Msg("insert audit row")
	}
	if hc.Audit != nil {
		detailsJSON, _ := flagfile.SummarizeParams(details)
		if err := hc.Audit.Record(audit.Entry{
			Actor:       "supervisor",
			Action:      action,
			TargetType:  "supervisor_control",
			TargetID:    hc.WorkerID,
			DetailsJSON: detailsJSON,
		}); err != nil {
			hc.Logger.Error().Err(err).Str("action", action).Msg("append audit mirror")
		}
	}
}

func pauseWatcher(ctx context.Context, hc *HandlerContext, flag flagfile.Flag) HandlerResult {
	if err := flagfile.ValidateLabel(flag.Label); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}
	}
	path := hc.Layout.PauseFlagFile(hc.WorkerID)
	if err := flagfile.WriteAtomic(path, []byte("{}")); err != nil {
		return HandlerResult{Success: false, Message: "failed to create pause flag: " + err.Error()}
	}
	if _, err := os.Stat(path); err != nil {
		return HandlerResult{Success: false, Message: "pause flag not present after write"}
	}
	auditRecord(ctx, hc, "PAUSE_WATCHER", map[string]any{"message": "watcher paused", "label": flag.Label})
	return HandlerResult{Success: true, Message: fmt.Sprintf("watcher %s paused", hc.WorkerID)}
}

func resumeWatcher(ctx context.Context, hc *HandlerContext, flag flagfile.Flag) HandlerResult {
	if err := flagfile.ValidateLabel(flag.Label); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}
	}
	path := hc.Layout.PauseFlagFile(hc.WorkerID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return HandlerResult{Success: false, Message: "failed to delete pause flag: " + err.Error()}
	}
	if err := procctl.SpawnDetached(hc.WatcherArgv, hc.RepoDir); err != nil {
		return HandlerResult{Success: false, Message: "failed to start watcher: " + err.Error()}
	}
	auditRecord(ctx, hc, "RESUME_WATCHER", map[string]any{"message": "watcher resumed", "label": flag.Label})
	return HandlerResult{Success: true, Message: fmt.Sprintf("watcher %s resumed", hc.WorkerID)}
}

func restartWatcher(ctx context.Context, hc *HandlerContext, flag flagfile.Flag) HandlerResult {
	if err := flagfile.ValidateLabel(flag.Label); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}
	}
	_, statErr := os.Stat(hc.Layout.PauseFlagFile(hc.WorkerID))
	paused := statErr == nil

	if pid, alive, _ := procctl.Find(procctl.WorkerMatcher(hc.WorkerID)); alive {
		if !procctl.StopGracefully(pid, hc.StopTimeout) {
			return HandlerResult{Success: false, Message: "failed to stop watcher"}
		}
	}

	time.Sleep(2 * time.Second)

	if err := procctl.SpawnDetached(hc.WatcherArgv, hc.RepoDir); err != nil {
		return HandlerResult{Success: false, Message: "failed to start watcher: " + err.Error()}
	}

	auditRecord(ctx, hc, "RESTART_WATCHER", map[string]any{
		"message": "watcher restarted", "paused": paused, "label": flag.Label,
	})
	return HandlerResult{Success: true, Message: fmt.Sprintf("watcher %s restarted", hc.WorkerID), Details: map[string]any{"paused": paused}}
}
