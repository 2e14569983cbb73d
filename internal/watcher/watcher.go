package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/RaneyMD/cornerstone-archive/internal/audit"
	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/store"
)

// Config wires a Watcher's dependencies and loop tunables.
type Config struct {
	WorkerID          string
	Layout            *nas.Layout
	Store             *store.Store
	Audit             *audit.Log // nil disables the tamper-evident mirror
	Registry          Registry
	ScanInterval      time.Duration
	HeartbeatInterval time.Duration
	Prompt            *PromptRunner // nil disables the post-handler action
	Logger            zerolog.Logger
}

// Watcher runs the single-instance event loop over one worker's inbox.
type Watcher struct {
	cfg  Config
	lock *Lock
}

// New constructs a Watcher. Call Run to acquire the lock and start the loop.
func New(cfg Config) *Watcher {
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	return &Watcher{cfg: cfg}
}

// Run acquires the single-instance lock, emits an unconditional initial
// heartbeat, then runs the 1-second tick loop until ctx is cancelled
// (TERM/INT translate to context cancellation at the call site). The lock
// is always released before Run returns, even on error.
func (w *Watcher) Run(ctx context.Context) error {
	lock, err := AcquireLock(w.cfg.Layout, w.cfg.WorkerID)
	if err != nil {
		return err
	}
	w.lock = lock
	defer func() {
		if err := w.lock.Release(); err != nil {
			w.cfg.Logger.Error().Err(err).Msg("release lock")
		}
	}()

	if err := beat(ctx, w.cfg.Layout, w.cfg.Store, w.cfg.WorkerID, w.cfg.HeartbeatInterval.Seconds()); err != nil {
		w.cfg.Logger.Error().Err(err).Msg("initial heartbeat")
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	inboxEvents, closeWatch := w.watchInbox()
	defer closeWatch()

	lastScan := time.Now()
	lastHeartbeat := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-inboxEvents:
			// A new flag landed — scan now instead of waiting out the rest
			// of the tick interval. The tick loop below remains the
			// fallback cadence if fsnotify is unavailable or a write event
			// is coalesced away by the OS.
			lastScan = time.Now()
			w.scanAndProcess(ctx)
		case now := <-ticker.C:
			if now.Sub(lastScan) >= w.cfg.ScanInterval {
				lastScan = now
				w.scanAndProcess(ctx)
			}
			if now.Sub(lastHeartbeat) >= w.cfg.HeartbeatInterval {
				lastHeartbeat = now
				if err := beat(ctx, w.cfg.Layout, w.cfg.Store, w.cfg.WorkerID, w.cfg.HeartbeatInterval.Seconds()); err != nil {
					w.cfg.Logger.Error().Err(err).Msg("heartbeat")
				}
			}
		}
	}
}

// watchInbox starts an fsnotify watch on Worker_Inbox so newly-written flags
// trigger an immediate scan rather than waiting for the next tick. Returns a
// nil channel (never fires) and a no-op closer if the watch cannot be
// established — the tick-based scan interval still covers correctness.
func (w *Watcher) watchInbox() (<-chan struct{}, func()) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.cfg.Logger.Warn().Err(err).Msg("fsnotify unavailable, falling back to poll-only scanning")
		return nil, func() {}
	}
	inbox := w.cfg.Layout.WorkerInbox()
	if err := fw.Add(inbox); err != nil {
		w.cfg.Logger.Warn().Err(err).Str("path", inbox).Msg("watch inbox directory")
		fw.Close()
		return nil, func() {}
	}

	events := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".flag") {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case events <- struct{}{}:
				default:
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.cfg.Logger.Warn().Err(err).Msg("inbox watch error")
			}
		}
	}()

	return events, func() { fw.Close() }
}

// scanAndProcess enumerates Worker_Inbox/*.flag in sorted filename order
// (chronological, since task ids sort that way) and processes each in turn.
// A task in progress runs to completion before the loop can exit — the
// cycle is synchronous within one tick.
func (w *Watcher) scanAndProcess(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Layout.WorkerInbox())
	if err != nil {
		if !os.IsNotExist(err) {
			w.cfg.Logger.Error().Err(err).Msg("scan inbox")
		}
		return
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".flag") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		w.processFlag(ctx, name)
	}
}

func (w *Watcher) processFlag(ctx context.Context, name string) {
	inbox := w.cfg.Layout.WorkerInbox()
	src := filepath.Join(inbox, name)

	data, err := os.ReadFile(src)
	if err != nil {
		if !os.IsNotExist(err) {
			w.cfg.Logger.Error().Err(err).Str("flag", name).Msg("read flag")
		}
		return
	}

	flag, err := flagfile.DecodeFlag(data)
	if err != nil {
		w.cfg.Logger.Error().Err(err).Str("flag", name).Msg("parse flag, skipping")
		return
	}

	if !flagfile.JobHandlers[flag.Handler] {
		// Not a job flag this watcher owns — either a supervisor-control
		// flag (the supervisor's own scan claims those) or an unregistered
		// handler left for an operator to investigate.
		return
	}

	dst := filepath.Join(w.cfg.Layout.Processing(), name)
	if err := flagfile.Claim(src, dst); err != nil {
		if errors.Is(err, flagfile.ErrAlreadyClaimed) {
			return
		}
		w.cfg.Logger.Error().Err(err).Str("flag", name).Msg("claim flag")
		return
	}

	w.execute(ctx, flag, dst)
}

// execute runs the handler, writes the result atomically, updates the job
// row, appends an audit entry, then removes the processing file — the
// publish step.
func (w *Watcher) execute(ctx context.Context, flag flagfile.Flag, processingPath string) {
	logger := w.cfg.Logger.With().Str("task_id", flag.TaskID).Str("handler", flag.Handler).Logger()

	jobID, err := w.cfg.Store.JobIDByTaskID(ctx, flag.TaskID)
	if err != nil {
		logger.Error().Err(err).Msg("look up job by task id")
	}
	if jobID != 0 {
		if err := w.cfg.Store.MarkJobRunning(ctx, jobID); err != nil {
			logger.Error().Err(err).Msg("mark job running")
		}
	}

	task := Task{JobID: jobID, TaskID: flag.TaskID, Handler: flag.Handler, Params: flag.Params}

	handler, ok := w.cfg.Registry[flag.Handler]
	var result map[string]any
	var handlerErr error
	if !ok {
		handlerErr = fmt.Errorf("no handler registered for %q", flag.Handler)
	} else {
		result, handlerErr = handler(ctx, task, w.cfg.Layout, w.cfg.Store)
	}

	success := handlerErr == nil
	now := flagfile.NowUTC()
	var errMsg string
	if handlerErr != nil {
		errMsg = handlerErr.Error()
	}

	if success && w.cfg.Prompt != nil {
		if result == nil {
			result = map[string]any{}
		}
		post, postErr := w.cfg.Prompt.Invoke(ctx)
		if postErr != nil {
			result["post_handler_error"] = postErr.Error()
		} else {
			result["post_handler"] = post
		}
	}

	resPath := filepath.Join(w.cfg.Layout.WorkerOutbox(), flagfile.ResultFilename(flag.TaskID, success))
	resultData, encErr := flagfile.EncodeResult(flagfile.Result{
		TaskID:      flag.TaskID,
		Success:     success,
		CompletedAt: now,
		Result:      result,
		Error:       errMsg,
	})
	if encErr != nil {
		logger.Error().Err(encErr).Msg("encode result")
	} else if err := flagfile.WriteAtomic(resPath, resultData); err != nil {
		logger.Error().Err(err).Msg("publish result")
	}

	if jobID != 0 {
		if err := w.cfg.Store.UpdateJobResult(ctx, jobID, success, now, resPath, errMsg); err != nil {
			logger.Error().Err(err).Msg("update job result")
		}
	}

	actor := "watcher:" + w.cfg.WorkerID
	details := map[string]any{"success": success}
	if errMsg != "" {
		details["error"] = errMsg
	}
	if err := w.cfg.Store.InsertAudit(ctx, actor, "JOB_COMPLETED", "job", flag.TaskID, details, now); err != nil {
		logger.Error().Err(err).Msg("insert audit row")
	}
	if w.cfg.Audit != nil {
		detailsJSON, _ := flagfile.SummarizeParams(details)
		if err := w.cfg.Audit.Record(audit.Entry{
			Actor:       actor,
			Action:      "JOB_COMPLETED",
			TargetType:  "job",
			TargetID:    flag.TaskID,
			DetailsJSON: detailsJSON,
		}); err != nil {
			logger.Error().Err(err).Msg("append audit mirror")
		}
	}

	if err := os.Remove(processingPath); err != nil && !os.IsNotExist(err) {
		logger.Error().Err(err).Msg("remove processing file")
	}
}
