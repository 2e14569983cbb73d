package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/RaneyMD/cornerstone-archive/internal/audit"
	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/procctl"
	"github.com/RaneyMD/cornerstone-archive/internal/store"
	"github.com/RaneyMD/cornerstone-archive/internal/taskid"
)

// Config wires a Supervisor's dependencies and tunables for a single pass.
type Config struct {
	WorkerID        string
	Layout          *nas.Layout
	Store           *store.Store
	Audit           *audit.Log
	Logger          zerolog.Logger
	AutoRestart     bool
	HeartbeatMaxAge time.Duration
	StopTimeout     time.Duration
	RepoDir         string
	WatcherArgv     []string
}

// Supervisor runs one health-check-and-dispatch pass over a worker's
// control flags. It holds no long-lived state between passes — RunOnce is
// meant to be invoked on its own schedule (cron, systemd timer, a loop in
// main) rather than run as a persistent daemon.
type Supervisor struct {
	cfg Config
}

func New(cfg Config) *Supervisor {
	if cfg.HeartbeatMaxAge == 0 {
		cfg.HeartbeatMaxAge = defaultHeartbeatMaxAge
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	return &Supervisor{cfg: cfg}
}

// RunOnce executes one supervisor pass: health check, conditional
// auto-restart, priority-ordered control-flag dispatch, aggregated result
// publication, then a heartbeat. Each handler failure is recorded as a
// "- ERROR:" action; once the heartbeat is written, RunOnce returns an
// error listing the actions if any of them failed, and nil otherwise.
func (s *Supervisor) RunOnce(ctx context.Context) error {
	hc := &HandlerContext{
		Layout:      s.cfg.Layout,
		Store:       s.cfg.Store,
		Audit:       s.cfg.Audit,
		WorkerID:    s.cfg.WorkerID,
		Logger:      s.cfg.Logger,
		StopTimeout: s.cfg.StopTimeout,
		RepoDir:     s.cfg.RepoDir,
		WatcherArgv: s.cfg.WatcherArgv,
	}

	state, _, _ := checkWatcherHealth(s.cfg.Layout, s.cfg.WorkerID, s.cfg.HeartbeatMaxAge)

	var actions []string

	if state == StateStopped && s.cfg.AutoRestart {
		if _, err := os.Stat(s.cfg.Layout.PauseFlagFile(s.cfg.WorkerID)); err != nil {
			// No pause flag present — the watcher is down unintentionally.
			if err := procctl.SpawnDetached(s.cfg.WatcherArgv, s.cfg.RepoDir); err != nil {
				s.cfg.Logger.Error().Err(err).Msg("auto-restart watcher")
				actions = append(actions, "auto_restart - ERROR: "+err.Error())
			} else {
				actions = append(actions, "auto_restart")
				auditRecord(ctx, hc, "AUTO_RESTART_WATCHER", map[string]any{"reason": "watcher stopped, no pause flag"})
			}
		}
	}

	pending, err := s.scanControlFlags()
	if err != nil {
		s.cfg.Logger.Error().Err(err).Msg("scan control flags")
	}
	sortByPriority(pending)

	for _, pf := range pending {
		handler, ok := Handlers[pf.flag.Handler]
		if !ok {
			s.cfg.Logger.Warn().Str("handler", pf.flag.Handler).Str("flag", pf.filename).Msg("unregistered control handler, skipping")
			continue
		}

		src := filepath.Join(s.cfg.Layout.WorkerInbox(), pf.filename)
		claimed := filepath.Join(s.cfg.Layout.Processing(), pf.filename)
		if err := flagfile.Claim(src, claimed); err != nil {
			continue
		}

		result := handler(ctx, hc, pf.flag)
		label := pf.flag.Handler
		if pf.flag.Label != "" {
			label += " (" + pf.flag.Label + ")"
		}
		if result.Success {
			actions = append(actions, label)
		} else {
			actions = append(actions, label+" - ERROR: "+result.Message)
		}

		if err := os.Remove(claimed); err != nil && !os.IsNotExist(err) {
			s.cfg.Logger.Error().Err(err).Str("flag", pf.filename).Msg("remove claimed control flag")
		}
	}

	if len(actions) > 0 {
		if err := s.publishResult(actions); err != nil {
			s.cfg.Logger.Error().Err(err).Msg("publish supervisor result")
		}
	}

	summary := statusSummary(state, actions)
	now := flagfile.NowUTC()
	if err := s.cfg.Store.UpsertSupervisorHeartbeat(ctx, s.cfg.WorkerID, now, summary); err != nil {
		s.cfg.Logger.Error().Err(err).Msg("upsert supervisor heartbeat")
	}
	if err := s.writeHeartbeatFile(summary); err != nil {
		s.cfg.Logger.Error().Err(err).Msg("write supervisor heartbeat file")
	}

	for _, a := range actions {
		if strings.Contains(a, "- ERROR:") {
			return fmt.Errorf("one or more control actions failed: %s", strings.Join(actions, "; "))
		}
	}
	return nil
}

// scanControlFlags enumerates Worker_Inbox/*.flag, decodes each, and keeps
// only those whose handler belongs to the supervisor-control registry —
// job flags are left untouched for the watcher's own scan.
func (s *Supervisor) scanControlFlags() ([]pendingFlag, error) {
	entries, err := os.ReadDir(s.cfg.Layout.WorkerInbox())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var pending []pendingFlag
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".flag") {
			continue
		}
		path := filepath.Join(s.cfg.Layout.WorkerInbox(), e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		flag, err := flagfile.DecodeFlag(data)
		if err != nil {
			s.cfg.Logger.Error().Err(err).Str("flag", e.Name()).Msg("parse control flag, skipping")
			continue
		}
		if !flagfile.SupervisorHandlers[flag.Handler] {
			if !flagfile.JobHandlers[flag.Handler] {
				s.cfg.Logger.Warn().Str("handler", flag.Handler).Str("flag", e.Name()).Msg("unregistered handler, skipping")
			}
			continue
		}
		pending = append(pending, pendingFlag{filename: e.Name(), flag: flag, priority: priorityOf(flag.Handler)})
	}
	return pending, nil
}

// publishResult writes one aggregated result file per pass covering every
// control action taken, discriminated from job results by the presence of
// both SupervisorID and WorkerID.
func (s *Supervisor) publishResult(actions []string) error {
	id, err := taskid.Generate(taskid.Task)
	if err != nil {
		return err
	}
	result := flagfile.Result{
		TaskID:        id,
		Success:       true,
		CompletedAt:   flagfile.NowUTC(),
		SupervisorID:  s.cfg.WorkerID,
		WorkerID:      s.cfg.WorkerID,
		Actions:       actions,
	}
	for _, a := range actions {
		if strings.Contains(a, "- ERROR:") {
			result.Success = false
			break
		}
	}
	data, err := flagfile.EncodeResult(result)
	if err != nil {
		return err
	}
	path := filepath.Join(s.cfg.Layout.WorkerOutbox(), flagfile.ResultFilename(id, result.Success))
	return flagfile.WriteAtomic(path, data)
}

func statusSummary(state WatcherState, actions []string) string {
	if len(actions) == 0 {
		return fmt.Sprintf("Supervisor OK - %s. Actions: none", state)
	}
	return fmt.Sprintf("Supervisor OK - %s. Actions: %s", state, strings.Join(actions, ", "))
}

type supervisorHeartbeatFile struct {
	SupervisorID string `json:"supervisor_id"`
	PID          int    `json:"pid"`
	UTC          string `json:"utc"`
	Status       string `json:"status"`
}

func (s *Supervisor) writeHeartbeatFile(status string) error {
	hb := supervisorHeartbeatFile{
		SupervisorID: s.cfg.WorkerID,
		PID:          os.Getpid(),
		UTC:          flagfile.NowUTC(),
		Status:       status,
	}
	data, err := json.Marshal(hb)
	if err != nil {
		return err
	}
	return flagfile.WriteAtomic(s.cfg.Layout.SupervisorHeartbeatFile(s.cfg.WorkerID), data)
}
