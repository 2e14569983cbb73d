package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RaneyMD/cornerstone-archive/internal/supervisor"
)

var (
	supervisorID string
	supervisorOnce bool
	supervisorInterval time.Duration
)

func init() {
	supervisorCmd.Flags().StringVar(&supervisorID, "worker-id", "", "worker identity this supervisor watches over (required)")
	supervisorCmd.MarkFlagRequired("worker-id")
	supervisorCmd.Flags().BoolVar(&supervisorOnce, "once", false, "run a single pass and exit, instead of looping")
	supervisorCmd.Flags().DurationVar(&supervisorInterval, "interval", time.Minute, "time between passes when not --once")
	rootCmd.AddCommand(supervisorCmd)
}

var supervisorCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Run supervisor passes for one worker",
	Long: "Each pass checks watcher health, dispatches any pending control " +
		"flags in priority order, and reports a heartbeat. By default loops " +
		"on --interval; pass --once for a single pass (e.g. under cron).",
	RunE: runSupervisor,
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("supervisor")
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := rt.logger.With().Str("worker_id", supervisorID).Logger()

	self, err := os.Executable()
	if err != nil {
		return err
	}
	watcherArgv := []string{self, "watcher", "--worker-id", supervisorID, "--config", configPath}

	sup := supervisor.New(supervisor.Config{
		WorkerID:        supervisorID,
		Layout:          rt.layout,
		Store:           rt.store,
		Audit:           rt.audit,
		Logger:          logger,
		AutoRestart:     rt.cfg.Supervisor.AutoRestart,
		HeartbeatMaxAge: time.Duration(rt.cfg.Supervisor.HeartbeatMaxAgeSecs * float64(time.Second)),
		StopTimeout:     time.Duration(rt.cfg.Supervisor.StopTimeoutSeconds * float64(time.Second)),
		RepoDir:         rt.cfg.Supervisor.RepoDir,
		WatcherArgv:     watcherArgv,
	})

	ctx := context.Background()

	if supervisorOnce {
		return sup.RunOnce(ctx)
	}

	ticker := time.NewTicker(supervisorInterval)
	defer ticker.Stop()

	logger.Info().Dur("interval", supervisorInterval).Msg("supervisor loop starting")
	for {
		if err := sup.RunOnce(ctx); err != nil {
			logger.Error().Err(err).Msg("supervisor pass reported a failed action")
		}
		<-ticker.C
	}
}
