package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RaneyMD/cornerstone-archive/internal/watcher"
)

var watcherID string

func init() {
	watcherCmd.Flags().StringVar(&watcherID, "worker-id", "", "worker identity this watcher runs as (required)")
	watcherCmd.MarkFlagRequired("worker-id")
	rootCmd.AddCommand(watcherCmd)
}

var watcherCmd = &cobra.Command{
	Use:   "watcher",
	Short: "Run the watcher loop for one worker",
	Long:  "Acquires the single-instance lock for --worker-id and scans the shared inbox for job flags until terminated.",
	RunE:  runWatcher,
}

func runWatcher(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("watcher")
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := rt.logger.With().Str("worker_id", watcherID).Logger()

	prompt, err := watcher.LoadPromptRunner(
		rt.cfg.Watcher.PromptFile,
		rt.cfg.Watcher.PromptCommand,
		time.Duration(rt.cfg.Watcher.PromptTimeoutSeconds)*time.Second,
		rt.cfg.Watcher.DryRunPrompt,
	)
	if err != nil {
		return fmt.Errorf("load prompt runner: %w", err)
	}

	w := watcher.New(watcher.Config{
		WorkerID:          watcherID,
		Layout:            rt.layout,
		Store:             rt.store,
		Audit:             rt.audit,
		Registry:          watcher.DefaultRegistry(),
		ScanInterval:      time.Duration(rt.cfg.Watcher.ScanIntervalSeconds * float64(time.Second)),
		HeartbeatInterval: time.Duration(rt.cfg.Watcher.HeartbeatIntervalSeconds * float64(time.Second)),
		Prompt:            prompt,
		Logger:            logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutting down watcher")
		cancel()
	}()

	logger.Info().Msg("watcher starting")
	return w.Run(ctx)
}
