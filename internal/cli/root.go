// Package cli wires the cornerstone binary's subcommands: the console's
// flag-producing and result-consuming operator commands, and the watcher
// and supervisor process entrypoints.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cornerstone",
	Short: "Job orchestrator for long-running data-acquisition pipelines on shared storage",
	Long: "cornerstone coordinates a console, one or more watchers, and their " +
		"supervisors over a shared NAS tree and a relational state store, " +
		"exchanging work as atomically-written flag files.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
