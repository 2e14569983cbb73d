package cli

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/RaneyMD/cornerstone-archive/internal/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Operator commands: produce flags, reconcile results",
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

var (
	produceHandler  string
	produceWorkerID string
	produceLabel    string
	produceParams   string
)

func init() {
	produceJobCmd.Flags().StringVar(&produceHandler, "handler", "", "job handler name (required)")
	produceJobCmd.Flags().StringVar(&produceLabel, "label", "", "optional operator label")
	produceJobCmd.Flags().StringVar(&produceParams, "params", "{}", "JSON object of handler params")
	produceJobCmd.MarkFlagRequired("handler")
	consoleCmd.AddCommand(produceJobCmd)

	produceSupervisorCmd.Flags().StringVar(&produceHandler, "handler", "", "supervisor-control handler name (required)")
	produceSupervisorCmd.Flags().StringVar(&produceWorkerID, "worker-id", "", "target worker id (required)")
	produceSupervisorCmd.Flags().StringVar(&produceLabel, "label", "", "optional operator label")
	produceSupervisorCmd.Flags().StringVar(&produceParams, "params", "{}", "JSON object of handler params")
	produceSupervisorCmd.MarkFlagRequired("handler")
	produceSupervisorCmd.MarkFlagRequired("worker-id")
	consoleCmd.AddCommand(produceSupervisorCmd)

	resultsCmd.Flags().BoolVar(&resultsCleanup, "cleanup", false, "remove (or archive) each result file once reconciled")
	resultsCmd.Flags().StringVar(&resultsArchive, "archive", "", "if --cleanup, move processed result files here instead of deleting")
	consoleCmd.AddCommand(resultsCmd)
}

var produceJobCmd = &cobra.Command{
	Use:   "produce-job",
	Short: "Create a job flag for the watcher fleet",
	RunE:  runProduceJob,
}

var produceSupervisorCmd = &cobra.Command{
	Use:   "produce-supervisor",
	Short: "Create a supervisor-control flag for one worker",
	RunE:  runProduceSupervisor,
}

func parseParams() (map[string]any, error) {
	var params map[string]any
	if err := json.Unmarshal([]byte(produceParams), &params); err != nil {
		return nil, fmt.Errorf("--params must be a JSON object: %w", err)
	}
	return params, nil
}

func runProduceJob(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("console")
	if err != nil {
		return err
	}
	defer rt.Close()

	params, err := parseParams()
	if err != nil {
		return err
	}

	p := &console.FlagProducer{Layout: rt.layout, Store: rt.store, Audit: rt.audit, Logger: rt.logger}
	created, err := p.CreateJobFlag(context.Background(), produceHandler, params, produceLabel)
	if err != nil {
		return err
	}
	fmt.Printf("job_id=%d task_id=%s flag=%s\n", created.JobID, created.TaskID, created.FlagPath)
	return nil
}

func runProduceSupervisor(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("console")
	if err != nil {
		return err
	}
	defer rt.Close()

	params, err := parseParams()
	if err != nil {
		return err
	}

	p := &console.FlagProducer{Layout: rt.layout, Store: rt.store, Audit: rt.audit, Logger: rt.logger}
	created, err := p.CreateSupervisorFlag(context.Background(), produceHandler, produceWorkerID, params, produceLabel)
	if err != nil {
		return err
	}
	fmt.Printf("job_id=%d task_id=%s flag=%s\n", created.JobID, created.TaskID, created.FlagPath)
	return nil
}

var (
	resultsCleanup bool
	resultsArchive string
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Reconcile pending result files against job state",
	RunE:  runResults,
}

func runResults(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("console")
	if err != nil {
		return err
	}
	defer rt.Close()

	c := &console.ResultConsumer{
		Layout:  rt.layout,
		Store:   rt.store,
		Audit:   rt.audit,
		Logger:  rt.logger,
		Cleanup: resultsCleanup,
		Archive: resultsArchive,
	}
	processed, err := c.ProcessPendingResults(context.Background())
	if err != nil {
		return err
	}
	for _, p := range processed {
		if p.TaskID != "" {
			fmt.Printf("job task_id=%s success=%v jobs=%v\n", p.TaskID, p.Success, p.JobIDs)
		} else {
			fmt.Printf("supervisor worker_id=%s success=%v actions=%v jobs=%v\n", p.WorkerID, p.Success, p.Actions, p.JobIDs)
		}
	}
	fmt.Printf("%d result file(s) processed\n", len(processed))
	return nil
}
