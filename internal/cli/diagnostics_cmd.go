package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(diagnosticsCmd)
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Check operator-side readiness: config, layout, and store connectivity",
	RunE:  runDiagnostics,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	rt, err := newRuntime("diagnostics")
	if err != nil {
		checks = append(checks, checkResult{label: "config load", ok: false, detail: err.Error()})
		printChecks(checks)
		return fmt.Errorf("diagnostics found failures")
	}
	defer rt.Close()
	checks = append(checks, checkResult{label: "config load", ok: true, detail: configPath})

	for name, ok := range rt.layout.VerifyAllPaths() {
		detail := "accessible"
		if !ok {
			detail = "missing or not writable"
		}
		checks = append(checks, checkResult{label: "path " + name, ok: ok, detail: detail})
	}

	ctx := context.Background()
	if err := rt.store.DB().PingContext(ctx); err != nil {
		checks = append(checks, checkResult{label: "database connectivity", ok: false, detail: err.Error()})
	} else {
		checks = append(checks, checkResult{label: "database connectivity", ok: true, detail: "reachable"})
	}

	allOK := printChecks(checks)
	if !allOK {
		return fmt.Errorf("diagnostics found failures")
	}
	return nil
}

func printChecks(checks []checkResult) bool {
	allOK := true
	for _, c := range checks {
		status := "OK"
		if !c.ok {
			status = "FAIL"
			allOK = false
		}
		fmt.Fprintf(os.Stdout, "[%-4s] %-28s %s\n", status, c.label, c.detail)
	}
	return allOK
}
