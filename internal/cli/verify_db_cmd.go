package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(verifyDBCmd)
}

var verifyDBCmd = &cobra.Command{
	Use:   "verify-db",
	Short: "Check store connectivity and table accessibility on demand",
	RunE:  runVerifyDB,
}

func runVerifyDB(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("verify-db")
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	if err := rt.store.DB().PingContext(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	allOK := true
	for _, table := range []string{"jobs_t", "workers_t", "supervisors_t", "audit_log_t"} {
		_, err := rt.store.FetchOne(ctx, "SELECT COUNT(*) AS count FROM "+table)
		ok := err == nil
		if !ok {
			allOK = false
		}
		fmt.Printf("table %-15s accessible=%v\n", table, ok)
	}

	if !allOK {
		return fmt.Errorf("one or more tables were not accessible")
	}
	fmt.Println("database verification passed")
	return nil
}
