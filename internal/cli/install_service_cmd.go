package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	installRole     string
	installWorkerID string
	installWrite    bool
)

func init() {
	installServiceCmd.Flags().StringVar(&installRole, "role", "watcher", "process role: watcher or supervisor")
	installServiceCmd.Flags().StringVar(&installWorkerID, "worker-id", "", "worker id the unit instantiates (required)")
	installServiceCmd.Flags().BoolVar(&installWrite, "write", false, "write the unit to /etc/systemd/system instead of stdout (requires root)")
	installServiceCmd.MarkFlagRequired("worker-id")
	rootCmd.AddCommand(installServiceCmd)
}

var installServiceCmd = &cobra.Command{
	Use:   "install-service",
	Short: "Render (or install) a systemd unit for a watcher or supervisor worker",
	RunE:  runInstallService,
}

func unitTemplate(role, workerID, configPath string) (string, error) {
	if role != "watcher" && role != "supervisor" {
		return "", fmt.Errorf("role must be watcher or supervisor, got %q", role)
	}
	return fmt.Sprintf(`[Unit]
Description=cornerstone %[1]s (%[2]s)
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=/usr/local/bin/cornerstone %[1]s --worker-id %[2]s --config %[3]s
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=read-only

[Install]
WantedBy=multi-user.target
`, role, workerID, configPath), nil
}

func runInstallService(cmd *cobra.Command, args []string) error {
	unit, err := unitTemplate(installRole, installWorkerID, configPath)
	if err != nil {
		return err
	}

	if !installWrite {
		fmt.Print(unit)
		return nil
	}

	unitPath := fmt.Sprintf("/etc/systemd/system/cornerstone-%s-%s.service", installRole, installWorkerID)
	if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	hash := sha256.Sum256([]byte(unit))
	hashPath := unitPath + ".sha256"
	if err := os.WriteFile(hashPath, []byte(hex.EncodeToString(hash[:])+"\n"), 0o600); err != nil {
		return fmt.Errorf("write unit hash: %w", err)
	}

	fmt.Printf("wrote %s\nenable with: systemctl daemon-reload && systemctl enable --now %s\n",
		unitPath, fmt.Sprintf("cornerstone-%s-%s.service", installRole, installWorkerID))
	return nil
}
