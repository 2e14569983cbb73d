package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"

	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
)

// defaultHeartbeatMaxAge mirrors the watcher's default heartbeat gate: a
// heartbeat older than this is considered stale.
const defaultHeartbeatMaxAge = 300 * time.Second

// diagnosticsReport is the JSON shape written into the worker outbox so the
// console can retrieve it, per SPEC_FULL §3's diagnostics report shape.
type diagnosticsReport struct {
	Timestamp    string           `json:"timestamp"`
	WorkerID     string           `json:"worker_id"`
	Label        string           `json:"label,omitempty"`
	Process      processReport    `json:"process"`
	Heartbeat    map[string]any   `json:"heartbeat"`
	DB           dbReport         `json:"db"`
	Disk         diskReport       `json:"disk"`
	PendingFlags []string         `json:"pending_flags"`
	RecentAudit  []map[string]any `json:"recent_audit"`
}

type processReport struct {
	Running bool `json:"running"`
	Healthy bool `json:"healthy"`
	PID     int  `json:"pid,omitempty"`
}

type dbReport struct {
	Now      string          `json:"now"`
	Database string          `json:"database"`
	Tables   map[string]bool `json:"tables"`
}

type diskReport struct {
	Path       string `json:"path"`
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
	Total      string `json:"total_human"`
	Free       string `json:"free_human"`
}

func diagnosticsHandler(ctx context.Context, hc *HandlerContext, flag flagfile.Flag) HandlerResult {
	if err := flagfile.ValidateLabel(flag.Label); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}
	}

	now := time.Now().UTC()
	state, pid, alive := checkWatcherHealth(hc.Layout, hc.WorkerID, defaultHeartbeatMaxAge)

	proc := processReport{Running: alive, Healthy: state == StateRunning, PID: pid}

	dbNow, dbName, tables := probeDB(ctx, hc)

	total, free, err := diskUsage(hc.Layout.Root)
	disk := diskReport{Path: hc.Layout.Root}
	if err == nil {
		disk.TotalBytes, disk.FreeBytes = total, free
		disk.Total, disk.Free = humanize.Bytes(total), humanize.Bytes(free)
	}

	pending := listPendingFlags(hc.Layout.WorkerInbox())

	var recent []map[string]any
	if rows, err := hc.Store.FetchAll(ctx, `SELECT * FROM audit_log_t ORDER BY id DESC LIMIT 10`); err == nil {
		for _, r := range rows {
			recent = append(recent, map[string]any(r))
		}
	}

	report := diagnosticsReport{
		Timestamp:    now.Format("2006-01-02T15:04:05.000Z"),
		WorkerID:     hc.WorkerID,
		Label:        flag.Label,
		Process:      proc,
		Heartbeat:    map[string]any{"state": string(state)},
		DB:           dbReport{Now: dbNow, Database: dbName, Tables: tables},
		Disk:         disk,
		PendingFlags: pending,
		RecentAudit:  recent,
	}

	data, err := json.Marshal(report)
	if err != nil {
		return HandlerResult{Success: false, Message: "failed to encode diagnostics report: " + err.Error()}
	}
	reportPath := filepath.Join(hc.Layout.WorkerOutbox(), "supervisor_diagnostics_"+hc.WorkerID+"_"+flag.TaskID+".json")
	if err := flagfile.WriteAtomic(reportPath, data); err != nil {
		return HandlerResult{Success: false, Message: "failed to write diagnostics report: " + err.Error()}
	}

	auditRecord(ctx, hc, "DIAGNOSTICS", map[string]any{"report_path": reportPath, "label": flag.Label})
	return HandlerResult{Success: true, Message: "diagnostics report written", Details: map[string]any{"report_path": reportPath}}
}

func probeDB(ctx context.Context, hc *HandlerContext) (now, dbName string, tables map[string]bool) {
	tables = map[string]bool{}
	row, err := hc.Store.FetchOne(ctx, `SELECT datetime('now') AS now`)
	if err == nil && row != nil {
		now = stringOf(row["now"])
	}
	dbName = filepath.Base(hc.Layout.Root)

	for _, table := range []string{"jobs_t", "workers_t", "supervisors_t", "audit_log_t"} {
		_, err := hc.Store.FetchOne(ctx, `SELECT COUNT(*) AS count FROM `+table)
		tables[table] = err == nil
	}
	return now, dbName, tables
}

func listPendingFlags(inbox string) []string {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".flag") {
			names = append(names, e.Name())
		}
	}
	return names
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func verifyDB(ctx context.Context, hc *HandlerContext, flag flagfile.Flag) HandlerResult {
	if err := flagfile.ValidateLabel(flag.Label); err != nil {
		return HandlerResult{Success: false, Message: err.Error()}
	}

	tests := map[string]any{}
	allPassed := true

	if err := hc.Store.DB().PingContext(ctx); err != nil {
		tests["connection"] = map[string]any{"passed": false, "error": err.Error()}
		allPassed = false
	} else {
		tests["connection"] = map[string]any{"passed": true}
	}

	now, dbName, tableResults := probeDB(ctx, hc)
	tests["query"] = map[string]any{"passed": now != "", "db_time": now, "db_name": dbName}
	if now == "" {
		allPassed = false
	}

	tableReport := map[string]any{}
	for table, ok := range tableResults {
		tableReport[table] = map[string]any{"accessible": ok}
		if !ok {
			allPassed = false
		}
	}
	tests["tables"] = tableReport

	// SQLite has no session timezone concept — the store always stores and
	// compares UTC ISO-8601 strings, so this check is trivially satisfied.
	tests["timezone"] = map[string]any{"correct": true, "value": "UTC"}

	diagDir := hc.Layout.Diagnostics()
	os.MkdirAll(diagDir, 0750)
	reportPath := filepath.Join(diagDir, "db_verification_"+hc.WorkerID+"_"+time.Now().UTC().Format("20060102_150405")+".json")
	data, err := json.Marshal(map[string]any{
		"timestamp": flagfile.NowUTC(),
		"worker_id": hc.WorkerID,
		"label":     flag.Label,
		"tests":     tests,
	})
	if err == nil {
		flagfile.WriteAtomic(reportPath, data)
	}

	auditRecord(ctx, hc, "VERIFY_DB", map[string]any{"report_path": reportPath, "success": allPassed})
	return HandlerResult{Success: allPassed, Message: "database verification complete", Details: map[string]any{"report_path": reportPath}}
}
