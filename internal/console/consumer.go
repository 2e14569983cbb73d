package console

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/RaneyMD/cornerstone-archive/internal/audit"
	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/store"
)

// ResultConsumer reconciles published result files in the worker outbox
// against job_t state, then archives or deletes the processed file.
type ResultConsumer struct {
	Layout  *nas.Layout
	Store   *store.Store
	Audit   *audit.Log
	Logger  zerolog.Logger
	Cleanup bool   // delete (or archive) a result file once processed
	Archive string // if non-empty and Cleanup is set, move here instead of deleting
}

// ProcessedResult summarizes the outcome of reconciling one result file.
type ProcessedResult struct {
	ResultFile string
	TaskID     string // job results only
	WorkerID   string // supervisor results only
	Actions    []string
	JobIDs     []int64
	Success    bool
	Error      string
}

// ProcessPendingResults walks every *.json file in the worker outbox in
// sorted (chronological) order and reconciles each against job state.
func (c *ResultConsumer) ProcessPendingResults(ctx context.Context) ([]ProcessedResult, error) {
	entries, err := os.ReadDir(c.Layout.WorkerOutbox())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []ProcessedResult
	for _, name := range names {
		path := filepath.Join(c.Layout.WorkerOutbox(), name)
		pr, ok := c.processResultFile(ctx, path)
		if ok {
			out = append(out, pr)
		}
	}
	return out, nil
}

func (c *ResultConsumer) processResultFile(ctx context.Context, path string) (ProcessedResult, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.Logger.Error().Err(err).Str("file", path).Msg("read result file")
		return ProcessedResult{}, false
	}
	result, err := flagfile.DecodeResult(data)
	if err != nil {
		c.Logger.Error().Err(err).Str("file", path).Msg("parse result file, skipping")
		return ProcessedResult{}, false
	}

	var pr ProcessedResult
	switch {
	case result.SupervisorID != "" && result.WorkerID != "":
		pr = c.processSupervisorResult(ctx, path, result)
	case result.TaskID != "":
		pr = c.processJobResult(ctx, path, result)
	default:
		c.Logger.Warn().Str("file", path).Msg("result file matches neither job nor supervisor shape, skipping")
		return ProcessedResult{}, false
	}

	if c.Cleanup {
		c.cleanupResultFile(path)
	}
	return pr, true
}

func (c *ResultConsumer) processJobResult(ctx context.Context, path string, result flagfile.Result) ProcessedResult {
	jobID, err := c.Store.JobIDByTaskID(ctx, result.TaskID)
	if err != nil {
		c.Logger.Error().Err(err).Str("task_id", result.TaskID).Msg("look up job by task id")
	}
	errMsg := extractErrorMessage(result)

	if jobID != 0 {
		if err := c.Store.UpdateJobResult(ctx, jobID, result.Success, result.CompletedAt, path, errMsg); err != nil {
			c.Logger.Error().Err(err).Int64("job_id", jobID).Msg("update job result")
		}
		c.auditLog(ctx, "JOB_COMPLETED", "job_result", fmt.Sprintf("%d", jobID), map[string]any{
			"success": result.Success, "task_id": result.TaskID, "result_file": path, "error": errMsg,
		})
	}

	target := "unknown"
	if jobID != 0 {
		target = fmt.Sprintf("%d", jobID)
	}
	c.auditLog(ctx, "PROCESS_RESULT", "job_result", target, map[string]any{
		"task_id": result.TaskID, "success": result.Success, "result_file": path, "error": errMsg,
	})

	var jobIDs []int64
	if jobID != 0 {
		jobIDs = append(jobIDs, jobID)
	}
	return ProcessedResult{ResultFile: path, TaskID: result.TaskID, Success: result.Success, Error: errMsg, JobIDs: jobIDs}
}

func (c *ResultConsumer) processSupervisorResult(ctx context.Context, path string, result flagfile.Result) ProcessedResult {
	errMsg := result.Error
	var jobIDs []int64

	for _, action := range result.Actions {
		handler := strings.SplitN(action, " ", 2)[0]
		targetRef := fmt.Sprintf("%s:%s", handler, result.WorkerID)
		jobID, err := c.Store.FindOpenSupervisorJob(ctx, targetRef)
		if err != nil || jobID == 0 {
			continue
		}
		if err := c.Store.UpdateJobResult(ctx, jobID, result.Success, result.CompletedAt, path, errMsg); err != nil {
			c.Logger.Error().Err(err).Int64("job_id", jobID).Msg("update supervisor job result")
			continue
		}
		jobIDs = append(jobIDs, jobID)
		c.auditLog(ctx, "JOB_COMPLETED", "supervisor_control", fmt.Sprintf("%d", jobID), map[string]any{
			"success": result.Success, "handler": handler, "worker_id": result.WorkerID, "result_file": path, "error": errMsg,
		})
	}

	target := "unknown"
	if len(jobIDs) > 0 {
		strs := make([]string, len(jobIDs))
		for i, id := range jobIDs {
			strs[i] = fmt.Sprintf("%d", id)
		}
		target = strings.Join(strs, ",")
	}
	c.auditLog(ctx, "PROCESS_RESULT", "supervisor_control", target, map[string]any{
		"worker_id": result.WorkerID, "actions": result.Actions, "success": result.Success, "result_file": path, "error": errMsg,
	})

	return ProcessedResult{
		ResultFile: path, WorkerID: result.WorkerID, Actions: result.Actions,
		Success: result.Success, Error: errMsg, JobIDs: jobIDs,
	}
}

func (c *ResultConsumer) cleanupResultFile(path string) {
	if c.Archive != "" {
		if err := os.MkdirAll(c.Archive, 0750); err != nil {
			c.Logger.Error().Err(err).Msg("create archive dir")
			return
		}
		dst := filepath.Join(c.Archive, filepath.Base(path))
		if err := nas.MoveFile(path, dst); err != nil {
			c.Logger.Error().Err(err).Str("file", path).Msg("archive result file")
		}
		return
	}
	if err := os.Remove(path); err != nil {
		c.Logger.Error().Err(err).Str("file", path).Msg("delete result file")
	}
}

func (c *ResultConsumer) auditLog(ctx context.Context, action, targetType, targetID string, details map[string]any) {
	now := flagfile.NowUTC()
	if err := c.Store.InsertAudit(ctx, "result_processor", action, targetType, targetID, details, now); err != nil {
		c.Logger.Error().Err(err).Str("action", action).Msg("insert audit row")
	}
	if c.Audit != nil {
		detailsJSON, _ := flagfile.SummarizeParams(details)
		if err := c.Audit.Record(audit.Entry{
			Actor:       "result_processor",
			Action:      action,
			TargetType:  targetType,
			TargetID:    targetID,
			DetailsJSON: detailsJSON,
		}); err != nil {
			c.Logger.Error().Err(err).Str("action", action).Msg("append audit mirror")
		}
	}
}

// extractErrorMessage mirrors the original's fallback order: an explicit
// Error field, else an "error" key nested in Result, else none on success.
func extractErrorMessage(result flagfile.Result) string {
	if result.Success {
		return ""
	}
	if result.Error != "" {
		return result.Error
	}
	if result.Result != nil {
		if e, ok := result.Result["error"]; ok {
			if s, ok := e.(string); ok {
				return s
			}
		}
	}
	return ""
}
