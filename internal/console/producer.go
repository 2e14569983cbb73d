// Package console implements the operator-facing flag producer and result
// consumer: creating supervisor-control and job task flags in the worker
// inbox, then reconciling published results back into job state.
package console

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/RaneyMD/cornerstone-archive/internal/audit"
	"github.com/RaneyMD/cornerstone-archive/internal/flagfile"
	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/store"
	"github.com/RaneyMD/cornerstone-archive/internal/taskid"
)

// FlagProducer creates flags in the worker inbox and the corresponding
// job_t tracking row, in one logical operation.
type FlagProducer struct {
	Layout *nas.Layout
	Store  *store.Store
	Audit  *audit.Log
	Logger zerolog.Logger
}

// CreatedFlag describes a successfully produced flag.
type CreatedFlag struct {
	JobID    int64
	TaskID   string
	FlagPath string
}

// CreateSupervisorFlag writes a supervisor-control flag for worker_id and
// records a queued supervisor_control job row plus a CREATE_FLAG audit entry.
func (p *FlagProducer) CreateSupervisorFlag(ctx context.Context, handler, workerID string, params map[string]any, label string) (CreatedFlag, error) {
	if !flagfile.SupervisorHandlers[handler] {
		return CreatedFlag{}, fmt.Errorf("console: %q is not a supervisor-control handler", handler)
	}
	if err := flagfile.ValidateLabel(label); err != nil {
		return CreatedFlag{}, err
	}
	if workerID == "" {
		return CreatedFlag{}, fmt.Errorf("console: worker id is required")
	}

	taskID, err := taskid.Generate(taskid.Task)
	if err != nil {
		return CreatedFlag{}, fmt.Errorf("console: generate task id: %w", err)
	}

	targetRef := fmt.Sprintf("%s:%s", handler, workerID)
	jobID, err := p.Store.InsertJob(ctx, taskID, "supervisor_control", targetRef, label, flagfile.NowUTC())
	if err != nil {
		return CreatedFlag{}, fmt.Errorf("console: insert job row: %w", err)
	}

	p.auditCreate(ctx, "supervisor_control", jobID, map[string]any{
		"handler": handler, "worker_id": workerID, "label": label, "params": params, "task_id": taskID,
	})

	flag := flagfile.Flag{
		TaskID:    taskID,
		Handler:   handler,
		WorkerID:  workerID,
		Label:     label,
		Params:    params,
		CreatedAt: flagfile.NowUTC(),
	}
	data, err := flagfile.EncodeFlag(flag)
	if err != nil {
		return CreatedFlag{}, fmt.Errorf("console: encode flag: %w", err)
	}

	flagPath := filepath.Join(p.Layout.WorkerInbox(), flagfile.SupervisorFlagFilename(handler, workerID, taskID))
	if err := flagfile.WriteAtomic(flagPath, data); err != nil {
		return CreatedFlag{}, fmt.Errorf("console: write flag file: %w", err)
	}

	return CreatedFlag{JobID: jobID, TaskID: taskID, FlagPath: flagPath}, nil
}

// CreateJobFlag writes a watcher job flag and records a queued job row plus
// a CREATE_FLAG audit entry.
func (p *FlagProducer) CreateJobFlag(ctx context.Context, handler string, params map[string]any, label string) (CreatedFlag, error) {
	if !flagfile.JobHandlers[handler] {
		return CreatedFlag{}, fmt.Errorf("console: %q is not a registered job handler", handler)
	}
	if err := flagfile.ValidateLabel(label); err != nil {
		return CreatedFlag{}, err
	}
	if len(params) == 0 {
		return CreatedFlag{}, fmt.Errorf("console: params are required")
	}

	taskID, err := taskid.Generate(taskid.Job)
	if err != nil {
		return CreatedFlag{}, fmt.Errorf("console: generate task id: %w", err)
	}

	targetRef, err := flagfile.SummarizeParams(params)
	if err != nil {
		return CreatedFlag{}, fmt.Errorf("console: summarize params: %w", err)
	}

	jobID, err := p.Store.InsertJob(ctx, taskID, handler, targetRef, label, flagfile.NowUTC())
	if err != nil {
		return CreatedFlag{}, fmt.Errorf("console: insert job row: %w", err)
	}

	p.auditCreate(ctx, "job_task", jobID, map[string]any{
		"handler": handler, "label": label, "params": params, "task_id": taskID,
	})

	flag := flagfile.Flag{
		TaskID:    taskID,
		Handler:   handler,
		Label:     label,
		Params:    params,
		CreatedAt: flagfile.NowUTC(),
	}
	data, err := flagfile.EncodeFlag(flag)
	if err != nil {
		return CreatedFlag{}, fmt.Errorf("console: encode flag: %w", err)
	}

	flagPath := filepath.Join(p.Layout.WorkerInbox(), flagfile.JobFlagFilename(handler, taskID))
	if err := flagfile.WriteAtomic(flagPath, data); err != nil {
		return CreatedFlag{}, fmt.Errorf("console: write flag file: %w", err)
	}

	return CreatedFlag{JobID: jobID, TaskID: taskID, FlagPath: flagPath}, nil
}

func (p *FlagProducer) auditCreate(ctx context.Context, targetType string, jobID int64, details map[string]any) {
	now := flagfile.NowUTC()
	targetID := fmt.Sprintf("%d", jobID)
	if err := p.Store.InsertAudit(ctx, "console", "CREATE_FLAG", targetType, targetID, details, now); err != nil {
		p.Logger.Error().Err(err).Msg("insert audit row")
	}
	if p.Audit != nil {
		detailsJSON, _ := flagfile.SummarizeParams(details)
		if err := p.Audit.Record(audit.Entry{
			Actor:       "console",
			Action:      "CREATE_FLAG",
			TargetType:  targetType,
			TargetID:    targetID,
			DetailsJSON: detailsJSON,
		}); err != nil {
			p.Logger.Error().Err(err).Msg("append audit mirror")
		}
	}
}
