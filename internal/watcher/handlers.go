package watcher

import (
	"context"

	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/store"
)

// Task is the decoded flag payload handed to a job handler, plus its
// resolved job_id from the queued row the producer inserted.
type Task struct {
	JobID   int64
	TaskID  string
	Handler string
	Params  map[string]any
}

// Handler performs the domain-specific work for one job flag. Its result
// map becomes the result file's "result" object on success; a returned
// error becomes the failure path (an *.error.json result and a failed job).
//
// The domain logic itself (remote-archive fetch, metadata parsing, etc.) is
// an external collaborator out of scope for this core — handlers registered
// here are thin stubs whose only contract obligation is the signature.
type Handler func(ctx context.Context, task Task, layout *nas.Layout, st *store.Store) (map[string]any, error)

// Registry maps handler names to their implementations.
type Registry map[string]Handler

// DefaultRegistry wires the one job handler named in the fixed registry:
// acquire_source. It acknowledges the task without performing any transfer —
// the actual source-acquisition logic is a collaborator specified only by
// its interface (see flagfile.JobHandlers).

func DefaultRegistry() Registry {
	return Registry{
		"acquire_source": acquireSource,
	}
}

func acquireSource(_ context.Context, task Task, _ *nas.Layout, _ *store.Store) (map[string]any, error) {
	return map[string]any{
		"acknowledged": true,
		"task_id":      task.TaskID,
	}, nil
}
