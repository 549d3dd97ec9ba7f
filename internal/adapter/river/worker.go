package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// EventWorker processes group event jobs from the River queue.
// It records them in the structured log; consumers that need more
// (search indexing, cache invalidation) register their own workers.
type EventWorker struct {
	river.WorkerDefaults[GroupEventJobArgs]
}

// Work processes a single group event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[GroupEventJobArgs]) error {
	attrs := []any{
		"operation", job.Args.Operation,
		"group_id", job.Args.GroupID,
		"parent_id", job.Args.ParentID,
		"label", job.Args.Label,
		"job_id", job.ID,
		"attempt", job.Attempt,
	}
	if job.Args.Operation == "move" {
		attrs = append(attrs,
			"origin_parent_id", job.Args.OriginParentID,
			"target_parent_id", job.Args.TargetParentID,
		)
	}

	slog.InfoContext(ctx, "processing group event", attrs...)
	return nil
}
