package backfill

import (
	"context"
	"time"

	"github.com/openshelf/openshelf/internal/books"
	"github.com/openshelf/openshelf/internal/db"
)

// TaskQueue defines the task store operations the coordinator depends on
type TaskQueue interface {
	InsertTask(ctx context.Context, task *db.Task) error
	FetchQueuedTasks(ctx context.Context, limit int) ([]*db.Task, error)
	MarkCompleted(ctx context.Context, taskID string) error
	RecordFailure(ctx context.Context, taskID, errMsg string) (bool, error)
	Requeue(ctx context.Context, taskID string) error
	GetQueueStats(ctx context.Context, window time.Duration) (*db.QueueStats, error)
	RetryFailedTasks(ctx context.Context) (int64, error)
	ReclaimStaleTasks(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Upserter persists a mapped book aggregate idempotently
type Upserter interface {
	Upsert(ctx context.Context, book *books.Book) (*books.UpsertResult, error)
}

// Alerter receives operator notifications for tasks that exhausted their
// attempt budget. Implementations must tolerate being called from the
// processing loop and never block it for long.
type Alerter interface {
	TaskExhausted(ctx context.Context, task *db.Task, errMsg string)
}
