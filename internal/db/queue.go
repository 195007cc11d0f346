package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// TaskStatus represents the current status of a backfill task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// DefaultMaxAttempts is the attempt budget assigned to new tasks
const DefaultMaxAttempts = 3

// Task represents a backfill task row
type Task struct {
	ID           string
	Source       string
	SourceID     string
	DedupeKey    string
	Priority     int
	Status       TaskStatus
	Attempts     int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  time.Time
}

// QueueStats is a point-in-time snapshot of task counts per status
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// TaskQueue is the PostgreSQL-backed backfill task store
type TaskQueue struct {
	db *sql.DB
}

// NewTaskQueue creates a task queue over the given database connection
func NewTaskQueue(database *DB) *TaskQueue {
	return &TaskQueue{db: database.GetDB()}
}

// NewTaskQueueFromSQL creates a task queue directly from a sql.DB handle
func NewTaskQueueFromSQL(client *sql.DB) *TaskQueue {
	return &TaskQueue{db: client}
}

// Execute runs a database operation in a transaction
func (q *TaskQueue) Execute(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// InsertTask inserts a task unless one with the same dedupe key already
// exists. The duplicate case is a silent no-op: the existing row keeps its
// status and attempt count, even when it has already completed or failed.
func (q *TaskQueue) InsertTask(ctx context.Context, task *Task) error {
	span := sentry.StartSpan(ctx, "db.insert_task")
	defer span.Finish()

	result, err := q.db.ExecContext(ctx, `
		INSERT INTO backfill_tasks (
			id, source, source_id, dedupe_key, priority, status,
			attempts, max_attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (dedupe_key) DO NOTHING
	`, task.ID, task.Source, task.SourceID, task.DedupeKey, task.Priority,
		TaskStatusQueued, 0, task.MaxAttempts)

	if err != nil {
		span.SetTag("error", "true")
		return fmt.Errorf("failed to insert task: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		log.Debug().
			Str("dedupe_key", task.DedupeKey).
			Msg("Task already enqueued, skipping duplicate")
	}

	return nil
}

// FetchQueuedTasks claims up to limit queued tasks that still have attempt
// budget, ordered by priority (lower number first) then age. Claimed rows are
// flipped to processing inside the same transaction; FOR UPDATE SKIP LOCKED
// keeps concurrent coordinator instances from claiming the same row.
func (q *TaskQueue) FetchQueuedTasks(ctx context.Context, limit int) ([]*Task, error) {
	span := sentry.StartSpan(ctx, "db.fetch_queued_tasks")
	defer span.Finish()

	var tasks []*Task

	err := q.Execute(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, source, source_id, dedupe_key, priority,
				attempts, max_attempts, created_at
			FROM backfill_tasks
			WHERE status = $1 AND attempts < max_attempts
			ORDER BY priority ASC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, TaskStatusQueued, limit)
		if err != nil {
			return fmt.Errorf("failed to query queued tasks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var task Task
			if err := rows.Scan(
				&task.ID, &task.Source, &task.SourceID, &task.DedupeKey,
				&task.Priority, &task.Attempts, &task.MaxAttempts, &task.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to scan task: %w", err)
			}
			tasks = append(tasks, &task)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now()
		for _, task := range tasks {
			if _, err := tx.ExecContext(ctx, `
				UPDATE backfill_tasks
				SET status = $1, updated_at = $2
				WHERE id = $3
			`, TaskStatusProcessing, now, task.ID); err != nil {
				return fmt.Errorf("failed to claim task: %w", err)
			}
			task.Status = TaskStatusProcessing
			task.UpdatedAt = now
		}

		return nil
	})

	if err != nil {
		span.SetTag("error", "true")
		return nil, err
	}

	return tasks, nil
}

// MarkCompleted transitions a task to its terminal completed state
func (q *TaskQueue) MarkCompleted(ctx context.Context, taskID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE backfill_tasks
		SET status = $1, completed_at = NOW(), updated_at = NOW(), error_message = NULL
		WHERE id = $2
	`, TaskStatusCompleted, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}
	return nil
}

// RecordFailure burns one attempt and records the error message. The next
// status is computed in SQL so concurrent instances cannot double-count: the
// task goes back to queued while budget remains, otherwise to failed.
// Returns true when the task reached its terminal failed state.
func (q *TaskQueue) RecordFailure(ctx context.Context, taskID, errMsg string) (bool, error) {
	var status string
	err := q.db.QueryRowContext(ctx, `
		UPDATE backfill_tasks
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'queued' END,
			error_message = $1,
			updated_at = NOW(),
			completed_at = CASE WHEN attempts + 1 >= max_attempts THEN NOW() ELSE completed_at END
		WHERE id = $2
		RETURNING status
	`, errMsg, taskID).Scan(&status)
	if err != nil {
		return false, fmt.Errorf("failed to record task failure: %w", err)
	}

	return status == string(TaskStatusFailed), nil
}

// Requeue returns a task to the queue without touching its attempt count.
// Used when a capacity gate rejects the attempt: overload is not the task's
// fault and must not burn its retry budget.
func (q *TaskQueue) Requeue(ctx context.Context, taskID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE backfill_tasks
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, TaskStatusQueued, taskID)
	if err != nil {
		return fmt.Errorf("failed to requeue task: %w", err)
	}
	return nil
}

// GetQueueStats returns per-status task counts within the trailing window
func (q *TaskQueue) GetQueueStats(ctx context.Context, window time.Duration) (*QueueStats, error) {
	span := sentry.StartSpan(ctx, "db.queue_stats")
	defer span.Finish()

	stats := &QueueStats{}
	rows, err := q.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM backfill_tasks
		WHERE created_at > NOW() - $1::interval
		GROUP BY status
	`, fmt.Sprintf("%d seconds", int(window.Seconds())))
	if err != nil {
		span.SetTag("error", "true")
		return nil, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		switch TaskStatus(status) {
		case TaskStatusQueued:
			stats.Queued = count
		case TaskStatusProcessing:
			stats.Processing = count
		case TaskStatusCompleted:
			stats.Completed = count
		case TaskStatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// RetryFailedTasks resets every failed task back to queued with a fresh
// attempt budget. Operator recovery after a systemic outage.
func (q *TaskQueue) RetryFailedTasks(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		UPDATE backfill_tasks
		SET status = $1, attempts = 0, error_message = NULL,
			completed_at = NULL, updated_at = NOW()
		WHERE status = $2
	`, TaskStatusQueued, TaskStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to retry failed tasks: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		log.Info().Int64("tasks", affected).Msg("Reset failed tasks for retry")
	}
	return affected, nil
}

// ReclaimStaleTasks sweeps processing rows that have not been touched within
// the staleness window, typically left behind by a crashed coordinator. The
// orphaned attempt is counted, so exhausted tasks land in failed.
func (q *TaskQueue) ReclaimStaleTasks(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := q.db.ExecContext(ctx, `
		UPDATE backfill_tasks
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'queued' END,
			error_message = 'reclaimed: processing exceeded staleness threshold',
			updated_at = NOW(),
			completed_at = CASE WHEN attempts + 1 >= max_attempts THEN NOW() ELSE completed_at END
		WHERE status = $1 AND updated_at < $2
	`, TaskStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale tasks: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		log.Warn().Int64("tasks", affected).Msg("Reclaimed stale processing tasks")
	}
	return affected, nil
}
