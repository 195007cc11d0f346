package backfill

import (
	"time"

	"github.com/google/uuid"
	"github.com/openshelf/openshelf/internal/db"
)

const (
	// DefaultPriority is assigned when the caller does not care about ordering.
	// 1 is the most urgent, 10 the least; values above the range are accepted
	// and ordered literally by the dequeue sort.
	DefaultPriority = 5

	// DefaultBatchSize bounds how many tasks one scheduling tick processes
	DefaultBatchSize = 10

	// DefaultStatsWindow is the trailing window for queue stats
	DefaultStatsWindow = time.Hour

	// StaleTaskTimeout is how long a task may sit in processing before the
	// reclaim sweep assumes its coordinator died
	StaleTaskTimeout = 3 * time.Minute
)

// DedupeKey derives the deterministic key enforcing at-most-one task per
// (source, sourceID) submission
func DedupeKey(source, sourceID string) string {
	return source + "|" + sourceID
}

// NewTask builds a queued task ready for insertion. A zero or negative
// priority means the caller did not choose one and falls back to the default.
func NewTask(source, sourceID string, priority int) *db.Task {
	if priority < 1 {
		priority = DefaultPriority
	}
	return &db.Task{
		ID:          uuid.New().String(),
		Source:      source,
		SourceID:    sourceID,
		DedupeKey:   DedupeKey(source, sourceID),
		Priority:    priority,
		Status:      db.TaskStatusQueued,
		MaxAttempts: db.DefaultMaxAttempts,
	}
}
