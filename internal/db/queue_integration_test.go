//go:build integration

package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openshelf/openshelf/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupIntegrationQueue connects to the test database configured in .env.test
// and returns a queue over it. Skips when no database is configured.
func setupIntegrationQueue(t *testing.T) (*DB, *TaskQueue) {
	t.Helper()

	testutil.LoadTestEnv(t)

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	database, err := New(&Config{DatabaseURL: databaseURL})
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { database.Close() })

	return database, NewTaskQueue(database)
}

// newIntegrationTask builds a task with a unique source id so runs never
// collide on the dedupe key
func newIntegrationTask(priority, maxAttempts int) *Task {
	sourceID := uuid.New().String()
	return &Task{
		ID:          uuid.New().String(),
		Source:      "openlibrary",
		SourceID:    sourceID,
		DedupeKey:   "openlibrary|" + sourceID,
		Priority:    priority,
		MaxAttempts: maxAttempts,
	}
}

func TestTaskQueueIntegrationDedupe(t *testing.T) {
	database, q := setupIntegrationQueue(t)
	ctx := context.Background()

	task := newIntegrationTask(5, 3)
	require.NoError(t, q.InsertTask(ctx, task))

	// Second submission with the same dedupe key is a silent no-op
	duplicate := *task
	duplicate.ID = uuid.New().String()
	require.NoError(t, q.InsertTask(ctx, &duplicate))

	var count int
	err := database.GetDB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM backfill_tasks WHERE dedupe_key = $1
	`, task.DedupeKey).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "duplicate submission must not create a second row")

	// The surviving row keeps the original id
	var storedID string
	err = database.GetDB().QueryRowContext(ctx, `
		SELECT id FROM backfill_tasks WHERE dedupe_key = $1
	`, task.DedupeKey).Scan(&storedID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, storedID)
}

func TestTaskQueueIntegrationLifecycle(t *testing.T) {
	database, q := setupIntegrationQueue(t)
	ctx := context.Background()

	task := newIntegrationTask(1, 2)
	require.NoError(t, q.InsertTask(ctx, task))

	// First failure burns an attempt and re-queues
	exhausted, err := q.RecordFailure(ctx, task.ID, "fetch failed: timeout")
	require.NoError(t, err)
	assert.False(t, exhausted)

	// Second failure exhausts the budget
	exhausted, err = q.RecordFailure(ctx, task.ID, "fetch failed: timeout")
	require.NoError(t, err)
	assert.True(t, exhausted)

	var status string
	var attempts int
	err = database.GetDB().QueryRowContext(ctx, `
		SELECT status, attempts FROM backfill_tasks WHERE id = $1
	`, task.ID).Scan(&status, &attempts)
	require.NoError(t, err)
	assert.Equal(t, string(TaskStatusFailed), status)
	assert.Equal(t, 2, attempts)

	// Operator retry resets the budget and clears the error
	affected, err := q.RetryFailedTasks(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, affected, int64(1))

	var errMsg *string
	err = database.GetDB().QueryRowContext(ctx, `
		SELECT status, attempts, error_message FROM backfill_tasks WHERE id = $1
	`, task.ID).Scan(&status, &attempts, &errMsg)
	require.NoError(t, err)
	assert.Equal(t, string(TaskStatusQueued), status)
	assert.Equal(t, 0, attempts)
	assert.Nil(t, errMsg)

	require.NoError(t, q.MarkCompleted(ctx, task.ID))
	err = database.GetDB().QueryRowContext(ctx, `
		SELECT status FROM backfill_tasks WHERE id = $1
	`, task.ID).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, string(TaskStatusCompleted), status)
}

func TestTaskQueueIntegrationClaimOrdering(t *testing.T) {
	database, q := setupIntegrationQueue(t)
	ctx := context.Background()

	// Urgent task inserted after a less urgent one must still be claimed first
	older := newIntegrationTask(8, 3)
	require.NoError(t, q.InsertTask(ctx, older))
	time.Sleep(10 * time.Millisecond)
	urgent := newIntegrationTask(1, 3)
	require.NoError(t, q.InsertTask(ctx, urgent))

	tasks, err := q.FetchQueuedTasks(ctx, 100)
	require.NoError(t, err)

	positions := make(map[string]int)
	for i, claimed := range tasks {
		positions[claimed.ID] = i
		assert.Equal(t, TaskStatusProcessing, claimed.Status)
	}
	urgentPos, ok := positions[urgent.ID]
	require.True(t, ok, "urgent task should be claimed")
	olderPos, ok := positions[older.ID]
	require.True(t, ok, "older task should be claimed")
	assert.Less(t, urgentPos, olderPos, "lower priority number must be claimed first")

	// Claimed rows are invisible to a second fetch
	again, err := q.FetchQueuedTasks(ctx, 100)
	require.NoError(t, err)
	for _, claimed := range again {
		assert.NotEqual(t, urgent.ID, claimed.ID)
		assert.NotEqual(t, older.ID, claimed.ID)
	}

	// Flip them back so repeated runs keep the table tidy
	_, err = database.GetDB().ExecContext(ctx, `
		UPDATE backfill_tasks SET status = 'completed', completed_at = NOW() WHERE id IN ($1, $2)
	`, urgent.ID, older.ID)
	require.NoError(t, err)
}
