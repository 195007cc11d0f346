package backfill

import (
	"testing"

	"github.com/openshelf/openshelf/internal/db"
	"github.com/stretchr/testify/assert"
)

func TestDedupeKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "openlibrary|OL1M", DedupeKey("openlibrary", "OL1M"))

	// The key is deterministic: same inputs, same key
	assert.Equal(t, DedupeKey("googlebooks", "abc"), DedupeKey("googlebooks", "abc"))
}

func TestNewTask(t *testing.T) {
	t.Parallel()

	task := NewTask("openlibrary", "OL1M", 2)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "openlibrary", task.Source)
	assert.Equal(t, "OL1M", task.SourceID)
	assert.Equal(t, "openlibrary|OL1M", task.DedupeKey)
	assert.Equal(t, 2, task.Priority)
	assert.Equal(t, db.TaskStatusQueued, task.Status)
	assert.Equal(t, 0, task.Attempts)
	assert.Equal(t, db.DefaultMaxAttempts, task.MaxAttempts)
}

func TestNewTaskDefaultPriority(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultPriority, NewTask("openlibrary", "OL1M", 0).Priority)
	assert.Equal(t, DefaultPriority, NewTask("openlibrary", "OL1M", -3).Priority)
}

func TestNewTaskUniqueIDs(t *testing.T) {
	t.Parallel()

	a := NewTask("openlibrary", "OL1M", 0)
	b := NewTask("openlibrary", "OL1M", 0)

	// Same dedupe key, distinct row IDs; the store decides which survives
	assert.Equal(t, a.DedupeKey, b.DedupeKey)
	assert.NotEqual(t, a.ID, b.ID)
}
