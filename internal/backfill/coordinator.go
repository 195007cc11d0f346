package backfill

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/openshelf/openshelf/internal/db"
	"github.com/openshelf/openshelf/internal/observability"
	"github.com/rs/zerolog/log"
)

// Coordinator owns the backfill pipeline: idempotent enqueueing, bounded
// batch processing, the per-task retry state machine, and capacity-aware
// backpressure. It holds no task state across cycles; the task store is the
// single source of truth, so the coordinator is stateless and restartable.
type Coordinator struct {
	queue       TaskQueue
	registry    *Registry
	upserter    Upserter
	gate        *CapacityGate
	alerter     Alerter // optional
	batchSize   int
	statsWindow time.Duration
}

// CoordinatorOption customises coordinator construction
type CoordinatorOption func(*Coordinator)

// WithBatchSize overrides the per-tick task batch bound
func WithBatchSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithStatsWindow overrides the trailing window used for queue stats
func WithStatsWindow(w time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if w > 0 {
			c.statsWindow = w
		}
	}
}

// WithAlerter wires operator notifications for exhausted tasks
func WithAlerter(a Alerter) CoordinatorOption {
	return func(c *Coordinator) { c.alerter = a }
}

// NewCoordinator creates a backfill coordinator
func NewCoordinator(queue TaskQueue, registry *Registry, upserter Upserter, gate *CapacityGate, opts ...CoordinatorOption) *Coordinator {
	if queue == nil {
		panic("task queue is required")
	}
	if registry == nil {
		panic("provider registry is required")
	}
	if upserter == nil {
		panic("upsert service is required")
	}
	if gate == nil {
		panic("capacity gate is required")
	}

	c := &Coordinator{
		queue:       queue,
		registry:    registry,
		upserter:    upserter,
		gate:        gate,
		batchSize:   DefaultBatchSize,
		statsWindow: DefaultStatsWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enqueue submits a backfill task for an external record. Fire-and-forget:
// duplicates are absorbed by the dedupe key and store failures are logged,
// never surfaced to the caller.
func (c *Coordinator) Enqueue(ctx context.Context, source, sourceID string, priority int) {
	source = strings.TrimSpace(source)
	sourceID = strings.TrimSpace(sourceID)
	if source == "" || sourceID == "" {
		log.Warn().
			Str("source", source).
			Str("source_id", sourceID).
			Msg("Ignoring enqueue with blank source or source id")
		return
	}

	task := NewTask(source, sourceID, priority)
	if err := c.queue.InsertTask(ctx, task); err != nil {
		sentry.CaptureException(err)
		log.Error().
			Err(err).
			Str("dedupe_key", task.DedupeKey).
			Msg("Failed to enqueue backfill task")
		return
	}

	log.Debug().
		Str("source", source).
		Str("source_id", sourceID).
		Int("priority", priority).
		Msg("Enqueued backfill task")
}

// ProcessQueue runs one batch cycle: pull a bounded batch in priority/age
// order and process each task sequentially. Nothing escapes this boundary;
// store failures degrade to an empty batch and panics are captured so the
// next tick runs regardless.
func (c *Coordinator) ProcessQueue(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in batch cycle")
		}
	}()

	span := sentry.StartSpan(ctx, "backfill.process_queue")
	defer span.Finish()

	tasks, err := c.queue.FetchQueuedTasks(ctx, c.batchSize)
	if err != nil {
		// Nothing to do this cycle; the next tick re-reads the store
		log.Error().Err(err).Msg("Failed to fetch queued tasks")
		return
	}
	if len(tasks) == 0 {
		return
	}

	log.Debug().Int("batch_size", len(tasks)).Msg("Processing backfill batch")
	for _, task := range tasks {
		c.processTask(ctx, task)
	}
}

// processTask runs the per-task state machine. The task arrives already
// claimed (processing); every outcome is recorded against the store before
// returning, and each step's failure is caught independently so a later step
// cannot mask an earlier error message.
func (c *Coordinator) processTask(ctx context.Context, task *db.Task) {
	ctx, span := observability.StartTaskSpan(ctx, observability.TaskSpanInfo{
		TaskID:   task.ID,
		Source:   task.Source,
		SourceID: task.SourceID,
	})
	defer span.End()
	start := time.Now()

	release, err := c.gate.Acquire()
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			// Overload, not a task failure: back to the queue with no penalty
			if reqErr := c.queue.Requeue(ctx, task.ID); reqErr != nil {
				log.Error().Err(reqErr).Str("task_id", task.ID).Msg("Failed to requeue rejected task")
			}
			log.Debug().
				Str("task_id", task.ID).
				AnErr("reason", err).
				Msg("Capacity gate rejected task, requeued without penalty")
			c.recordOutcome(ctx, task, "rejected", start)
			return
		}
		c.failTask(ctx, task, fmt.Sprintf("capacity gate error: %v", err))
		c.recordOutcome(ctx, task, "failed", start)
		return
	}
	defer release()

	prov, ok := c.registry.Lookup(task.Source)
	if !ok {
		// No fetcher or mapper exists, so retrying cannot help, but the
		// failure still consumes attempts like any other
		c.failTask(ctx, task, fmt.Sprintf("unsupported source %q", task.Source))
		c.recordOutcome(ctx, task, "failed", start)
		return
	}

	doc, err := prov.Fetcher.Fetch(ctx, task.SourceID)
	if err != nil {
		c.failTask(ctx, task, fmt.Sprintf("fetch failed: %v", err))
		c.recordOutcome(ctx, task, "failed", start)
		return
	}
	if doc == nil {
		c.failTask(ctx, task, fmt.Sprintf("no document found for %s/%s", task.Source, task.SourceID))
		c.recordOutcome(ctx, task, "failed", start)
		return
	}

	book := prov.Map(doc)
	if book == nil {
		c.failTask(ctx, task, fmt.Sprintf("document for %s/%s could not be mapped", task.Source, task.SourceID))
		c.recordOutcome(ctx, task, "failed", start)
		return
	}

	result, err := c.upserter.Upsert(ctx, book)
	if err != nil {
		c.failTask(ctx, task, fmt.Sprintf("upsert failed: %v", err))
		c.recordOutcome(ctx, task, "failed", start)
		return
	}

	if err := c.queue.MarkCompleted(ctx, task.ID); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to mark task completed")
		c.recordOutcome(ctx, task, "failed", start)
		return
	}

	log.Info().
		Str("task_id", task.ID).
		Str("source", task.Source).
		Str("source_id", task.SourceID).
		Str("book_id", result.ID).
		Str("slug", result.Slug).
		Bool("is_new", result.IsNew).
		Msg("Backfill task completed")
	c.recordOutcome(ctx, task, "completed", start)
}

// failTask burns an attempt and records the error; the store decides whether
// the task re-queues or reaches its terminal failed state
func (c *Coordinator) failTask(ctx context.Context, task *db.Task, errMsg string) {
	exhausted, err := c.queue.RecordFailure(ctx, task.ID, errMsg)
	if err != nil {
		sentry.CaptureException(err)
		log.Error().
			Err(err).
			Str("task_id", task.ID).
			Str("task_error", errMsg).
			Msg("Failed to record task failure")
		return
	}

	if exhausted {
		log.Warn().
			Str("task_id", task.ID).
			Str("source", task.Source).
			Str("source_id", task.SourceID).
			Str("error", errMsg).
			Msg("Task exhausted its attempts")
		if c.alerter != nil {
			c.alerter.TaskExhausted(ctx, task, errMsg)
		}
	} else {
		log.Debug().
			Str("task_id", task.ID).
			Str("error", errMsg).
			Msg("Task failed, requeued for retry")
	}
}

func (c *Coordinator) recordOutcome(ctx context.Context, task *db.Task, outcome string, start time.Time) {
	observability.RecordTask(ctx, observability.TaskMetrics{
		Source:   task.Source,
		Outcome:  outcome,
		Duration: time.Since(start),
	})
}

// ReclaimStale sweeps tasks stuck in processing past the staleness threshold
func (c *Coordinator) ReclaimStale(ctx context.Context) {
	if _, err := c.queue.ReclaimStaleTasks(ctx, StaleTaskTimeout); err != nil {
		log.Error().Err(err).Msg("Failed to reclaim stale tasks")
	}
}

// QueueStats returns per-status counts over the trailing stats window. Store
// failures degrade to a zeroed snapshot rather than an error.
func (c *Coordinator) QueueStats(ctx context.Context) *db.QueueStats {
	stats, err := c.queue.GetQueueStats(ctx, c.statsWindow)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read queue stats")
		return &db.QueueStats{}
	}
	return stats
}

// RetryFailed resets all failed tasks back to queued with a fresh attempt
// budget and returns how many rows were affected
func (c *Coordinator) RetryFailed(ctx context.Context) int64 {
	affected, err := c.queue.RetryFailedTasks(ctx)
	if err != nil {
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("Failed to retry failed tasks")
		return 0
	}
	return affected
}
