package backfill

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is the period between batch cycles
const DefaultTickInterval = 5 * time.Second

// DefaultReclaimInterval is the period between stale-task sweeps
const DefaultReclaimInterval = time.Minute

// BatchProcessor is the coordinator surface the scheduler drives
type BatchProcessor interface {
	ProcessQueue(ctx context.Context)
	ReclaimStale(ctx context.Context)
}

// Scheduler drives the coordinator on a fixed period. Ticks are
// non-reentrant: a new cycle never starts before the previous one finishes,
// so two ticks cannot race on the same task row. A Postgres LISTEN/NOTIFY
// subscription nudges the loop to run early when new tasks arrive, but the
// periodic tick remains the backbone.
type Scheduler struct {
	processor       BatchProcessor
	tickInterval    time.Duration
	reclaimInterval time.Duration
	conninfo        string // empty disables the listener

	nudgeCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// SchedulerOption customises scheduler construction
type SchedulerOption func(*Scheduler)

// WithTickInterval overrides the batch cycle period
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithReclaimInterval overrides the stale sweep period
func WithReclaimInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.reclaimInterval = d
		}
	}
}

// WithTaskListener enables a LISTEN/NOTIFY subscription on the given
// connection string to wake the scheduler when tasks are enqueued
func WithTaskListener(conninfo string) SchedulerOption {
	return func(s *Scheduler) { s.conninfo = conninfo }
}

// NewScheduler creates a scheduler for the given processor
func NewScheduler(processor BatchProcessor, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		processor:       processor,
		tickInterval:    DefaultTickInterval,
		reclaimInterval: DefaultReclaimInterval,
		nudgeCh:         make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduling loop and, when configured, the notification
// listener
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().
		Dur("tick_interval", s.tickInterval).
		Dur("reclaim_interval", s.reclaimInterval).
		Bool("listener", s.conninfo != "").
		Msg("Starting backfill scheduler")

	s.wg.Add(1)
	go s.run(ctx)

	if s.conninfo != "" {
		s.wg.Add(1)
		go s.listenForTasks(ctx)
	}
}

// Stop halts the scheduler and waits for an in-flight cycle to finish
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	log.Debug().Msg("Backfill scheduler stopped")
}

// Nudge asks the scheduler to run a cycle at the next opportunity. Non-blocking.
func (s *Scheduler) Nudge() {
	select {
	case s.nudgeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	reclaim := time.NewTicker(s.reclaimInterval)
	defer reclaim.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		case <-s.nudgeCh:
			s.runCycle(ctx)
		case <-reclaim.C:
			s.processor.ReclaimStale(ctx)
		}
	}
}

// runCycle enforces non-reentrancy: overlapping triggers are dropped, not
// queued, because the next tick re-reads the store anyway
func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	s.processor.ProcessQueue(ctx)
}

func (s *Scheduler) listenForTasks(ctx context.Context) {
	defer s.wg.Done()

	listener := pq.NewListener(s.conninfo,
		10*time.Second, // Min reconnect interval
		time.Minute,    // Max reconnect interval
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("Task notification listener error")
			}
		})

	if err := listener.Listen("backfill_tasks"); err != nil {
		log.Error().Err(err).Msg("Failed to listen for task notifications")
		return
	}
	defer listener.Close()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// Connection dropped; pq reconnects in the background
				continue
			}
			s.Nudge()
		case <-time.After(90 * time.Second):
			if err := listener.Ping(); err != nil {
				log.Error().Err(err).Msg("Task notification connection lost")
				return
			}
		}
	}
}
