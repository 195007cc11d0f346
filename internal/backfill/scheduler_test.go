package backfill

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// countingProcessor records cycle invocations for scheduler tests
type countingProcessor struct {
	cycles   atomic.Int64
	reclaims atomic.Int64
	block    chan struct{} // when set, ProcessQueue blocks until closed
	mu       sync.Mutex
}

func (p *countingProcessor) ProcessQueue(ctx context.Context) {
	p.cycles.Add(1)
	p.mu.Lock()
	block := p.block
	p.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (p *countingProcessor) ReclaimStale(ctx context.Context) {
	p.reclaims.Add(1)
}

func TestSchedulerRunsCyclesOnTick(t *testing.T) {
	t.Parallel()

	processor := &countingProcessor{}
	s := NewScheduler(processor, WithTickInterval(10*time.Millisecond))

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, processor.cycles.Load(), int64(2))
}

func TestSchedulerNudgeTriggersCycle(t *testing.T) {
	t.Parallel()

	processor := &countingProcessor{}
	// Tick far enough out that only the nudge can trigger a cycle
	s := NewScheduler(processor, WithTickInterval(time.Hour))

	s.Start(context.Background())
	s.Nudge()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int64(1), processor.cycles.Load())
}

func TestSchedulerCyclesDoNotOverlap(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	processor := &countingProcessor{block: block}
	s := NewScheduler(processor, WithTickInterval(time.Hour))

	s.Start(context.Background())
	s.Nudge()

	// Wait for the first cycle to start and park on the block
	assert.Eventually(t, func() bool {
		return processor.cycles.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// Nudges during an in-flight cycle are dropped, not queued
	s.Nudge()
	s.Nudge()
	time.Sleep(30 * time.Millisecond)

	processor.mu.Lock()
	processor.block = nil
	processor.mu.Unlock()
	close(block)

	// At most one more cycle runs for the nudge buffered while blocked
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.LessOrEqual(t, processor.cycles.Load(), int64(2))
}

func TestSchedulerRunsReclaimSweep(t *testing.T) {
	t.Parallel()

	processor := &countingProcessor{}
	s := NewScheduler(processor,
		WithTickInterval(time.Hour),
		WithReclaimInterval(10*time.Millisecond))

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, processor.reclaims.Load(), int64(2))
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	processor := &countingProcessor{}
	s := NewScheduler(processor, WithTickInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	count := processor.cycles.Load()
	time.Sleep(30 * time.Millisecond)

	// No further cycles after cancellation
	assert.Equal(t, count, processor.cycles.Load())
	s.Stop()
}
