package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"fastmd/internal/async"
	fmerrors "fastmd/internal/errors"
	"fastmd/internal/logging"
)

// State is the pool lifecycle stage. Transitions only move forward.
type State int32

const (
	StateConstructing State = iota
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// FullQueuePolicy decides what Submit does when the task queue is at capacity.
type FullQueuePolicy int

const (
	// PolicyBlock waits for room or for the caller's context to end.
	PolicyBlock FullQueuePolicy = iota
	// PolicyReject fails fast with errors.ErrQueueFull.
	PolicyReject
)

// ParseFullQueuePolicy maps "block" or "reject" to a policy.
func ParseFullQueuePolicy(name string) (FullQueuePolicy, error) {
	switch name {
	case "", "block":
		return PolicyBlock, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyBlock, fmt.Errorf("unknown full queue policy: %q", name)
	}
}

func (p FullQueuePolicy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "block"
}

// Pool owns a fixed set of workers fed from one bounded queue. Every call
// gets its own reply channel, so concurrent callers never see each other's
// results.
//
// Shutdown drains: tasks accepted before Shutdown are executed, later
// submissions fail with errors.ErrPoolClosed.
type Pool struct {
	workers []*Worker
	stats   []*WorkerStats
	queue   chan job
	policy  FullQueuePolicy
	logger  logging.Logger

	// mu orders queue sends (read side) against closing the queue (write side).
	mu    sync.RWMutex
	state atomic.Int32
	done  chan struct{}
}

func newPool(size, queueSize int, policy FullQueuePolicy, renderer Renderer, metrics MetricsRecorder, logger logging.Logger) *Pool {
	p := &Pool{
		workers: make([]*Worker, 0, size),
		stats:   make([]*WorkerStats, size),
		queue:   make(chan job, queueSize),
		policy:  policy,
		logger:  logger,
		done:    make(chan struct{}),
	}
	p.state.Store(int32(StateConstructing))

	logger.Info("Creating worker pool with %d workers (queue %d, policy %s)", size, queueSize, policy)
	for id := 0; id < size; id++ {
		p.stats[id] = &WorkerStats{}
		p.workers = append(p.workers, startWorker(id, p.queue, renderer, p.stats[id], metrics, logger))
	}

	p.state.Store(int32(StateRunning))
	return p
}

// Size returns the fixed number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// State returns the current lifecycle stage.
func (p *Pool) State() State {
	return State(p.state.Load())
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// QueueCapacity returns the bound on queued tasks.
func (p *Pool) QueueCapacity() int {
	return cap(p.queue)
}

func (p *Pool) submit(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.State() != StateRunning {
		return fmerrors.ErrPoolClosed
	}

	if p.policy == PolicyReject {
		select {
		case p.queue <- j:
			return nil
		default:
			return fmerrors.ErrQueueFull
		}
	}

	select {
	case p.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process submits one task and waits for its result.
func (p *Pool) Process(ctx context.Context, task Task) (TaskResult, error) {
	reply := make(chan TaskResult, 1)
	if err := p.submit(ctx, job{ctx: ctx, task: task, reply: reply}); err != nil {
		return TaskResult{}, fmt.Errorf("submit task %s: %w", task.id, err)
	}

	select {
	case result := <-reply:
		return result, nil
	case <-ctx.Done():
		return TaskResult{}, fmt.Errorf("await task %s: %w", task.id, ctx.Err())
	}
}

// ProcessBatch distributes the batch over the workers and collects one result
// per task, in completion order. Callers correlate results with tasks by
// TaskResult.ID. If submission or collection stops early, the
// results gathered so far are returned together with the error; a pool that
// shut down underneath the batch yields an *errors.ChannelError.
func (p *Pool) ProcessBatch(ctx context.Context, batch *TaskBatch) ([]TaskResult, error) {
	expected := batch.Len()
	reply := make(chan TaskResult, expected)

	submitted := 0
	var submitErr error
dispatch:
	for _, chunk := range batch.Split(p.Size()) {
		for _, task := range chunk {
			if err := p.submit(ctx, job{ctx: ctx, task: task, reply: reply}); err != nil {
				submitErr = err
				break dispatch
			}
			submitted++
		}
	}

	results := make([]TaskResult, 0, expected)
	for len(results) < submitted {
		select {
		case result := <-reply:
			results = append(results, result)
		case <-ctx.Done():
			return results, fmt.Errorf("batch %s: collected %d/%d results: %w", batch.id, len(results), expected, ctx.Err())
		}
	}

	if submitErr != nil {
		if errors.Is(submitErr, fmerrors.ErrPoolClosed) {
			p.logger.Error("Batch %s lost the pool after %d/%d submissions", batch.id, submitted, expected)
			return results, &fmerrors.ChannelError{Op: "submit", Delivered: len(results), Expected: expected, Err: submitErr}
		}
		return results, fmt.Errorf("batch %s: submitted %d/%d tasks: %w", batch.id, submitted, expected, submitErr)
	}
	return results, nil
}

// Stats sums every worker's counters.
func (p *Pool) Stats() PoolStats {
	snapshots := make([]WorkerSnapshot, len(p.stats))
	for id, stats := range p.stats {
		snapshots[id] = stats.Snapshot(id)
	}
	return aggregate(snapshots, p.QueueDepth())
}

// Shutdown stops accepting work, lets the workers drain the queue and waits
// for them to exit. It returns ctx.Err() if ctx ends first; the drain keeps
// going in the background. Calling Shutdown again waits for the same drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown)) {
		p.logger.Info("Shutting down worker pool (%d queued tasks)", p.QueueDepth())

		p.mu.Lock()
		close(p.queue)
		p.mu.Unlock()

		async.Go(p.logger, "pool.shutdown", func() {
			for _, w := range p.workers {
				<-w.Done()
			}
			p.state.Store(int32(StateTerminated))
			close(p.done)
			p.logger.Info("Worker pool shutdown complete")
		})
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
