package parallel

import (
	"context"
	"errors"
	"time"

	"fastmd/internal/async"
	fmerrors "fastmd/internal/errors"
	"fastmd/internal/logging"
)

// Renderer turns one task's content into output. Implementations are shared
// by every worker and must be safe for concurrent use.
type Renderer interface {
	Render(ctx context.Context, task Task) (Rendered, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, task Task) (Rendered, error)

// Render calls f(ctx, task).
func (f RendererFunc) Render(ctx context.Context, task Task) (Rendered, error) {
	return f(ctx, task)
}

// MetricsRecorder receives one observation per executed task.
type MetricsRecorder interface {
	RecordTask(ctx context.Context, engine string, status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordTask(context.Context, string, string, time.Duration) {}

// Task metric statuses.
const (
	statusSuccess = "success"
	statusFailure = "failure"
	statusPanic   = "panic"
)

// job is a task in flight together with the channel its result goes back on.
// reply is buffered so a worker never blocks delivering a result.
type job struct {
	ctx   context.Context
	task  Task
	reply chan<- TaskResult
}

// Worker is a long-lived goroutine that executes tasks from the pool queue.
type Worker struct {
	id       int
	stats    *WorkerStats
	renderer Renderer
	metrics  MetricsRecorder
	logger   logging.Logger
	done     chan struct{}
}

func startWorker(id int, queue <-chan job, renderer Renderer, stats *WorkerStats, metrics MetricsRecorder, logger logging.Logger) *Worker {
	w := &Worker{
		id:       id,
		stats:    stats,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go w.run(queue)
	return w
}

// ID returns the worker's index within its pool.
func (w *Worker) ID() int {
	return w.id
}

// Done is closed once the worker has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// run receives until the queue is closed and drained. Receiving from the
// shared channel is the only synchronized step; rendering runs unlocked.
func (w *Worker) run(queue <-chan job) {
	defer close(w.done)
	w.logger.Debug("Worker %d started", w.id)

	for j := range queue {
		result := w.execute(j.ctx, j.task)
		w.stats.record(result)
		j.reply <- result
	}

	w.logger.Debug("Worker %d stopped", w.id)
}

// execute runs the renderer inside a fault boundary and times it.
func (w *Worker) execute(ctx context.Context, task Task) TaskResult {
	if err := ctx.Err(); err != nil {
		return NewFailure(task.id, w.id, err.Error(), true, 0)
	}

	var output Rendered
	start := time.Now()
	err := async.Call(func() error {
		var renderErr error
		output, renderErr = w.renderer.Render(ctx, task)
		return renderErr
	})
	elapsed := time.Since(start)
	engine := task.options.Engine

	if err == nil {
		w.metrics.RecordTask(ctx, engine, statusSuccess, elapsed)
		return NewSuccess(task.id, w.id, output, elapsed)
	}

	var panicErr *fmerrors.PanicError
	if errors.As(err, &panicErr) {
		panicErr.WorkerID = w.id
		panicErr.TaskID = task.id
		w.logger.Error("Worker %d recovered from renderer panic on task %s: %v, stack: %s", w.id, task.id, panicErr.Value, panicErr.Stack)
		w.metrics.RecordTask(ctx, engine, statusPanic, elapsed)
		result := NewFailure(task.id, w.id, panicErr.Error(), false, elapsed)
		result.failure.Panicked = true
		return result
	}

	w.logger.Debug("Worker %d task %s failed: %v", w.id, task.id, err)
	w.metrics.RecordTask(ctx, engine, statusFailure, elapsed)
	return NewFailure(task.id, w.id, err.Error(), fmerrors.IsRecoverable(err), elapsed)
}
