package parallel

import (
	"fmt"
	"runtime"

	"fastmd/internal/logging"
)

const (
	// MaxDefaultWorkers caps the auto-detected worker count.
	MaxDefaultWorkers = 8
	// DefaultQueueSize bounds the task queue when none is configured.
	DefaultQueueSize = 1000
)

// RecommendedWorkers returns the CPU count capped at MaxDefaultWorkers.
func RecommendedWorkers() int {
	return max(1, min(runtime.NumCPU(), MaxDefaultWorkers))
}

// Builder configures and constructs a Pool.
type Builder struct {
	workers   int
	queueSize int
	policy    FullQueuePolicy
	renderer  Renderer
	metrics   MetricsRecorder
	logger    logging.Logger
}

// NewBuilder returns a builder with auto-detected workers and the default
// queue size.
func NewBuilder() *Builder {
	return &Builder{}
}

// Workers sets the pool size. Zero or less selects RecommendedWorkers.
func (b *Builder) Workers(n int) *Builder {
	b.workers = n
	return b
}

// QueueSize bounds the task queue. Zero or less selects DefaultQueueSize.
func (b *Builder) QueueSize(n int) *Builder {
	b.queueSize = n
	return b
}

// FullQueuePolicy sets what happens when the queue is at capacity.
func (b *Builder) FullQueuePolicy(policy FullQueuePolicy) *Builder {
	b.policy = policy
	return b
}

// Renderer sets the capability every worker invokes per task.
func (b *Builder) Renderer(renderer Renderer) *Builder {
	b.renderer = renderer
	return b
}

// Metrics sets the task metrics sink.
func (b *Builder) Metrics(metrics MetricsRecorder) *Builder {
	b.metrics = metrics
	return b
}

// Logger sets the pool logger.
func (b *Builder) Logger(logger logging.Logger) *Builder {
	b.logger = logger
	return b
}

// Build starts the workers. The returned pool is Running.
func (b *Builder) Build() (*Pool, error) {
	if b.renderer == nil {
		return nil, fmt.Errorf("worker pool requires a renderer")
	}

	workers := b.workers
	if workers <= 0 {
		workers = RecommendedWorkers()
	}
	queueSize := b.queueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	logger := b.logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("pool")
	}

	return newPool(workers, queueSize, b.policy, b.renderer, metrics, logger), nil
}
