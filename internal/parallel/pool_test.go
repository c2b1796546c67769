package parallel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	fmerrors "fastmd/internal/errors"
	"fastmd/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoRenderer() Renderer {
	return RendererFunc(func(_ context.Context, task Task) (Rendered, error) {
		return Rendered{Code: "<p>" + task.Content() + "</p>"}, nil
	})
}

// gatedRenderer blocks every render until release is closed and reports each
// start on started.
type gatedRenderer struct {
	started chan string
	release chan struct{}
}

func newGatedRenderer() *gatedRenderer {
	return &gatedRenderer{started: make(chan string, 64), release: make(chan struct{})}
}

func (g *gatedRenderer) Render(ctx context.Context, task Task) (Rendered, error) {
	g.started <- task.ID()
	<-g.release
	return Rendered{Code: task.Content()}, nil
}

func newTestPool(t *testing.T, workers int, renderer Renderer) *Pool {
	t.Helper()
	pool, err := NewBuilder().Workers(workers).Renderer(renderer).Logger(logging.Nop()).Build()
	require.NoError(t, err)
	return pool
}

func shutdown(t *testing.T, pool *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestPoolCreation(t *testing.T) {
	pool := newTestPool(t, 4, echoRenderer())
	assert.Equal(t, 4, pool.Size())
	assert.Equal(t, StateRunning, pool.State())
	assert.Equal(t, DefaultQueueSize, pool.QueueCapacity())

	shutdown(t, pool)
	assert.Equal(t, StateTerminated, pool.State())
}

func TestBuilderRequiresRenderer(t *testing.T) {
	_, err := NewBuilder().Workers(2).Build()
	assert.Error(t, err)
}

func TestBuilderDefaults(t *testing.T) {
	pool, err := NewBuilder().Renderer(echoRenderer()).Logger(logging.Nop()).QueueSize(16).Build()
	require.NoError(t, err)
	defer shutdown(t, pool)

	assert.Equal(t, RecommendedWorkers(), pool.Size())
	assert.Equal(t, 16, pool.QueueCapacity())
}

func TestRecommendedWorkers(t *testing.T) {
	workers := RecommendedWorkers()
	assert.Greater(t, workers, 0)
	assert.LessOrEqual(t, workers, MaxDefaultWorkers)
}

func TestSingleTaskProcessing(t *testing.T) {
	pool := newTestPool(t, 2, echoRenderer())
	defer shutdown(t, pool)

	result, err := pool.Process(context.Background(), NewTask("test-1", "test.md", "# Hello World"))
	require.NoError(t, err)

	require.True(t, result.IsSuccess())
	assert.False(t, result.IsFailure())
	assert.Equal(t, "test-1", result.ID())
	success, ok := result.Success()
	require.True(t, ok)
	assert.Equal(t, "<p># Hello World</p>", success.Output.Code)
	_, ok = result.Failure()
	assert.False(t, ok)
}

func TestBatchProcessingReturnsEveryID(t *testing.T) {
	pool := newTestPool(t, 3, echoRenderer())
	defer shutdown(t, pool)

	batch, err := NewBatch("test-batch", makeTasks(10))
	require.NoError(t, err)

	results, err := pool.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 10)

	got := make(map[string]bool, len(results))
	for _, result := range results {
		assert.True(t, result.IsSuccess())
		got[result.ID()] = true
	}
	for i := 0; i < 10; i++ {
		assert.True(t, got[fmt.Sprintf("task-%d", i)], "missing task-%d", i)
	}
}

func TestEmptyBatch(t *testing.T) {
	pool := newTestPool(t, 2, echoRenderer())
	defer shutdown(t, pool)

	batch, err := NewBatch("empty", nil)
	require.NoError(t, err)

	results, err := pool.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestConcurrentProcessCallsReceiveOwnResults(t *testing.T) {
	renderer := RendererFunc(func(_ context.Context, task Task) (Rendered, error) {
		time.Sleep(time.Duration(len(task.Content())%3) * time.Millisecond)
		return Rendered{Code: strings.ToUpper(task.Content())}, nil
	})
	pool := newTestPool(t, 4, renderer)
	defer shutdown(t, pool)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("call-%d", i)
			content := strings.Repeat("x", i) + id
			result, err := pool.Process(context.Background(), NewTask(id, "f.md", content))
			if err != nil {
				errs <- err
				return
			}
			success, ok := result.Success()
			if result.ID() != id || !ok || success.Output.Code != strings.ToUpper(content) {
				errs <- fmt.Errorf("call %s received result for %s", id, result.ID())
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestRendererErrorBecomesFailure(t *testing.T) {
	renderer := RendererFunc(func(_ context.Context, task Task) (Rendered, error) {
		if task.Content() == "permanent" {
			return Rendered{}, fmerrors.Permanent(errors.New("unsupported construct"))
		}
		return Rendered{}, errors.New("bad table")
	})
	pool := newTestPool(t, 1, renderer)
	defer shutdown(t, pool)

	result, err := pool.Process(context.Background(), NewTask("t1", "a.md", "x"))
	require.NoError(t, err)
	failure, ok := result.Failure()
	require.True(t, ok)
	assert.Equal(t, "bad table", failure.Error)
	assert.True(t, failure.Recoverable)
	assert.False(t, failure.Panicked)

	result, err = pool.Process(context.Background(), NewTask("t2", "a.md", "permanent"))
	require.NoError(t, err)
	failure, ok = result.Failure()
	require.True(t, ok)
	assert.False(t, failure.Recoverable)
}

func TestRendererPanicIsIsolated(t *testing.T) {
	renderer := RendererFunc(func(_ context.Context, task Task) (Rendered, error) {
		if task.Content() == "boom" {
			panic("renderer exploded")
		}
		return Rendered{Code: task.Content()}, nil
	})
	pool := newTestPool(t, 1, renderer)
	defer shutdown(t, pool)

	result, err := pool.Process(context.Background(), NewTask("bad", "a.md", "boom"))
	require.NoError(t, err)
	failure, ok := result.Failure()
	require.True(t, ok)
	assert.True(t, failure.Panicked)
	assert.False(t, failure.Recoverable)
	assert.Contains(t, failure.Error, "renderer exploded")

	// The only worker must still be alive.
	result, err = pool.Process(context.Background(), NewTask("good", "a.md", "fine"))
	require.NoError(t, err)
	assert.True(t, result.IsSuccess())

	stats := pool.Stats()
	assert.Equal(t, uint64(2), stats.TotalTasks)
	assert.Equal(t, uint64(1), stats.TotalErrors)
	assert.Equal(t, uint64(1), stats.TotalPanics)
}

func TestStatsAttributedToExecutingWorker(t *testing.T) {
	renderer := RendererFunc(func(_ context.Context, task Task) (Rendered, error) {
		time.Sleep(time.Millisecond)
		return Rendered{Code: task.Content()}, nil
	})
	pool := newTestPool(t, 3, renderer)
	defer shutdown(t, pool)

	batch, err := NewBatch("attribution", makeTasks(30))
	require.NoError(t, err)
	results, err := pool.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)

	perWorker := make(map[int]uint64)
	for _, result := range results {
		perWorker[result.WorkerID()]++
	}

	stats := pool.Stats()
	assert.Equal(t, 3, stats.NumWorkers)
	assert.Equal(t, uint64(30), stats.TotalTasks)
	for _, snap := range stats.Workers {
		assert.Equal(t, perWorker[snap.WorkerID], snap.TasksProcessed, "worker %d", snap.WorkerID)
	}
	assert.Greater(t, stats.Throughput, 0.0)
	assert.Zero(t, stats.ErrorRate)
}

func TestSingleTaskPathUpdatesStats(t *testing.T) {
	pool := newTestPool(t, 2, echoRenderer())
	defer shutdown(t, pool)

	for i := 0; i < 5; i++ {
		_, err := pool.Process(context.Background(), NewTask(fmt.Sprintf("task-%d", i), "test.md", "# Test"))
		require.NoError(t, err)
	}

	stats := pool.Stats()
	assert.Equal(t, 2, stats.NumWorkers)
	assert.Equal(t, uint64(5), stats.TotalTasks)
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	renderer := newGatedRenderer()
	pool := newTestPool(t, 1, renderer)

	batch, err := NewBatch("drain", makeTasks(5))
	require.NoError(t, err)

	type outcome struct {
		results []TaskResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := pool.ProcessBatch(context.Background(), batch)
		done <- outcome{results, err}
	}()

	<-renderer.started
	require.Eventually(t, func() bool { return pool.QueueDepth() == 4 }, time.Second, time.Millisecond)

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- pool.Shutdown(context.Background()) }()
	require.Eventually(t, func() bool { return pool.State() == StateShuttingDown }, time.Second, time.Millisecond)

	close(renderer.release)

	got := <-done
	require.NoError(t, got.err)
	assert.Len(t, got.results, 5)
	require.NoError(t, <-shutdownErr)
	assert.Equal(t, StateTerminated, pool.State())
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := newTestPool(t, 2, echoRenderer())
	shutdown(t, pool)

	_, err := pool.Process(context.Background(), NewTask("late", "a.md", "x"))
	assert.ErrorIs(t, err, fmerrors.ErrPoolClosed)

	batch, err := NewBatch("late", makeTasks(3))
	require.NoError(t, err)
	results, err := pool.ProcessBatch(context.Background(), batch)
	assert.Empty(t, results)

	var channelErr *fmerrors.ChannelError
	require.ErrorAs(t, err, &channelErr)
	assert.True(t, fmerrors.IsPoolFatal(err))
	assert.Equal(t, 3, channelErr.Expected)
}

func TestShutdownIsIdempotent(t *testing.T) {
	pool := newTestPool(t, 2, echoRenderer())
	shutdown(t, pool)
	shutdown(t, pool)
	assert.Equal(t, StateTerminated, pool.State())
}

func TestShutdownHonorsContext(t *testing.T) {
	renderer := newGatedRenderer()
	pool := newTestPool(t, 1, renderer)

	go func() { _, _ = pool.Process(context.Background(), NewTask("slow", "a.md", "x")) }()
	<-renderer.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)

	close(renderer.release)
	shutdown(t, pool)
}

func fillQueue(t *testing.T, policy FullQueuePolicy) (*Pool, *gatedRenderer) {
	t.Helper()
	renderer := newGatedRenderer()
	pool, err := NewBuilder().
		Workers(1).
		QueueSize(1).
		FullQueuePolicy(policy).
		Renderer(renderer).
		Logger(logging.Nop()).
		Build()
	require.NoError(t, err)

	go func() { _, _ = pool.Process(context.Background(), NewTask("running", "a.md", "x")) }()
	<-renderer.started
	go func() { _, _ = pool.Process(context.Background(), NewTask("queued", "a.md", "x")) }()
	require.Eventually(t, func() bool { return pool.QueueDepth() == 1 }, time.Second, time.Millisecond)
	return pool, renderer
}

func TestRejectPolicyFailsFast(t *testing.T) {
	pool, renderer := fillQueue(t, PolicyReject)

	_, err := pool.Process(context.Background(), NewTask("overflow", "a.md", "x"))
	assert.ErrorIs(t, err, fmerrors.ErrQueueFull)
	assert.False(t, fmerrors.IsPoolFatal(err))

	close(renderer.release)
	shutdown(t, pool)
}

func TestBlockPolicyWaitsForContext(t *testing.T) {
	pool, renderer := fillQueue(t, PolicyBlock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Process(ctx, NewTask("overflow", "a.md", "x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(renderer.release)
	shutdown(t, pool)
}

func TestCancelledTaskIsSkipped(t *testing.T) {
	calls := 0
	renderer := RendererFunc(func(_ context.Context, task Task) (Rendered, error) {
		calls++
		return Rendered{}, nil
	})
	pool := newTestPool(t, 1, renderer)
	defer shutdown(t, pool)

	worker := pool.workers[0]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := worker.execute(ctx, NewTask("gone", "a.md", "x"))
	failure, ok := result.Failure()
	require.True(t, ok)
	assert.True(t, failure.Recoverable)
	assert.Zero(t, calls)
}

func TestParseFullQueuePolicy(t *testing.T) {
	policy, err := ParseFullQueuePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, policy)

	policy, err = ParseFullQueuePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyBlock, policy)

	_, err = ParseFullQueuePolicy("drop")
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "terminated", StateTerminated.String())
}
