package parallel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerStats(t *testing.T) {
	stats := &WorkerStats{}

	stats.RecordSuccess(10 * time.Millisecond)
	stats.RecordSuccess(20 * time.Millisecond)
	stats.RecordFailure(0, false)

	snap := stats.Snapshot(3)
	assert.Equal(t, 3, snap.WorkerID)
	assert.Equal(t, uint64(3), snap.TasksProcessed)
	assert.Equal(t, 30.0, snap.TotalDurationMs)
	assert.Equal(t, uint64(1), snap.Errors)
	assert.Equal(t, 10.0, snap.AverageDurationMs)
}

func TestAggregate(t *testing.T) {
	first := &WorkerStats{}
	first.RecordSuccess(10 * time.Millisecond)
	first.RecordFailure(10*time.Millisecond, true)
	second := &WorkerStats{}
	second.RecordSuccess(20 * time.Millisecond)
	second.RecordSuccess(0)

	stats := aggregate([]WorkerSnapshot{first.Snapshot(0), second.Snapshot(1)}, 2)

	assert.Equal(t, 2, stats.NumWorkers)
	assert.Equal(t, uint64(4), stats.TotalTasks)
	assert.Equal(t, 40.0, stats.TotalDurationMs)
	assert.Equal(t, uint64(1), stats.TotalErrors)
	assert.Equal(t, uint64(1), stats.TotalPanics)
	assert.Equal(t, 10.0, stats.AverageDurationMs)
	assert.Equal(t, 100.0, stats.Throughput)
	assert.Equal(t, 0.25, stats.ErrorRate)
	assert.Equal(t, 2, stats.QueueDepth)
}

func TestAggregateEmpty(t *testing.T) {
	stats := aggregate([]WorkerSnapshot{(&WorkerStats{}).Snapshot(0)}, 0)

	assert.Zero(t, stats.AverageDurationMs)
	assert.Zero(t, stats.Throughput)
	assert.Zero(t, stats.ErrorRate)
}
