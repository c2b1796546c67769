package parallel

import (
	"sync/atomic"
	"time"
)

// WorkerStats holds one worker's counters. Only the owning worker writes
// them; readers take snapshots without locking.
type WorkerStats struct {
	tasksProcessed atomic.Uint64
	totalDuration  atomic.Int64
	errors         atomic.Uint64
	panics         atomic.Uint64
}

// RecordSuccess counts a completed task.
func (s *WorkerStats) RecordSuccess(d time.Duration) {
	s.tasksProcessed.Add(1)
	s.totalDuration.Add(int64(d))
}

// RecordFailure counts a failed task. panicked marks a caught renderer fault.
func (s *WorkerStats) RecordFailure(d time.Duration, panicked bool) {
	s.tasksProcessed.Add(1)
	s.totalDuration.Add(int64(d))
	s.errors.Add(1)
	if panicked {
		s.panics.Add(1)
	}
}

func (s *WorkerStats) record(result TaskResult) {
	if result.IsSuccess() {
		s.RecordSuccess(result.Elapsed())
		return
	}
	s.RecordFailure(result.Elapsed(), result.panicked())
}

// Snapshot copies the current counters.
func (s *WorkerStats) Snapshot(workerID int) WorkerSnapshot {
	snap := WorkerSnapshot{
		WorkerID:        workerID,
		TasksProcessed:  s.tasksProcessed.Load(),
		TotalDurationMs: durationMs(time.Duration(s.totalDuration.Load())),
		Errors:          s.errors.Load(),
		Panics:          s.panics.Load(),
	}
	if snap.TasksProcessed > 0 {
		snap.AverageDurationMs = snap.TotalDurationMs / float64(snap.TasksProcessed)
	}
	return snap
}

// WorkerSnapshot is a point-in-time copy of one worker's counters.
type WorkerSnapshot struct {
	WorkerID          int     `json:"workerId"`
	TasksProcessed    uint64  `json:"tasksProcessed"`
	TotalDurationMs   float64 `json:"totalDurationMs"`
	Errors            uint64  `json:"errors"`
	Panics            uint64  `json:"panics"`
	AverageDurationMs float64 `json:"averageDurationMs"`
}

// PoolStats aggregates every worker's counters.
type PoolStats struct {
	NumWorkers        int              `json:"numWorkers"`
	TotalTasks        uint64           `json:"totalTasks"`
	TotalDurationMs   float64          `json:"totalDurationMs"`
	TotalErrors       uint64           `json:"totalErrors"`
	TotalPanics       uint64           `json:"totalPanics"`
	AverageDurationMs float64          `json:"averageDurationMs"`
	Throughput        float64          `json:"throughput"`
	ErrorRate         float64          `json:"errorRate"`
	QueueDepth        int              `json:"queueDepth"`
	Workers           []WorkerSnapshot `json:"workers"`
}

func aggregate(snapshots []WorkerSnapshot, queueDepth int) PoolStats {
	stats := PoolStats{
		NumWorkers: len(snapshots),
		QueueDepth: queueDepth,
		Workers:    snapshots,
	}
	for _, snap := range snapshots {
		stats.TotalTasks += snap.TasksProcessed
		stats.TotalDurationMs += snap.TotalDurationMs
		stats.TotalErrors += snap.Errors
		stats.TotalPanics += snap.Panics
	}
	if stats.TotalTasks > 0 {
		stats.AverageDurationMs = stats.TotalDurationMs / float64(stats.TotalTasks)
		stats.ErrorRate = float64(stats.TotalErrors) / float64(stats.TotalTasks)
	}
	if stats.TotalDurationMs > 0 {
		stats.Throughput = float64(stats.TotalTasks) * 1000 / stats.TotalDurationMs
	}
	return stats
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
