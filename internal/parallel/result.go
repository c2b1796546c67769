package parallel

import "time"

// Rendered is the renderer's output for one task.
type Rendered struct {
	Code         string         `json:"code"`
	Map          map[string]any `json:"map,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Success is the outcome of a task the renderer completed.
type Success struct {
	Output   Rendered
	Duration time.Duration
}

// Failure is the outcome of a task the renderer rejected or faulted on.
type Failure struct {
	Error       string
	Recoverable bool
	Panicked    bool
}

// TaskResult is exactly one of Success or Failure for the task with the same
// id. WorkerID names the worker that executed the task.
type TaskResult struct {
	id       string
	workerID int
	elapsed  time.Duration
	success  *Success
	failure  *Failure
}

// NewSuccess builds a successful result.
func NewSuccess(id string, workerID int, output Rendered, duration time.Duration) TaskResult {
	return TaskResult{
		id:       id,
		workerID: workerID,
		elapsed:  duration,
		success:  &Success{Output: output, Duration: duration},
	}
}

// NewFailure builds a failed result. elapsed is kept for statistics only.
func NewFailure(id string, workerID int, message string, recoverable bool, elapsed time.Duration) TaskResult {
	return TaskResult{
		id:       id,
		workerID: workerID,
		elapsed:  elapsed,
		failure:  &Failure{Error: message, Recoverable: recoverable},
	}
}

func (r TaskResult) ID() string    { return r.id }
func (r TaskResult) WorkerID() int { return r.workerID }

// Elapsed is the measured renderer time, for both outcomes.
func (r TaskResult) Elapsed() time.Duration { return r.elapsed }

func (r TaskResult) IsSuccess() bool { return r.success != nil }
func (r TaskResult) IsFailure() bool { return r.failure != nil }

// Success returns the success payload, if the task succeeded.
func (r TaskResult) Success() (Success, bool) {
	if r.success == nil {
		return Success{}, false
	}
	return *r.success, true
}

// Failure returns the failure payload, if the task failed.
func (r TaskResult) Failure() (Failure, bool) {
	if r.failure == nil {
		return Failure{}, false
	}
	return *r.failure, true
}

func (r TaskResult) panicked() bool {
	return r.failure != nil && r.failure.Panicked
}
