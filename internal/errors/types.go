package errors

import (
	"errors"
	"fmt"
)

// Sentinel pool errors.
var (
	// ErrPoolClosed is returned when work is submitted after shutdown began.
	ErrPoolClosed = errors.New("worker pool is shut down")
	// ErrQueueFull is returned under the reject policy when the task queue has no room.
	ErrQueueFull = errors.New("task queue is full")
	// ErrShutdownRequested signals that the host asked the process to exit.
	ErrShutdownRequested = errors.New("shutdown requested")
	// ErrDuplicateTaskID is returned when a batch carries the same task id twice.
	ErrDuplicateTaskID = errors.New("duplicate task id in batch")
)

// ProtocolError is a request-level failure surfaced to the host as an error
// response. It is never fatal to the process.
type ProtocolError struct {
	Code    int
	Message string
	Data    any
}

func (e *ProtocolError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("protocol error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// NewProtocolError builds a ProtocolError.
func NewProtocolError(code int, message string, data any) *ProtocolError {
	return &ProtocolError{Code: code, Message: message, Data: data}
}

// TransformError wraps a renderer failure for a single task.
type TransformError struct {
	TaskID      string
	File        string
	Err         error
	Recoverable bool
}

func (e *TransformError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("transform %s (%s): %v", e.TaskID, e.File, e.Err)
	}
	return fmt.Sprintf("transform %s: %v", e.TaskID, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// PermanentError marks a renderer failure that retrying the same input will
// not fix. Renderers return it to flag a Failure as unrecoverable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a PermanentError. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ChannelError reports that the pool's internal queues can no longer deliver
// work or results. It is pool-fatal.
type ChannelError struct {
	Op        string
	Delivered int
	Expected  int
	Err       error
}

func (e *ChannelError) Error() string {
	if e.Expected > 0 {
		return fmt.Sprintf("channel %s failed after %d/%d results: %v", e.Op, e.Delivered, e.Expected, e.Err)
	}
	return fmt.Sprintf("channel %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// PanicError captures a runtime fault raised while executing a task.
type PanicError struct {
	WorkerID int
	TaskID   string
	Value    any
	Stack    []byte
}

func (e *PanicError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("worker %d panicked on task %s: %v", e.WorkerID, e.TaskID, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsRecoverable reports whether a failed task may succeed if resubmitted.
// Renderer errors are recoverable unless marked permanent; panics are not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var transformErr *TransformError
	if errors.As(err, &transformErr) && !transformErr.Recoverable {
		return false
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return false
	}
	return true
}

// IsPoolFatal reports whether err means the pool can no longer serve work.
func IsPoolFatal(err error) bool {
	if err == nil {
		return false
	}
	var channelErr *ChannelError
	if errors.As(err, &channelErr) {
		return true
	}
	return errors.Is(err, ErrPoolClosed)
}

// AsProtocolError extracts a ProtocolError from err.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var protocolErr *ProtocolError
	if errors.As(err, &protocolErr) {
		return protocolErr, true
	}
	return nil, false
}
