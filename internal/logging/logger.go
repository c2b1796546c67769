package logging

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"fastmd/internal/observability"
)

// Logger defines a minimal, printf-style logging contract.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var base atomic.Pointer[observability.Logger]

// SetBase installs the process-wide structured logger that component loggers
// write through. It is set once during startup.
func SetBase(logger *observability.Logger) {
	base.Store(logger)
}

func baseLogger() *observability.Logger {
	if logger := base.Load(); logger != nil {
		return logger
	}
	fallback := observability.NewLogger(observability.LogConfig{Level: "info", Format: "text"})
	base.CompareAndSwap(nil, fallback)
	return base.Load()
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return FromObservabilityWithComponent(baseLogger(), component)
}

type observabilityPrintfLogger struct {
	logger *observability.Logger
}

// FromObservabilityWithComponent wraps an observability logger and preserves
// printf-style call sites by formatting the message before emitting it.
func FromObservabilityWithComponent(logger *observability.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	scoped := logger
	if component != "" {
		scoped = scoped.With("component", component)
	}
	return &observabilityPrintfLogger{logger: scoped}
}

func (l *observabilityPrintfLogger) Debug(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *observabilityPrintfLogger) Info(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *observabilityPrintfLogger) Warn(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *observabilityPrintfLogger) Error(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *observabilityPrintfLogger) withContext(ctx context.Context) Logger {
	return &observabilityPrintfLogger{logger: l.logger.WithContext(ctx)}
}

// FromContext returns logger tagged with the request and trace ids found in
// ctx. Loggers that are not backed by the structured logger are returned as is.
func FromContext(ctx context.Context, logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if scoped, ok := logger.(*observabilityPrintfLogger); ok {
		return scoped.withContext(ctx)
	}
	return logger
}
