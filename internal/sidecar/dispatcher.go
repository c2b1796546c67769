package sidecar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	fmerrors "fastmd/internal/errors"
	"fastmd/internal/logging"
	"fastmd/internal/observability"
	"fastmd/internal/parallel"
	"fastmd/internal/render"
	"fastmd/internal/rpc"
)

// Method names served by the dispatcher.
const (
	MethodPing           = "ping"
	MethodTransform      = "transform"
	MethodTransformBatch = "transformBatch"
	MethodNormalize      = "normalize"
	MethodComputeDigest  = "computeDigest"
	MethodDepsDigest     = "depsDigest"
	MethodStats          = "stats"
	MethodShutdown       = "shutdown"

	NotificationLog = "log"
)

// RequestRecorder receives one observation per answered request.
type RequestRecorder interface {
	RecordRequest(ctx context.Context, method string, status string, latency time.Duration)
}

type nopRequestRecorder struct{}

func (nopRequestRecorder) RecordRequest(context.Context, string, string, time.Duration) {}

// Options wires the dispatcher to its collaborators. Pool and Registry are
// required; everything else is optional.
type Options struct {
	Pool            *parallel.Pool
	Registry        *render.Registry
	Cache           *TransformCache
	Metrics         RequestRecorder
	Tracer          *observability.TracerProvider
	Logger          logging.Logger
	StatConcurrency int
	// BatchRoundSize caps how many tasks of one transformBatch request are
	// in the pool at once. Zero submits the whole request as one batch.
	BatchRoundSize int
}

type handlerFunc func(ctx context.Context, msg *rpc.Message) (any, error)

// Dispatcher decodes frames, routes them to method handlers and writes one
// response per request. Notifications and shutdown produce no output.
type Dispatcher struct {
	pool            *parallel.Pool
	registry        *render.Registry
	cache           *TransformCache
	metrics         RequestRecorder
	tracer          *observability.TracerProvider
	logger          logging.Logger
	statConcurrency int
	roundSize       int

	handlers map[string]handlerFunc
}

// NewDispatcher validates opts and registers the method table.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Pool == nil {
		return nil, fmt.Errorf("dispatcher requires a worker pool")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("dispatcher requires a render registry")
	}

	d := &Dispatcher{
		pool:            opts.Pool,
		registry:        opts.Registry,
		cache:           opts.Cache,
		metrics:         opts.Metrics,
		tracer:          opts.Tracer,
		logger:          opts.Logger,
		statConcurrency: opts.StatConcurrency,
		roundSize:       opts.BatchRoundSize,
	}
	if d.metrics == nil {
		d.metrics = nopRequestRecorder{}
	}
	if d.tracer == nil {
		d.tracer = observability.NoopTracerProvider()
	}
	if logging.IsNil(d.logger) {
		d.logger = logging.NewComponentLogger("dispatcher")
	}

	d.handlers = map[string]handlerFunc{
		MethodPing:           d.handlePing,
		MethodTransform:      d.handleTransform,
		MethodTransformBatch: d.handleTransformBatch,
		MethodNormalize:      d.handleNormalize,
		MethodComputeDigest:  d.handleComputeDigest,
		MethodDepsDigest:     d.handleDepsDigest,
		MethodStats:          d.handleStats,
	}
	return d, nil
}

// Serve runs the read loop until r is exhausted, ctx ends, or the host sends
// shutdown. It returns nil at end of input and errors.ErrShutdownRequested on
// shutdown, in which case nothing further has been written to w.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := rpc.NewFrameReader(r)
	writer := rpc.NewFrameWriter(w)

	d.logger.Info("Dispatcher ready (%d workers)", d.pool.Size())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			d.logger.Info("Input closed, stopping dispatcher")
			return nil
		}
		if err != nil {
			return err
		}

		resp, err := d.HandleFrame(ctx, frame)
		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}
		if err := writer.WriteFrame(resp); err != nil {
			return err
		}
	}
}

// HandleFrame processes one frame. It returns a nil response for
// notifications and errors.ErrShutdownRequested for shutdown.
func (d *Dispatcher) HandleFrame(ctx context.Context, frame []byte) (*rpc.Response, error) {
	msg, id, perr := rpc.Decode(frame)
	if perr != nil {
		d.logger.Warn("Rejected frame: %s", perr.Message)
		d.metrics.RecordRequest(ctx, "invalid", observability.StatusError, 0)
		return rpc.ErrorResponse(id, perr), nil
	}

	if msg.Method == MethodShutdown {
		d.logger.Info("Shutdown requested")
		return nil, fmerrors.ErrShutdownRequested
	}

	if msg.IsNotification() {
		d.notify(msg)
		return nil, nil
	}

	return d.call(ctx, msg), nil
}

func (d *Dispatcher) call(ctx context.Context, msg *rpc.Message) *rpc.Response {
	ctx = observability.ContextWithRequestID(ctx, string(msg.ID))
	ctx, span := d.tracer.StartSpan(ctx, observability.SpanRPCRequest, observability.MethodAttrs(msg.Method)...)
	logger := logging.FromContext(ctx, d.logger)
	start := time.Now()

	method := msg.Method
	var result any
	var err error
	if handler, ok := d.handlers[method]; ok {
		result, err = handler(ctx, msg)
	} else {
		method = "unknown"
		err = fmerrors.NewProtocolError(rpc.MethodNotFound, "Method not found", nil)
	}

	status := observability.StatusSuccess
	if err != nil {
		status = observability.StatusError
	}
	d.metrics.RecordRequest(ctx, method, status, time.Since(start))
	observability.EndSpan(span, err)

	if err != nil {
		if _, ok := fmerrors.AsProtocolError(err); ok {
			logger.Debug("%s failed: %v", msg.Method, err)
		} else {
			logger.Error("%s failed: %v", msg.Method, err)
		}
		return rpc.ErrorResponse(msg.ID, err)
	}
	return rpc.NewResponse(msg.ID, result)
}

func (d *Dispatcher) notify(msg *rpc.Message) {
	switch msg.Method {
	case NotificationLog:
		if msg.HasParams() {
			d.logger.Info("Client log: %s", msg.Params)
		}
	default:
		d.logger.Debug("Unknown notification: %s", msg.Method)
	}
}
