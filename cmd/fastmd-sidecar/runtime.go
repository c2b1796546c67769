package main

import (
	"context"
	"errors"
	"fmt"

	"fastmd/internal/config"
	"fastmd/internal/logging"
	"fastmd/internal/observability"
	"fastmd/internal/parallel"
	"fastmd/internal/render"
	"fastmd/internal/sidecar"
)

// runtime owns the long-lived components of one process.
type runtime struct {
	cfg        config.Config
	logger     logging.Logger
	metrics    *observability.MetricsCollector
	tracer     *observability.TracerProvider
	registry   *render.Registry
	pool       *parallel.Pool
	cache      *sidecar.TransformCache
	dispatcher *sidecar.Dispatcher
}

func newRuntime(cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logging.NewComponentLogger("sidecar")}
	if err := rt.build(); err != nil {
		_ = rt.close(context.Background())
		return nil, err
	}
	if cfg.CacheDir != "" {
		rt.logger.Info("Cache directory: %s", cfg.CacheDir)
	}
	return rt, nil
}

func (rt *runtime) build() error {
	cfg := rt.cfg
	var err error

	rt.metrics, err = observability.NewMetricsCollector(cfg.Metrics)
	if err != nil {
		return err
	}
	rt.tracer, err = observability.NewTracerProvider(cfg.Tracing)
	if err != nil {
		return err
	}

	rt.registry, err = render.NewRegistry(render.Options{
		DefaultEngine: cfg.Render.DefaultEngine,
		TerminalWidth: cfg.Render.TerminalWidth,
	})
	if err != nil {
		return err
	}

	policy, err := parallel.ParseFullQueuePolicy(cfg.Parallel.FullQueuePolicy)
	if err != nil {
		return err
	}
	rt.pool, err = parallel.NewBuilder().
		Workers(cfg.WorkerCount()).
		QueueSize(cfg.Parallel.QueueSize).
		FullQueuePolicy(policy).
		Renderer(rt.registry).
		Metrics(rt.metrics).
		Build()
	if err != nil {
		return err
	}

	if rt.metrics.Enabled() {
		if err = rt.metrics.RegisterQueueDepth(func() int64 { return int64(rt.pool.QueueDepth()) }); err != nil {
			return err
		}
		if cfg.Metrics.PrometheusPort > 0 {
			if err = rt.metrics.StartPrometheusServer(cfg.Metrics.PrometheusPort); err != nil {
				return err
			}
			rt.logger.Info("Prometheus metrics on %s", rt.metrics.Addr())
		}
	}

	if cfg.Render.CacheSize > 0 {
		rt.cache, err = sidecar.NewTransformCache(sidecar.CacheConfig{
			MaxSize: cfg.Render.CacheSize,
			TTL:     cfg.Render.CacheTTL,
		})
		if err != nil {
			return err
		}
	}

	rt.dispatcher, err = sidecar.NewDispatcher(sidecar.Options{
		Pool:           rt.pool,
		Registry:       rt.registry,
		Cache:          rt.cache,
		Metrics:        rt.metrics,
		Tracer:         rt.tracer,
		BatchRoundSize: cfg.BatchRoundSize(),
	})
	if err != nil {
		return err
	}

	return nil
}

// close drains the pool, then flushes metrics and traces.
func (rt *runtime) close(ctx context.Context) error {
	var errs []error
	if rt.pool != nil {
		if err := rt.pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pool shutdown: %w", err))
		}
	}
	if rt.metrics != nil {
		if err := rt.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	if rt.tracer != nil {
		if err := rt.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
