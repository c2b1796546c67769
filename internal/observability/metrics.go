package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records pool and dispatcher metrics. A collector built
// from a disabled config is valid and records nothing.
type MetricsCollector struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	// Task metrics
	tasks        metric.Int64Counter
	taskDuration metric.Float64Histogram
	taskPanics   metric.Int64Counter

	// Request metrics
	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram

	// Server for Prometheus scraping
	prometheusServer *http.Server
	listener         net.Listener
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port" mapstructure:"prometheus_port"`
}

// NewMetricsCollector creates a new metrics collector. It does not listen;
// call StartPrometheusServer to expose the scrape endpoint.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	meter := provider.Meter("fastmd")

	tasks, err := meter.Int64Counter(
		"fastmd.tasks.total",
		metric.WithDescription("Tasks executed by the worker pool"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks counter: %w", err)
	}

	taskDuration, err := meter.Float64Histogram(
		"fastmd.task.duration",
		metric.WithDescription("Renderer execution time per task in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task duration histogram: %w", err)
	}

	taskPanics, err := meter.Int64Counter(
		"fastmd.task.panics.total",
		metric.WithDescription("Renderer faults caught by the worker fault boundary"),
		metric.WithUnit("{panic}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task panics counter: %w", err)
	}

	requests, err := meter.Int64Counter(
		"fastmd.requests.total",
		metric.WithDescription("Request frames served by the dispatcher"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"fastmd.request.duration",
		metric.WithDescription("Request handling latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	collector := &MetricsCollector{
		meter:           meter,
		provider:        provider,
		registry:        registry,
		tasks:           tasks,
		taskDuration:    taskDuration,
		taskPanics:      taskPanics,
		requests:        requests,
		requestDuration: requestDuration,
	}

	return collector, nil
}

// Enabled reports whether the collector records anything.
func (m *MetricsCollector) Enabled() bool {
	return m != nil && m.meter != nil
}

// Registry exposes the prometheus registry backing the collector.
func (m *MetricsCollector) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// StartPrometheusServer serves /metrics on the loopback interface.
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	if m.registry == nil {
		return fmt.Errorf("metrics collector is disabled")
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.listener = listener
	m.prometheusServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = m.prometheusServer.Serve(listener)
	}()

	return nil
}

// Addr returns the scrape endpoint address, or "" when not serving.
func (m *MetricsCollector) Addr() string {
	if m == nil || m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// RegisterQueueDepth observes the number of queued tasks at collection time.
func (m *MetricsCollector) RegisterQueueDepth(depth func() int64) error {
	if !m.Enabled() || depth == nil {
		return nil
	}
	_, err := m.meter.Int64ObservableGauge(
		"fastmd.queue.depth",
		metric.WithDescription("Tasks waiting in the worker pool queue"),
		metric.WithUnit("{task}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(depth())
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create queue depth gauge: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	if m.prometheusServer != nil {
		if err := m.prometheusServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// RecordTask records one task execution.
func (m *MetricsCollector) RecordTask(ctx context.Context, engine string, status string, duration time.Duration) {
	if m == nil || m.tasks == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("engine", engine),
		attribute.String("status", status),
	}

	m.tasks.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.taskDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("engine", engine)))
	if status == StatusPanic {
		m.taskPanics.Add(ctx, 1, metric.WithAttributes(attribute.String("engine", engine)))
	}
}

// RecordRequest records one served request frame.
func (m *MetricsCollector) RecordRequest(ctx context.Context, method string, status string, latency time.Duration) {
	if m == nil || m.requests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("status", status),
	}

	m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.requestDuration.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("method", method)))
}

// Status labels shared by task and request metrics.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusPanic   = "panic"
	StatusError   = "error"
)
