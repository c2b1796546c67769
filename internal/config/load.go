package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Keys shared by environment bindings and command-line flags.
const (
	KeyParallelEnabled = "parallel.enabled"
	KeyWorkers         = "parallel.workers"
	KeyBatchSize       = "parallel.batch_size"
	KeyQueueSize       = "parallel.queue_size"
	KeyFullQueuePolicy = "parallel.full_queue_policy"
	KeyEngine          = "render.default_engine"
	KeyCacheSize       = "render.cache_size"
	KeyCacheDir        = "cache_dir"
	KeyLogLevel        = "logging.level"
	KeyLogFormat       = "logging.format"
	KeyMetricsEnabled  = "metrics.enabled"
	KeyMetricsPort     = "metrics.prometheus_port"
	KeyTracingEnabled  = "tracing.enabled"
	KeyTracingExporter = "tracing.exporter"
)

// envBindings maps config keys to their environment variables.
var envBindings = map[string]string{
	KeyParallelEnabled: "FASTMD_PARALLEL",
	KeyWorkers:         "FASTMD_WORKERS",
	KeyBatchSize:       "FASTMD_BATCH_SIZE",
	KeyQueueSize:       "FASTMD_QUEUE_SIZE",
	KeyFullQueuePolicy: "FASTMD_FULL_QUEUE_POLICY",
	KeyEngine:          "FASTMD_ENGINE",
	KeyCacheSize:       "FASTMD_CACHE_SIZE",
	KeyCacheDir:        "FASTMD_CACHE_DIR",
	KeyLogLevel:        "FASTMD_LOG_LEVEL",
	KeyLogFormat:       "FASTMD_LOG_FORMAT",
	KeyMetricsEnabled:  "FASTMD_METRICS",
	KeyMetricsPort:     "FASTMD_METRICS_PORT",
	KeyTracingEnabled:  "FASTMD_TRACING",
	KeyTracingExporter: "FASTMD_TRACING_EXPORTER",
}

// Load resolves the configuration. Precedence, lowest first: defaults, the
// YAML file at path, FASTMD_* environment variables, then any flags the
// caller bound to v under the Key* names.
func Load(v *viper.Viper, path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, err
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return cfg, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if v.IsSet(KeyParallelEnabled) {
		// Anything other than "false" keeps the pool parallel.
		cfg.Parallel.Enabled = !strings.EqualFold(strings.TrimSpace(v.GetString(KeyParallelEnabled)), "false")
	}
	setInt(v, KeyWorkers, &cfg.Parallel.Workers)
	setInt(v, KeyBatchSize, &cfg.Parallel.BatchSize)
	setInt(v, KeyQueueSize, &cfg.Parallel.QueueSize)
	setString(v, KeyFullQueuePolicy, &cfg.Parallel.FullQueuePolicy)
	setString(v, KeyEngine, &cfg.Render.DefaultEngine)
	setInt(v, KeyCacheSize, &cfg.Render.CacheSize)
	setString(v, KeyCacheDir, &cfg.CacheDir)
	setString(v, KeyLogLevel, &cfg.Logging.Level)
	setString(v, KeyLogFormat, &cfg.Logging.Format)
	setBool(v, KeyMetricsEnabled, &cfg.Metrics.Enabled)
	setInt(v, KeyMetricsPort, &cfg.Metrics.PrometheusPort)
	setBool(v, KeyTracingEnabled, &cfg.Tracing.Enabled)
	setString(v, KeyTracingExporter, &cfg.Tracing.Exporter)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = strings.TrimSpace(v.GetString(key))
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}
