package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"fastmd/internal/observability"
	"fastmd/internal/parallel"
	"fastmd/internal/render"

	"gopkg.in/yaml.v3"
)

// Config is the complete sidecar configuration. Logging, metrics and tracing
// sit at the top level next to the sidecar's own sections.
type Config struct {
	Parallel ParallelConfig `yaml:"parallel" mapstructure:"parallel"`
	Render   RenderConfig   `yaml:"render" mapstructure:"render"`
	CacheDir string         `yaml:"cache_dir" mapstructure:"cache_dir"`

	observability.Config `yaml:",inline" mapstructure:",squash"`
}

// ParallelConfig sizes the worker pool.
type ParallelConfig struct {
	// Enabled false runs every task on a single worker.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Workers of zero selects parallel.RecommendedWorkers.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// BatchSize is how many transformBatch tasks are queued per worker in
	// one round. Zero submits a whole request at once.
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`
	QueueSize       int    `yaml:"queue_size" mapstructure:"queue_size"`
	FullQueuePolicy string `yaml:"full_queue_policy" mapstructure:"full_queue_policy"` // block, reject
}

// RenderConfig configures engines and the transform cache.
type RenderConfig struct {
	DefaultEngine string        `yaml:"default_engine" mapstructure:"default_engine"`
	TerminalWidth int           `yaml:"terminal_width" mapstructure:"terminal_width"`
	CacheSize     int           `yaml:"cache_size" mapstructure:"cache_size"` // 0 disables the cache
	CacheTTL      time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Parallel: ParallelConfig{
			Enabled:         true,
			BatchSize:       10,
			QueueSize:       parallel.DefaultQueueSize,
			FullQueuePolicy: parallel.PolicyBlock.String(),
		},
		Render: RenderConfig{
			DefaultEngine: render.EngineGoldmark,
			TerminalWidth: render.DefaultTerminalWidth,
			CacheSize:     512,
			CacheTTL:      10 * time.Minute,
		},
		Config: observability.DefaultConfig(),
	}
}

// WorkerCount resolves the pool size.
func (c Config) WorkerCount() int {
	if !c.Parallel.Enabled {
		return 1
	}
	if c.Parallel.Workers <= 0 {
		return parallel.RecommendedWorkers()
	}
	return c.Parallel.Workers
}

// BatchRoundSize is the number of transformBatch tasks in flight at once.
func (c Config) BatchRoundSize() int {
	if c.Parallel.BatchSize <= 0 {
		return 0
	}
	return c.Parallel.BatchSize * c.WorkerCount()
}

// Validate checks ranges and enumerated fields.
func (c Config) Validate() error {
	var errs []error
	if c.Parallel.Workers < 0 {
		errs = append(errs, fmt.Errorf("parallel.workers must not be negative: %d", c.Parallel.Workers))
	}
	if c.Parallel.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("parallel.batch_size must not be negative: %d", c.Parallel.BatchSize))
	}
	if c.Parallel.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("parallel.queue_size must be positive: %d", c.Parallel.QueueSize))
	}
	if _, err := parallel.ParseFullQueuePolicy(c.Parallel.FullQueuePolicy); err != nil {
		errs = append(errs, err)
	}
	switch c.Render.DefaultEngine {
	case "", render.EngineGoldmark, render.EngineGomarkdown, render.EngineTerminal, render.EngineANSI:
	default:
		errs = append(errs, fmt.Errorf("unsupported render.default_engine: %s", c.Render.DefaultEngine))
	}
	if c.Render.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("render.cache_size must not be negative: %d", c.Render.CacheSize))
	}
	if err := c.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadFile merges a YAML file over the defaults. A missing file is not an
// error; an empty path returns the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
