package observability

import "fmt"

// Config represents the complete observability configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json, text
}

// DefaultConfig returns the default observability configuration.
// Metrics and tracing are opt-in for a helper process.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			PrometheusPort: 9464,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			ZipkinEndpoint: "http://localhost:9411/api/v2/spans",
			SampleRate:     1.0,
			ServiceName:    "fastmd-sidecar",
			ServiceVersion: "1.0.0",
		},
	}
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Logging.Format)
	}
	if c.Metrics.Enabled && (c.Metrics.PrometheusPort < 0 || c.Metrics.PrometheusPort > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", c.Metrics.PrometheusPort)
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "zipkin":
		default:
			return fmt.Errorf("unsupported exporter: %s", c.Tracing.Exporter)
		}
	}
	return nil
}
