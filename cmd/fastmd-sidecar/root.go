package main

import (
	"fmt"

	"fastmd/internal/config"
	"fastmd/internal/logging"
	"fastmd/internal/observability"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cli carries resolved configuration from the root command to subcommands.
type cli struct {
	v          *viper.Viper
	configPath string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "fastmd-sidecar",
		Short: "Parallel Markdown/MDX transformer speaking NDJSON JSON-RPC on stdio",
		Long: fmt.Sprintf(`%s

Reads one JSON-RPC 2.0 request per line from stdin and writes one response
per line to stdout. Logs go to stderr.

%s
  fastmd-sidecar                         # Serve requests on stdio
  fastmd-sidecar --workers 4 --engine gomarkdown
  fastmd-sidecar render docs/*.md        # Transform files once
  fastmd-sidecar digest package.json     # Print a dependency digest`,
			bold("fastmd sidecar"),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initialize()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Path to a YAML config file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")
	flags.String("cache-dir", "", "Cache directory")
	flags.IntP("workers", "w", 0, "Worker count (0 = auto)")
	flags.Int("queue-size", 0, "Task queue capacity")
	flags.String("full-queue-policy", "", "Behavior when the queue is full (block, reject)")
	flags.StringP("engine", "e", "", "Default render engine (goldmark, gomarkdown, terminal, ansi)")
	flags.Bool("metrics", false, "Expose Prometheus metrics")
	flags.Int("metrics-port", 0, "Prometheus scrape port")

	bindings := map[string]string{
		config.KeyLogLevel:        "log-level",
		config.KeyLogFormat:       "log-format",
		config.KeyCacheDir:        "cache-dir",
		config.KeyWorkers:         "workers",
		config.KeyQueueSize:       "queue-size",
		config.KeyFullQueuePolicy: "full-queue-policy",
		config.KeyEngine:          "engine",
		config.KeyMetricsEnabled:  "metrics",
		config.KeyMetricsPort:     "metrics-port",
	}
	for key, name := range bindings {
		_ = c.v.BindPFlag(key, flags.Lookup(name))
	}

	rootCmd.AddCommand(newRenderCommand(c))
	rootCmd.AddCommand(newDigestCommand(c))

	return rootCmd
}

// initialize resolves configuration and installs the process logger.
func (c *cli) initialize() error {
	cfg, err := config.Load(c.v, c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logging.SetBase(observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}))
	return nil
}
