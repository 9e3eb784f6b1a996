// Package cli implements the monitor command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cybermonitor/monitor-stack/common/config"
	"github.com/cybermonitor/monitor-stack/common/logging"
)

const version = "0.1.0"

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the monitor command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "monitor",
		Short: "Host telemetry bridge",
		Long: `monitor runs the telemetry collector, streams its output to connected
dashboards and records the anomalies it reports.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/monitor/config.yaml)")

	load := func() (*config.Config, *logging.Logger, error) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		logger := logging.New(
			logging.ParseLevel(cfg.Logging.Level),
			cfg.Logging.Format,
		).With(logging.Service("monitor"))
		logging.SetDefault(logger)
		if cfgFile != "" {
			slog.Debug("Loaded configuration", slog.String("config_path", cfgFile))
		}
		return cfg, logger, nil
	}

	root.AddCommand(
		newServeCommand(load),
		newMigrateCommand(load),
		newHistoryCommand(load),
		newInspectCommand(),
	)
	return root
}

type loader func() (*config.Config, *logging.Logger, error)
