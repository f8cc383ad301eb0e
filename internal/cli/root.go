// Package cli wires configuration, storage and the Telegram front-end into the
// memtest command.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/memtest/internal/config"
	"github.com/example/memtest/internal/experiment"
	"github.com/example/memtest/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile        string
	ExperimentFile string
	LogLevel       string

	// Populated before any subcommand runs
	Config *config.Config
	Logger *zap.Logger
}

// NewRootCommand creates the root command for the memtest CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "memtest",
		Short: "Run the word memorization experiment",
		Long: `memtest runs a free-recall memorization experiment over Telegram.

Participants are assigned at random to study a word list with or without
background music, then type the words they remember. Results are stored in
SQLite or PostgreSQL and can be exported as CSV or XLSX.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				_ = opts.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file read before the environment")
	cmd.PersistentFlags().StringVar(&opts.ExperimentFile, "experiment", "", "experiment YAML file (overrides EXPERIMENT_FILE)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	cmd.AddCommand(NewBotCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewWordsCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return err
	}
	if o.ExperimentFile != "" {
		cfg.ExperimentFile = o.ExperimentFile
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	o.Config, o.Logger = cfg, logger
	return nil
}

// protocol loads the configured experiment file or the built-in protocol
func (o *RootOptions) protocol() (*experiment.Protocol, error) {
	if o.Config.ExperimentFile == "" {
		return experiment.Default(), nil
	}
	p, err := experiment.Load(o.Config.ExperimentFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}
	return p, nil
}
