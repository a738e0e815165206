package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/williampepple1/scrapebot/internal/config"
	"github.com/williampepple1/scrapebot/internal/observability"
)

// NewRootCommand builds a fresh command tree. Every call returns
// independent flag state.
func NewRootCommand() *cobra.Command {
	logCfg := config.DefaultLoggerConfig()

	rootCmd := &cobra.Command{
		Use:           "scrapebot",
		Short:         "scrapebot runs scripted headless-browser jobs.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			observability.InitializeLogger(logCfg)
			observability.GetLogger().Debug("Starting scrapebot", zap.String("version", Version))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logCfg.Level, "log-level", logCfg.Level, "diagnostic log level (debug, info, warn, error)")
	flags.StringVar(&logCfg.Format, "log-format", logCfg.Format, "diagnostic log format (console, json)")
	flags.StringVar(&logCfg.LogFile, "log-file", "", "also write diagnostics as JSON to this rotated file")
	flags.BoolVar(&logCfg.AddSource, "log-source", false, "add caller information to diagnostics")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCommand(), newConfigCommand(), newTailCommand())
	return rootCmd
}

// Execute runs the command tree with ctx and reports a failure once.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	// a missing uid has already been reported on stderr
	if err != nil && !errors.Is(err, config.ErrMissingUID) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}
