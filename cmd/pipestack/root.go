package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"arc-framework/pipestack/internal/config"
	"arc-framework/pipestack/internal/orchestrator"
	"arc-framework/pipestack/internal/seed"
	"arc-framework/pipestack/internal/telemetry"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	logFile   string
	workdir   string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

// errConfig marks failures to load or apply configuration.
var errConfig = errors.New("configuration error")

var rootCmd = &cobra.Command{
	Use:   "pipestack",
	Short: "Bring up the local data pipeline environment",
	Long: `pipestack takes a checkout of the pipeline project from nothing running
to services up and source data present: it checks the container runtime,
provisions .env from its template, starts the compose service set, waits
for it, prints its status and seeds the source database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also append JSON logs to this file")
	rootCmd.PersistentFlags().StringVar(&workdir, "workdir", "", "project directory holding the compose file and .env")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("%w: loading config: %w", errConfig, err)
		}

		// Flags take precedence over the config file.
		flags := cmd.Flags()
		if flags.Changed("log-level") || cfg.Telemetry.LogLevel == "" {
			cfg.Telemetry.LogLevel = logLevel
		}
		if flags.Changed("log-format") || cfg.Telemetry.LogFormat == "" {
			cfg.Telemetry.LogFormat = logFormat
		}
		if flags.Changed("log-file") {
			cfg.Telemetry.LogFile = logFile
		}
		if flags.Changed("workdir") {
			cfg.Paths.Workdir = workdir
		}

		if err := initLogger(cfg.Telemetry); err != nil {
			return fmt.Errorf("%w: %w", errConfig, err)
		}

		app, err = buildAppContext(cfg)
		if err != nil {
			return fmt.Errorf("%w: building app context: %w", errConfig, err)
		}
		return nil
	}

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute is the entry point called by main.
func Execute() {
	err := rootCmd.Execute()
	if app != nil {
		app.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var stepErr *orchestrator.StepError
	switch {
	case err == nil:
		return orchestrator.ExitOK
	case errors.As(err, &stepErr):
		return stepErr.Kind.ExitCode()
	case errors.Is(err, seed.ErrUnreachable):
		return seed.ExitUnreachable
	case errors.Is(err, errConfig):
		return orchestrator.ExitConfig
	default:
		return 1
	}
}

// logCloser releases the --log-file handle.
var logCloser = func() error { return nil }

func initLogger(t config.TelemetryConfig) error {
	logger, closeFn, err := telemetry.NewLogger(telemetry.LogOptions{
		Level:   t.LogLevel,
		Format:  t.LogFormat,
		Console: os.Stderr,
		File:    t.LogFile,
	})
	if err != nil {
		return err
	}
	logCloser = closeFn
	slog.SetDefault(logger)
	return nil
}
