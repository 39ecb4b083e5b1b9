package main

import (
	"context"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/factorlab/internal/config"
	"github.com/aristath/factorlab/internal/di"
	"github.com/aristath/factorlab/pkg/logger"
)

// app is the state shared by every subcommand once the root pre-run has wired it.
type app struct {
	envFile  string
	logLevel string

	cfg       *config.Config
	log       zerolog.Logger
	container *di.Container
	stderr    io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer a.close()
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "factorlab",
		Short: "Factor-model regressions of stock returns",
		Long: `factorlab regresses excess stock returns on common risk factors, over the
whole sample with HAC(1) standard errors and over rolling windows.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env", "", "env file to load before .env and the environment")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL (trace, debug, info, warn, error)")

	root.AddCommand(
		newImportCmd(a),
		newBuildFactorsCmd(a),
		newWholeCmd(a),
		newRollingCmd(a),
		newCorrelationsCmd(a),
		newPCACmd(a),
		newBatchCmd(a),
		newNamesCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	a.log = logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: a.stderr,
	})
	logger.SetGlobalLogger(a.log)

	container, err := di.Wire(ctx, cfg, a.log)
	if err != nil {
		return err
	}
	a.container = container
	return nil
}

// loadStore loads the return series store from the configured source
func (a *app) loadStore(ctx context.Context) error {
	if err := a.container.Store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load %s data: %w", a.cfg.Source, err)
	}
	return nil
}

func (a *app) close() {
	if a.container != nil {
		_ = a.container.Close()
	}
}
