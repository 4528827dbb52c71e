package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"PollutionSync/internal/app"
	"PollutionSync/internal/config"
	"PollutionSync/internal/logging"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pollutionsync",
		Short:         "Synchronizes city pollution data and descriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newJobCommand("ingest", "Run the pollution ingestion once", app.JobIngestion))
	cmd.AddCommand(newJobCommand("enrich", "Run the description enrichment once", app.JobEnrichment))
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and run the scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), true, func(ctx context.Context, a *app.Application) error {
				return a.Serve(ctx)
			})
		},
	}
}

func newJobCommand(use, short, job string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), true, func(ctx context.Context, a *app.Application) error {
				return a.RunJob(ctx, job)
			})
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), false, func(ctx context.Context, a *app.Application) error {
				return a.Migrate(ctx)
			})
		},
	}
}

func withApplication(ctx context.Context, validate bool, fn func(context.Context, *app.Application) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Load()
	if validate {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application startup failed", "error", err)
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("application close failed", "error", err)
		}
	}()

	if err := fn(ctx, application); err != nil {
		logger.Error("application stopped", "error", err)
		return err
	}
	return nil
}
