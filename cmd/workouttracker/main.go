package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	// Autoloads .env file to supply environment variables
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lildude/workouttracker/internal/app"
	"github.com/lildude/workouttracker/internal/config"
	"github.com/lildude/workouttracker/internal/logger"
	"github.com/lildude/workouttracker/internal/pipeline"
	"github.com/lildude/workouttracker/internal/secret"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "workouttracker",
		Short:        "Sync Strava rides to a Google Sheet",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newExtractCmd(), newLoadCmd(), newSyncCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP endpoints behind the Cognito login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			a, err := app.NewServer(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeApp(a, log)
			return a.ListenAndServe(cmd.Context())
		},
	}
}

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Fetch activities from Strava into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := extractOptions(cmd)
			if err != nil {
				return err
			}
			return runPipeline(cmd, func(ctx context.Context, o *pipeline.Orchestrator) (any, error) {
				report, err := o.Extract(ctx, opts)
				return pipeline.Envelope{Extract: report}, err
			})
		},
	}
	addExtractFlags(cmd)
	return cmd
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Publish the stored rides to the sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, func(ctx context.Context, o *pipeline.Orchestrator) (any, error) {
				report, err := o.Load(ctx)
				return pipeline.Envelope{Load: report}, err
			})
		},
	}
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Extract then load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := extractOptions(cmd)
			if err != nil {
				return err
			}
			return runPipeline(cmd, func(ctx context.Context, o *pipeline.Orchestrator) (any, error) {
				report, err := o.Sync(ctx, opts)
				return pipeline.Envelope{Sync: report}, err
			})
		},
	}
	addExtractFlags(cmd)
	return cmd
}

func addExtractFlags(cmd *cobra.Command) {
	cmd.Flags().Int("after-days-ago", 1, "Only fetch activities started after this many days ago")
	cmd.Flags().Int("before-days-ago", 0, "Only fetch activities started before this many days ago")
	cmd.Flags().Int("per-page", 0, "Strava page size (default 30)")
}

func extractOptions(cmd *cobra.Command) (pipeline.ExtractOptions, error) {
	var opts pipeline.ExtractOptions
	after, err := cmd.Flags().GetInt("after-days-ago")
	if err != nil {
		return opts, err
	}
	if after < 0 {
		return opts, fmt.Errorf("after-days-ago must not be negative")
	}
	opts.AfterDaysAgo = &after

	if cmd.Flags().Changed("before-days-ago") {
		before, err := cmd.Flags().GetInt("before-days-ago")
		if err != nil {
			return opts, err
		}
		if before < 0 {
			return opts, fmt.Errorf("before-days-ago must not be negative")
		}
		opts.BeforeDaysAgo = &before
	}

	if opts.PerPage, err = cmd.Flags().GetInt("per-page"); err != nil {
		return opts, err
	}
	return opts, nil
}

func runPipeline(cmd *cobra.Command, fn func(context.Context, *pipeline.Orchestrator) (any, error)) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := cfg.ValidatePipeline(); err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeApp(a, log)

	out, err := fn(ctx, a.Pipeline)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func loadConfig(ctx context.Context) (*config.Config, logrus.FieldLogger, error) {
	resolver, err := secret.New(ctx, os.Getenv("SECRETS_BACKEND"), os.Getenv("AWS_REGION"))
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(ctx, resolver)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewLogger(cfg.LogLevel), nil
}

func closeApp(a *app.App, log logrus.FieldLogger) {
	if err := a.Close(context.Background()); err != nil {
		log.WithError(err).Warn("closing connections")
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
