package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dc2kook/internal/app"
	"dc2kook/internal/config"
	"dc2kook/internal/logger"
	"dc2kook/internal/media"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dc2kook",
		Short: "Relay Discord channel messages to Kook",
		Example: `  dc2kook
  dc2kook run
  dc2kook cleanup
  dc2kook options`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelay(cmd.Context())
		},
	}

	cmd.AddCommand(
		newRunCommand(),
		newCleanupCommand(),
		newOptionsCommand(),
	)

	return cmd
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and forward messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelay(cmd.Context())
		},
	}
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete transient media files older than the configured horizons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadSettings()
			if err != nil {
				return err
			}

			s, client, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close(context.Background())

			opts, err := config.Snapshot(ctx, s)
			if err != nil {
				return err
			}

			r, err := media.NewRelay(cfg.MediaDir, nil)
			if err != nil {
				return err
			}

			removed, err := r.CleanupAll(opts.ImageCleanupHours, opts.VideoCleanupHours)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d transient media files (image %dh, video %dh)\n",
				removed, opts.ImageCleanupHours, opts.VideoCleanupHours)
			return err
		},
	}
}

func newOptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "Print the decoded forwarding options as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadSettings()
			if err != nil {
				return err
			}

			s, client, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close(context.Background())

			opts, err := config.Snapshot(ctx, s)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(opts)
		},
	}
}

func loadSettings() (*config.Settings, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.InitWithLevel(cfg.LogLevel)
	return cfg, nil
}

func runRelay(parent context.Context) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.L().Errorf("Shutdown finished with errors: %v", err)
		}
	}()

	return a.Run(ctx)
}

func main() {
	logger.Init()

	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logger.L().Errorf("dc2kook: %v", err)
		os.Exit(1)
	}
}
