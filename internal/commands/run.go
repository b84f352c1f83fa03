package commands

import (
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/momosync/momosync/internal/daemon"
	"github.com/momosync/momosync/pkg/client"
	"github.com/momosync/momosync/pkg/config"
	"github.com/momosync/momosync/pkg/logging"
)

func newRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Read messages from the configured reader and store parsed transactions",
		Long: "Runs the pipeline until interrupted, or until a one-shot reader such as mbox\n" +
			"runs out of messages. Plugins are chosen with MOMOSYNC_READER and MOMOSYNC_WRITER.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.Setup(logging.DefaultConfig())

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if cfg.ReaderPlugin == "" || cfg.WriterPlugin == "" {
				return errors.New("MOMOSYNC_READER and MOMOSYNC_WRITER are required")
			}

			registry, err := newRegistry()
			if err != nil {
				return err
			}
			logger.Info("plugins registered",
				"readers", len(registry.ListReaders()),
				"writers", len(registry.ListWriters()),
			)

			scopes, err := registry.GetAllScopes(cfg.ReaderPlugin, cfg.WriterPlugin)
			if err != nil {
				return fmt.Errorf("getting required scopes: %w", err)
			}

			var httpClient *http.Client
			if len(scopes) > 0 {
				logger.Info("OAuth scopes required", "scopes", scopes)
				httpClient, err = client.New(cfg.ClientSecretFile, scopes...)
				if err != nil {
					return fmt.Errorf("creating http client: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stats, err := daemon.New(registry, httpClient, logger).Run(ctx, cfg)
			if err != nil {
				logger.Error("daemon failed", "error", err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "accepted %d, skipped %d, rejected %d\n",
				stats.Accepted, stats.Skipped, stats.Rejected)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file (default momosync.json if present)")

	return cmd
}
