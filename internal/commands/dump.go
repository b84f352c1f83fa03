package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/momosync/momosync/pkg/client"
	"github.com/momosync/momosync/pkg/config"
	"github.com/momosync/momosync/pkg/logging"
	"github.com/momosync/momosync/pkg/reader/gmail"
	"github.com/momosync/momosync/pkg/reader/mbox"
)

func newDumpCommand() *cobra.Command {
	var (
		configPath string
		query      string
		limit      int64
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Export SMS forwarded to Gmail into an mbox file",
		Long: "Fetches messages matching the query without marking them read and writes\n" +
			"them to an mbox file that the mbox reader can replay.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.Setup(logging.DefaultConfig())

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			httpClient, err := client.New(cfg.ClientSecretFile, gmailapi.GmailReadonlyScope)
			if err != nil {
				return fmt.Errorf("creating http client: %w", err)
			}

			reader, err := gmail.New(httpClient, gmail.Config{Query: query}, logger)
			if err != nil {
				return err
			}

			msgs, err := reader.Fetch(cmd.Context(), limit)
			if err != nil {
				return err
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating %s: %w", outPath, err)
			}
			defer f.Close()

			if err := mbox.Export(f, msgs); err != nil {
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", outPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d messages to %s\n", len(msgs), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file (default momosync.json if present)")
	cmd.Flags().StringVarP(&query, "query", "q", "label:SMS", "Gmail search query")
	cmd.Flags().Int64Var(&limit, "limit", 100, "maximum number of messages to export")
	cmd.Flags().StringVarP(&outPath, "out", "o", "sms.mbox", "mbox file to write")

	return cmd
}
