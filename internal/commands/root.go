// Package commands implements the momosync command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/momosync/momosync/internal/buildinfo"
	"github.com/momosync/momosync/internal/plugins"
	gmailplugin "github.com/momosync/momosync/pkg/plugins/readers/gmail"
	mboxplugin "github.com/momosync/momosync/pkg/plugins/readers/mbox"
	webhookplugin "github.com/momosync/momosync/pkg/plugins/readers/webhook"
	csvplugin "github.com/momosync/momosync/pkg/plugins/writers/csv"
	dynamodbplugin "github.com/momosync/momosync/pkg/plugins/writers/dynamodb"
	jsonplugin "github.com/momosync/momosync/pkg/plugins/writers/json"
	postgresplugin "github.com/momosync/momosync/pkg/plugins/writers/postgres"
	sheetsplugin "github.com/momosync/momosync/pkg/plugins/writers/sheets"
	sqliteplugin "github.com/momosync/momosync/pkg/plugins/writers/sqlite"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "momosync",
		Short:   "Turn mobile money SMS notifications into transaction records",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRunCommand(),
		newParseCommand(),
		newNormalizeCommand(),
		newSummaryCommand(),
		newPluginsCommand(),
		newStatusCommand(),
		newDumpCommand(),
	)

	return rootCmd
}

// newRegistry returns a registry holding every built-in plugin.
func newRegistry() (*plugins.Registry, error) {
	registry := plugins.NewRegistry()

	readers := []plugins.ReaderPlugin{
		&gmailplugin.Plugin{},
		&mboxplugin.Plugin{},
		&webhookplugin.Plugin{},
	}
	for _, p := range readers {
		if err := registry.RegisterReader(p); err != nil {
			return nil, fmt.Errorf("registering %s reader: %w", p.Name(), err)
		}
	}

	writers := []plugins.WriterPlugin{
		&sheetsplugin.Plugin{},
		&csvplugin.Plugin{},
		&jsonplugin.Plugin{},
		&postgresplugin.Plugin{},
		&sqliteplugin.Plugin{},
		&dynamodbplugin.Plugin{},
	}
	for _, p := range writers {
		if err := registry.RegisterWriter(p); err != nil {
			return nil, fmt.Errorf("registering %s writer: %w", p.Name(), err)
		}
	}

	return registry, nil
}
