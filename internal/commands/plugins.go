package commands

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newPluginsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List available reader and writer plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := newRegistry()
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Kind", "Name", "Description"})
			for _, p := range registry.ListReaders() {
				table.Append([]string{"reader", p.Name(), p.Description()})
			}
			for _, p := range registry.ListWriters() {
				table.Append([]string{"writer", p.Name(), p.Description()})
			}
			table.Render()
			return nil
		},
	}
}
