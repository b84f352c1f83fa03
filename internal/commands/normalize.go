package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/momosync/momosync/pkg/phone"
)

func newNormalizeCommand() *cobra.Command {
	var countryCode string

	cmd := &cobra.Command{
		Use:   "normalize <number>...",
		Short: "Rewrite phone numbers in international form",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := phone.Normalizer{CountryCode: countryCode}
			for _, raw := range args {
				fmt.Fprintln(cmd.OutOrStdout(), n.Normalize(raw))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&countryCode, "country-code", phone.DefaultCountryCode, "calling code without the leading +")

	return cmd
}
