package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/momosync/momosync/internal/ingest"
	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/logging"
	"github.com/momosync/momosync/pkg/phone"
	"github.com/momosync/momosync/pkg/sms"
	"github.com/momosync/momosync/pkg/summary"
)

func newParseCommand() *cobra.Command {
	var (
		sender      string
		currency    string
		countryCode string
	)

	cmd := &cobra.Command{
		Use:   "parse [message...]",
		Short: "Parse one SMS body and print the extracted transaction",
		Long:  "Parses the message given as arguments, or read from stdin when no arguments are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading message: %w", err)
				}
				body = string(data)
			}
			body = strings.TrimSpace(body)

			stage := ingest.New(ingest.Config{
				Currency:    currency,
				CountryCode: countryCode,
			}, logging.Discard())

			txn, err := stage.Process(&api.Message{
				ID:         "cli",
				Sender:     sender,
				Body:       body,
				ReceivedAt: time.Now(),
				Source:     "cli",
			})
			if err != nil {
				return err
			}

			printTransaction(cmd.OutOrStdout(), txn)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sender, "sender", "s", "", "sender label of the message")
	cmd.Flags().StringVar(&currency, "currency", sms.DefaultCurrency, "currency code used in message bodies")
	cmd.Flags().StringVar(&countryCode, "country-code", phone.DefaultCountryCode, "calling code for phone counterparties")

	return cmd
}

func printTransaction(w io.Writer, txn *api.Transaction) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"Network", txn.Network})
	table.Append([]string{"Type", txn.Direction})
	table.Append([]string{"Amount", summary.FormatAmount(txn.Currency, decimal.NewFromFloat(txn.Amount))})
	table.Append([]string{"Counterparty", txn.Counterparty})
	if txn.CounterpartyPhone != "" {
		table.Append([]string{"Phone", txn.CounterpartyPhone})
	}
	table.Append([]string{"Reference", txn.Reference})
	table.Render()
}
