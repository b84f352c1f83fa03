package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/summary"
	jsonwriter "github.com/momosync/momosync/pkg/writer/json"
	"github.com/momosync/momosync/pkg/writer/sqlite"
)

const dateLayout = "2006-01-02"

func newSummaryCommand() *cobra.Command {
	var (
		jsonPath   string
		sqlitePath string
		since      string
		until      string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print cash in and cash out totals per network",
		Long: "Summarizes transactions stored by the json or sqlite writer. Dates are\n" +
			"YYYY-MM-DD or RFC3339; --until is exclusive.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseDate(since)
			if err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			to, err := parseDate(until)
			if err != nil {
				return fmt.Errorf("--until: %w", err)
			}

			var txns []*api.Transaction
			switch {
			case jsonPath != "" && sqlitePath != "":
				return errors.New("use only one of --json and --sqlite")
			case jsonPath != "":
				txns, err = jsonwriter.Load(jsonPath)
			case sqlitePath != "":
				txns, err = sqlite.Load(cmd.Context(), sqlitePath)
			default:
				return errors.New("one of --json or --sqlite is required")
			}
			if err != nil {
				return fmt.Errorf("loading transactions: %w", err)
			}

			printSummary(cmd.OutOrStdout(), summary.Compute(summary.Between(txns, from, to)))
			return nil
		},
	}

	cmd.Flags().StringVar(&jsonPath, "json", "", "transactions file written by the json writer")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "database written by the sqlite writer")
	cmd.Flags().StringVar(&since, "since", "", "only include transactions at or after this date")
	cmd.Flags().StringVar(&until, "until", "", "only include transactions before this date")

	return cmd
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func printSummary(w io.Writer, s summary.Summary) {
	if s.Count == 0 {
		fmt.Fprintln(w, "no transactions")
		return
	}

	if !s.From.IsZero() {
		fmt.Fprintf(w, "%s to %s\n", s.From.Format(dateLayout), s.To.Format(dateLayout))
	}

	row := func(name string, t summary.Totals) []string {
		return []string{
			name,
			strconv.Itoa(t.Count),
			summary.FormatAmount(s.Currency, t.CashIn),
			summary.FormatAmount(s.Currency, t.CashOut),
			summary.FormatAmount(s.Currency, t.Balance()),
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Network", "Count", "Cash In", "Cash Out", "Balance"})
	for _, name := range s.NetworkNames() {
		table.Append(row(name, s.Networks[name]))
	}
	table.SetFooter(row("Total", s.Totals))
	table.Render()
}
