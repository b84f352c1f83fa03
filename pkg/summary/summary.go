// Package summary aggregates parsed transactions into cash flow totals.
package summary

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/sms"
)

// Totals holds money moved in each direction.
type Totals struct {
	CashIn  decimal.Decimal
	CashOut decimal.Decimal
	Count   int
}

// Balance returns cash in minus cash out.
func (t Totals) Balance() decimal.Decimal {
	return t.CashIn.Sub(t.CashOut)
}

func (t *Totals) add(txn *api.Transaction) {
	amount := decimal.NewFromFloat(txn.Amount)
	if txn.Direction == sms.CashOut.String() {
		t.CashOut = t.CashOut.Add(amount)
	} else {
		t.CashIn = t.CashIn.Add(amount)
	}
	t.Count++
}

// Summary is the aggregate of a set of transactions.
type Summary struct {
	// Currency is the currency of the first transaction.
	Currency string
	Totals
	// Networks holds totals keyed by network name.
	Networks map[string]Totals
	// From and To bound the transaction timestamps. Zero when unknown.
	From, To time.Time
}

// NetworkNames returns the networks present, sorted.
func (s Summary) NetworkNames() []string {
	names := make([]string, 0, len(s.Networks))
	for name := range s.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute aggregates txns.
func Compute(txns []*api.Transaction) Summary {
	s := Summary{
		Totals: Totals{
			CashIn:  decimal.Zero,
			CashOut: decimal.Zero,
		},
		Networks: make(map[string]Totals),
	}

	for _, txn := range txns {
		if s.Currency == "" {
			s.Currency = txn.Currency
		}
		s.Totals.add(txn)

		nt := s.Networks[txn.Network]
		nt.add(txn)
		s.Networks[txn.Network] = nt

		ts, err := time.Parse(time.RFC3339, txn.Timestamp)
		if err != nil {
			continue
		}
		if s.From.IsZero() || ts.Before(s.From) {
			s.From = ts
		}
		if ts.After(s.To) {
			s.To = ts
		}
	}
	return s
}

// Between returns the transactions whose timestamp lies in [from, to). A zero
// bound is open. Transactions with unparsable timestamps are dropped when
// either bound is set.
func Between(txns []*api.Transaction, from, to time.Time) []*api.Transaction {
	if from.IsZero() && to.IsZero() {
		return txns
	}

	var out []*api.Transaction
	for _, txn := range txns {
		ts, err := time.Parse(time.RFC3339, txn.Timestamp)
		if err != nil {
			continue
		}
		if !from.IsZero() && ts.Before(from) {
			continue
		}
		if !to.IsZero() && !ts.Before(to) {
			continue
		}
		out = append(out, txn)
	}
	return out
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders an amount with thousands separators, e.g. "UGX 150,000".
// Fractional amounts keep two decimals.
func FormatAmount(currency string, amount decimal.Decimal) string {
	var number string
	if amount.Equal(amount.Truncate(0)) {
		number = printer.Sprintf("%d", amount.IntPart())
	} else {
		number = printer.Sprintf("%.2f", amount.Round(2).InexactFloat64())
	}
	if currency == "" {
		return number
	}
	return currency + " " + number
}
