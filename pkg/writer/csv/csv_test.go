package csv

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/logging"
)

func sample(id string, amount float64) *api.Transaction {
	return &api.Transaction{
		ID:           id,
		MessageID:    "msg-" + id,
		Amount:       amount,
		Currency:     "UGX",
		Direction:    "Cash In",
		Network:      "MTN",
		Counterparty: "John Okello",
		Reference:    "MTN123456",
		Sender:       "MTN Mobile Money",
		Timestamp:    "2025-03-01T09:00:00Z",
		Source:       "mbox",
	}
}

func writeAll(t *testing.T, path string, txns ...*api.Transaction) []string {
	t.Helper()

	w, err := New(Config{FilePath: path, BatchSize: 10}, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan *api.Transaction, len(txns))
	acks := make(chan string, len(txns))
	for _, txn := range txns {
		in <- txn
	}
	close(in)

	if err := w.Write(context.Background(), in, acks); err != nil {
		t.Fatalf("Write: %v", err)
	}

	close(acks)
	var ids []string
	for id := range acks {
		ids = append(ids, id)
	}
	return ids
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestWriter_HeaderOnceAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.csv")

	acked := writeAll(t, path, sample("1", 150000))
	if !reflect.DeepEqual(acked, []string{"msg-1"}) {
		t.Errorf("acks: got %v", acked)
	}
	writeAll(t, path, sample("2", 75000.5))

	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want 3", len(rows))
	}
	if !reflect.DeepEqual(rows[0], Headers) {
		t.Errorf("header: got %v", rows[0])
	}
	if rows[1][4] != "150000.00" || rows[2][4] != "75000.50" {
		t.Errorf("amounts: got %q, %q", rows[1][4], rows[2][4])
	}
	if rows[2][0] != "2" || rows[2][11] != "msg-2" {
		t.Errorf("row 2: got %v", rows[2])
	}
}

func TestRecord_MatchesHeaders(t *testing.T) {
	if got := len(Record(sample("1", 1))); got != len(Headers) {
		t.Errorf("record has %d columns, headers %d", got, len(Headers))
	}
}
