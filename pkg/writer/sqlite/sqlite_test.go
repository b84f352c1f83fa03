package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/logging"
)

func store(t *testing.T, path string, txns ...*api.Transaction) int {
	t.Helper()

	w, err := New(Config{Path: path, BatchSize: 2}, logging.Discard())
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
	return len(acks)
}

func TestWriter_UpsertAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momosync.db")

	acked := store(t, path,
		&api.Transaction{ID: "1", MessageID: "a", Amount: 150000, Currency: "UGX", Direction: "Cash In", Network: "MTN", Timestamp: "2025-03-01T09:00:00Z"},
		&api.Transaction{ID: "2", MessageID: "b", Amount: 50000, Currency: "UGX", Direction: "Cash Out", Network: "AIRTEL", Timestamp: "2025-03-02T09:00:00Z"},
		&api.Transaction{MessageID: "c", Amount: 1000, Currency: "UGX", Direction: "Cash Out", Network: "MTN", Timestamp: "2025-03-03T09:00:00Z"},
	)
	if acked != 3 {
		t.Errorf("acks: got %d, want 3", acked)
	}

	store(t, path,
		&api.Transaction{ID: "9", MessageID: "b", Amount: 60000, Currency: "UGX", Direction: "Cash Out", Network: "AIRTEL", Timestamp: "2025-03-02T09:00:00Z"},
	)

	txns, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txns))
	}
	if txns[1].MessageID != "b" || txns[1].Amount != 60000 {
		t.Errorf("upsert: got %+v", txns[1])
	}
	if txns[1].ID != "2" {
		t.Errorf("upsert kept id: got %q, want 2", txns[1].ID)
	}
	if txns[2].ID == "" {
		t.Error("missing id was not generated")
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(Config{}, logging.Discard()); err == nil {
		t.Error("expected error for empty path")
	}
}
