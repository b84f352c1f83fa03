package buffered

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/logging"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]*api.Transaction
	fail    error
}

func (r *recorder) flush(_ context.Context, txns []*api.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.batches = append(r.batches, txns)
	return nil
}

func (r *recorder) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, b := range r.batches {
		out = append(out, len(b))
	}
	return out
}

func txn(id string) *api.Transaction {
	return &api.Transaction{ID: id, MessageID: id, Amount: 1000, Network: "MTN", Direction: "Cash In"}
}

func TestWrite_BatchesAndAcks(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{BatchSize: 2, FlushInterval: time.Hour}, logging.Discard())

	in := make(chan *api.Transaction, 5)
	acks := make(chan string, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		in <- txn(id)
	}
	close(in)

	if err := w.Write(context.Background(), in, acks); err != nil {
		t.Fatalf("Write: %v", err)
	}

	sizes := rec.sizes()
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes: got %v, want [2 2 1]", sizes)
	}

	close(acks)
	var got []string
	for id := range acks {
		got = append(got, id)
	}
	if len(got) != 5 {
		t.Errorf("acks: got %v, want 5 ids", got)
	}
	if w.BufferLen() != 0 {
		t.Errorf("buffer not drained: %d", w.BufferLen())
	}
}

func TestWrite_NoAckOnFailure(t *testing.T) {
	rec := &recorder{fail: errors.New("disk full")}
	w := New(rec.flush, Config{BatchSize: 10, FlushInterval: time.Hour}, logging.Discard())

	in := make(chan *api.Transaction, 1)
	acks := make(chan string, 1)
	in <- txn("a")
	close(in)

	if err := w.Write(context.Background(), in, acks); err == nil {
		t.Fatal("expected flush error")
	}

	select {
	case id := <-acks:
		t.Errorf("unexpected ack %q after failed flush", id)
	default:
	}

	if w.BufferLen() != 1 {
		t.Errorf("failed batch should stay buffered: got %d", w.BufferLen())
	}
}

func TestWrite_IntervalFlush(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, logging.Discard())

	in := make(chan *api.Transaction)
	acks := make(chan string, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Write(ctx, in, acks) }()

	in <- txn("a")

	select {
	case id := <-acks:
		if id != "a" {
			t.Errorf("ack: got %q, want %q", id, "a")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for interval flush")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want %v", err, context.Canceled)
	}
}

func TestWrite_ShutdownFlushes(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{BatchSize: 100, FlushInterval: time.Hour}, logging.Discard())

	in := make(chan *api.Transaction, 1)
	in <- txn("a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Write(ctx, in, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for w.BufferLen() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sizes := rec.sizes(); len(sizes) != 1 || sizes[0] != 1 {
		t.Errorf("batch sizes: got %v, want [1]", sizes)
	}
}
