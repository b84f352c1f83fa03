// Package json implements a Writer that keeps transactions in a JSON file.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/writer/buffered"
)

// Writer writes transactions to a JSON file with buffered batching.
// Transactions already in the file are kept; a message ID seen before
// replaces the earlier record.
type Writer struct {
	filePath     string
	transactions []*api.Transaction
	index        map[string]int
	mu           sync.Mutex
	buffered     *buffered.Writer
	logger       *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string
	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	FlushInterval time.Duration
}

// New creates a new JSON writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		filePath:     cfg.FilePath,
		transactions: make([]*api.Transaction, 0),
		index:        make(map[string]int),
		logger:       logger,
	}

	if err := w.loadExisting(); err != nil {
		return nil, fmt.Errorf("loading existing transactions: %w", err)
	}

	w.buffered = buffered.New(w.flushBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "json_buffer"))

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.transactions))
	return w, nil
}

func (w *Writer) loadExisting() error {
	txns, err := Load(w.filePath)
	if err != nil {
		return err
	}
	for _, t := range txns {
		w.index[t.MessageID] = len(w.transactions)
		w.transactions = append(w.transactions, t)
	}
	return nil
}

// Load reads the transactions stored at path. A missing or empty file holds
// no transactions.
func Load(path string) ([]*api.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var txns []*api.Transaction
	if err := json.Unmarshal(data, &txns); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return txns, nil
}

// Write consumes transactions from the input channel and writes them to JSON.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	return w.buffered.Write(ctx, in, ackChan)
}

// flushBatch merges a batch and rewrites the whole file; JSON arrays cannot
// be appended in place.
func (w *Writer) flushBatch(_ context.Context, transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range transactions {
		if i, ok := w.index[t.MessageID]; ok {
			w.transactions[i] = t
			continue
		}
		w.index[t.MessageID] = len(w.transactions)
		w.transactions = append(w.transactions, t)
	}

	data, err := json.MarshalIndent(w.transactions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	// The file is replaced atomically.
	tmp, err := os.CreateTemp(filepath.Dir(w.filePath), ".momosync-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing json file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.filePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing json file: %w", err)
	}

	w.logger.Debug("wrote transactions to json",
		"batch_count", len(transactions),
		"total_count", len(w.transactions),
	)
	return nil
}

// TransactionCount returns the total number of transactions held.
func (w *Writer) TransactionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.transactions)
}
