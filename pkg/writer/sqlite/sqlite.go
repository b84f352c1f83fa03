// Package sqlite implements a Writer backed by a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/writer/buffered"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transactions (
	id                 TEXT PRIMARY KEY,
	message_id         TEXT NOT NULL UNIQUE,
	amount             REAL NOT NULL,
	currency           TEXT NOT NULL,
	direction          TEXT NOT NULL,
	network            TEXT NOT NULL,
	counterparty       TEXT NOT NULL DEFAULT '',
	counterparty_phone TEXT NOT NULL DEFAULT '',
	reference          TEXT NOT NULL DEFAULT '',
	sender             TEXT NOT NULL DEFAULT '',
	message            TEXT NOT NULL DEFAULT '',
	timestamp          TEXT NOT NULL,
	source             TEXT NOT NULL DEFAULT '',
	device_id          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

const upsertSQL = `
INSERT INTO transactions (
	id, message_id, amount, currency, direction, network, counterparty,
	counterparty_phone, reference, sender, message, timestamp, source, device_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(message_id) DO UPDATE SET
	amount = excluded.amount,
	currency = excluded.currency,
	direction = excluded.direction,
	network = excluded.network,
	counterparty = excluded.counterparty,
	counterparty_phone = excluded.counterparty_phone,
	reference = excluded.reference,
	sender = excluded.sender,
	message = excluded.message,
	timestamp = excluded.timestamp,
	source = excluded.source,
	device_id = excluded.device_id
`

// Config holds configuration for the SQLite writer.
type Config struct {
	// Path is the database file path.
	Path string
	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	FlushInterval time.Duration
}

// Writer writes transactions to SQLite with buffered batching.
type Writer struct {
	db       *sql.DB
	logger   *slog.Logger
	buffered *buffered.Writer
}

// Open opens the database at path and ensures the schema exists.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return db, nil
}

// New creates a new SQLite writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := Open(cfg.Path)
	if err != nil {
		return nil, err
	}

	w := &Writer{db: db, logger: logger}
	w.buffered = buffered.New(w.writeBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "sqlite_buffer"))

	logger.Info("sqlite writer initialized", "path", cfg.Path)
	return w, nil
}

// Write consumes transactions from the input channel and stores them.
// The database is closed when Write returns.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	defer func() {
		if err := w.db.Close(); err != nil {
			w.logger.Error("failed to close sqlite database", "error", err)
		}
	}()
	return w.buffered.Write(ctx, in, ackChan)
}

func (w *Writer) writeBatch(ctx context.Context, transactions []*api.Transaction) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range transactions {
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := stmt.ExecContext(ctx,
			id, t.MessageID, t.Amount, t.Currency, t.Direction, t.Network, t.Counterparty,
			t.CounterpartyPhone, t.Reference, t.Sender, t.Message, t.Timestamp, t.Source, t.DeviceID,
		)
		if err != nil {
			return fmt.Errorf("upserting transaction %s: %w", t.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	w.logger.Debug("wrote transactions to sqlite", "count", len(transactions))
	return nil
}

// Load reads every stored transaction ordered by timestamp.
func Load(ctx context.Context, path string) ([]*api.Transaction, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT id, message_id, amount, currency, direction, network, counterparty,
			counterparty_phone, reference, sender, message, timestamp, source, device_id
		FROM transactions ORDER BY timestamp, id`)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []*api.Transaction
	for rows.Next() {
		t := &api.Transaction{}
		err := rows.Scan(&t.ID, &t.MessageID, &t.Amount, &t.Currency, &t.Direction, &t.Network,
			&t.Counterparty, &t.CounterpartyPhone, &t.Reference, &t.Sender, &t.Message,
			&t.Timestamp, &t.Source, &t.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading transactions: %w", err)
	}
	return out, nil
}
