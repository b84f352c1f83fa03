// Package postgres provides a PostgreSQL writer for transaction storage.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/writer/buffered"
)

//go:embed 001_create_transactions.sql
var migrationSQL string

const upsertSQL = `
	INSERT INTO transactions (
		id, message_id, amount, currency, direction, network, counterparty,
		counterparty_phone, reference, sender, message, timestamp, source, device_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (message_id) DO UPDATE SET
		amount = EXCLUDED.amount,
		currency = EXCLUDED.currency,
		direction = EXCLUDED.direction,
		network = EXCLUDED.network,
		counterparty = EXCLUDED.counterparty,
		counterparty_phone = EXCLUDED.counterparty_phone,
		reference = EXCLUDED.reference,
		sender = EXCLUDED.sender,
		message = EXCLUDED.message,
		timestamp = EXCLUDED.timestamp,
		source = EXCLUDED.source,
		device_id = EXCLUDED.device_id,
		updated_at = NOW()
`

// Config holds the PostgreSQL writer configuration.
type Config struct {
	// DSN is a full connection string. When set, the individual
	// connection fields are ignored.
	DSN string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the time between automatic flushes.
	FlushInterval time.Duration

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Writer writes transactions to a PostgreSQL database.
type Writer struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	buffered *buffered.Writer
}

func (c Config) connString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// New creates a new PostgreSQL writer and applies the schema migration.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.connString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)

	w := &Writer{
		pool:   pool,
		logger: logger,
	}

	if err := w.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	w.buffered = buffered.New(w.writeBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "postgres_buffer"))

	return w, nil
}

func (w *Writer) runMigrations(ctx context.Context) error {
	w.logger.Info("running database migrations")

	if _, err := w.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	w.logger.Info("migrations completed successfully")
	return nil
}

// Write consumes transactions from the channel and writes them to PostgreSQL.
// The pool is closed when Write returns.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	defer w.Close()
	return w.buffered.Write(ctx, in, ackChan)
}

// writeBatch upserts a batch of transactions keyed by message_id in one
// database transaction.
func (w *Writer) writeBatch(ctx context.Context, transactions []*api.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, txn := range transactions {
		id := txn.ID
		if id == "" {
			id = uuid.NewString()
		}

		timestamp, err := time.Parse(time.RFC3339, txn.Timestamp)
		if err != nil {
			w.logger.Warn("invalid timestamp format, using current time",
				"timestamp", txn.Timestamp,
				"error", err,
			)
			timestamp = time.Now().UTC()
		}

		batch.Queue(upsertSQL,
			id,
			txn.MessageID,
			txn.Amount,
			txn.Currency,
			txn.Direction,
			txn.Network,
			txn.Counterparty,
			txn.CounterpartyPhone,
			txn.Reference,
			txn.Sender,
			txn.Message,
			timestamp,
			txn.Source,
			txn.DeviceID,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range transactions {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upserting transaction %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	w.logger.Info("wrote transaction batch", "count", len(transactions))
	return nil
}

// Close closes the database connection pool.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
		w.logger.Info("closed PostgreSQL connection pool")
	}
}
