// Package daemon provides the pipeline runner for momosync.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/momosync/momosync/internal/ingest"
	"github.com/momosync/momosync/internal/plugins"
	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/config"
)

// channelSize is the capacity of every pipeline channel.
const channelSize = 100

var (
	// ErrNoReader is returned by Run when no reader plugin is configured.
	ErrNoReader = errors.New("MOMOSYNC_READER is required")
	// ErrNoWriter is returned by Run when no writer plugin is configured.
	ErrNoWriter = errors.New("MOMOSYNC_WRITER is required")
)

// Runner wires a reader, the ingest stage and a writer into one pipeline.
type Runner struct {
	registry   *plugins.Registry
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new daemon runner.
func New(registry *plugins.Registry, httpClient *http.Client, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry:   registry,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Run starts the pipeline with the given configuration. It blocks until the
// context is canceled or the reader runs out of messages and everything read
// has been written.
func (r *Runner) Run(ctx context.Context, cfg config.Config) (ingest.Stats, error) {
	if cfg.ReaderPlugin == "" {
		return ingest.Stats{}, ErrNoReader
	}
	if cfg.WriterPlugin == "" {
		return ingest.Stats{}, ErrNoWriter
	}

	r.logger.Info("starting momosync daemon",
		"reader", cfg.ReaderPlugin,
		"writer", cfg.WriterPlugin,
	)

	reader, err := r.registry.CreateReader(
		cfg.ReaderPlugin,
		r.httpClient,
		cfg.ReaderConfig,
		r.logger.With("component", "reader", "plugin", cfg.ReaderPlugin),
	)
	if err != nil {
		return ingest.Stats{}, fmt.Errorf("creating reader: %w", err)
	}

	writer, err := r.registry.CreateWriter(
		cfg.WriterPlugin,
		r.httpClient,
		cfg.WriterConfig,
		r.logger.With("component", "writer", "plugin", cfg.WriterPlugin),
	)
	if err != nil {
		return ingest.Stats{}, fmt.Errorf("creating writer: %w", err)
	}

	stage := ingest.New(ingest.Config{
		Currency:    cfg.Currency,
		CountryCode: cfg.CountryCode,
	}, r.logger.With("component", "ingest"))

	err = r.pipeline(ctx, reader, stage, writer)
	stats := stage.Stats()
	r.logger.Info("daemon stopped",
		"accepted", stats.Accepted,
		"skipped", stats.Skipped,
		"rejected", stats.Rejected,
	)
	return stats, err
}

// pipeline runs reader -> ingest -> writer. The acknowledgment channel is
// closed only after both of its senders have returned.
func (r *Runner) pipeline(ctx context.Context, reader api.Reader, stage *ingest.Stage, writer api.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages := make(chan *api.Message, channelSize)
	transactions := make(chan *api.Transaction, channelSize)
	ackChan := make(chan string, channelSize)

	readerDone := make(chan error, 1)
	go func() {
		readerDone <- reader.Read(ctx, messages, ackChan)
	}()

	ingestDone := make(chan error, 1)
	go func() {
		ingestDone <- stage.Run(ctx, messages, transactions, ackChan)
	}()

	writerDone := make(chan error, 1)
	go func() {
		err := writer.Write(ctx, transactions, ackChan)
		if err != nil {
			// Nothing downstream can make progress without the writer.
			cancel()
		}
		writerDone <- err
	}()

	r.logger.Info("daemon started")

	var errs []error
	if err := <-writerDone; err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("writer error", "error", err)
		errs = append(errs, fmt.Errorf("writer: %w", err))
	}
	if err := <-ingestDone; err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("ingest error", "error", err)
		errs = append(errs, fmt.Errorf("ingest: %w", err))
	}

	close(ackChan)

	if err := <-readerDone; err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("reader error", "error", err)
		errs = append(errs, fmt.Errorf("reader: %w", err))
	}

	return errors.Join(errs...)
}
