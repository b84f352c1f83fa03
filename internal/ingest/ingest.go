// Package ingest turns raw SMS messages into stored transaction records.
//
// It sits between a reader and a writer: irrelevant and unparseable messages
// are acknowledged immediately so the reader does not offer them again, parsed
// ones are forwarded and acknowledged by the writer once stored.
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/phone"
	"github.com/momosync/momosync/pkg/sms"
)

// Config holds settings for the ingest stage.
type Config struct {
	// Currency is the currency code used by the parser. Defaults to UGX.
	Currency string
	// CountryCode is used to normalize phone-number counterparties.
	// Defaults to 256.
	CountryCode string
	// Now returns the current time for messages without a receive time.
	// Defaults to time.Now.
	Now func() time.Time
}

// Stats counts what the stage did with the messages it saw.
type Stats struct {
	Accepted int64
	Skipped  int64
	Rejected int64
}

// Stage classifies and parses messages.
type Stage struct {
	parser     *sms.Parser
	normalizer phone.Normalizer
	now        func() time.Time
	logger     *slog.Logger

	accepted atomic.Int64
	skipped  atomic.Int64
	rejected atomic.Int64
}

// New creates an ingest stage.
func New(cfg Config, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Stage{
		parser:     sms.New(sms.Config{Currency: cfg.Currency}),
		normalizer: phone.Normalizer{CountryCode: cfg.CountryCode},
		now:        now,
		logger:     logger,
	}
}

// Run reads messages from in until it is closed or ctx is done. Parsed
// transactions go to out, which Run closes on return. IDs of messages that
// will never reach a writer are sent to ackChan.
func (s *Stage) Run(ctx context.Context, in <-chan *api.Message, out chan<- *api.Transaction, ackChan chan<- string) error {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				s.logger.Info("input channel closed",
					"accepted", s.accepted.Load(),
					"skipped", s.skipped.Load(),
					"rejected", s.rejected.Load(),
				)
				return nil
			}

			txn, err := s.Process(msg)
			if err != nil {
				if err := s.ack(ctx, ackChan, msg.ID); err != nil {
					return err
				}
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- txn:
			}
		}
	}
}

// Process classifies and parses a single message. It returns ErrNotRelevant
// for messages the classifier drops, or the parser's rejection error.
func (s *Stage) Process(msg *api.Message) (*api.Transaction, error) {
	logger := s.logger.With("message_id", msg.ID, "sender", msg.Sender, "source", msg.Source)

	if !s.parser.IsRelevant(msg.Sender, msg.Body) {
		s.skipped.Add(1)
		logger.Debug("not a mobile money message, skipping")
		return nil, ErrNotRelevant
	}

	parsed, err := s.parser.Parse(msg.Sender, msg.Body)
	if err != nil {
		s.rejected.Add(1)
		logger.Warn("could not parse mobile money message", "reason", err)
		return nil, err
	}

	s.accepted.Add(1)
	txn := s.record(msg, parsed)

	logger.Debug("parsed transaction",
		"network", txn.Network,
		"type", txn.Direction,
		"amount", txn.Amount,
		"counterparty", txn.Counterparty,
		"reference", txn.Reference,
	)
	return txn, nil
}

// Stats returns a snapshot of the stage counters.
func (s *Stage) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Skipped:  s.skipped.Load(),
		Rejected: s.rejected.Load(),
	}
}

func (s *Stage) record(msg *api.Message, parsed sms.Transaction) *api.Transaction {
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	var counterpartyPhone string
	if phone.IsPhoneLike(parsed.Counterparty) {
		counterpartyPhone = s.normalizer.Normalize(parsed.Counterparty)
	}

	messageID := msg.ID
	id := uuid.NewString()
	if messageID == "" {
		messageID = id
	}

	return &api.Transaction{
		ID:                id,
		MessageID:         messageID,
		Amount:            parsed.Amount,
		Currency:          s.parser.Currency(),
		Direction:         parsed.Direction.String(),
		Network:           parsed.Network.String(),
		Counterparty:      parsed.Counterparty,
		CounterpartyPhone: counterpartyPhone,
		Reference:         parsed.Reference,
		Sender:            msg.Sender,
		Message:           msg.Body,
		Timestamp:         receivedAt.UTC().Format(time.RFC3339),
		Source:            msg.Source,
		DeviceID:          msg.DeviceID,
	}
}

func (s *Stage) ack(ctx context.Context, ackChan chan<- string, id string) error {
	if id == "" || ackChan == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ackChan <- id:
		return nil
	}
}
