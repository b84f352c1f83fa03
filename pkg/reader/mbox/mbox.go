// Package mbox implements a Reader that replays SMS messages exported to an
// mbox file, as produced by SMS backup tools that forward to email.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-mbox"

	"github.com/momosync/momosync/pkg/api"
)

// Source is the value stored in Message.Source.
const Source = "mbox"

// Config holds configuration for the mbox reader.
type Config struct {
	// FilePath is the mbox file to read.
	FilePath string
}

// Reader reads every message of an mbox file once.
type Reader struct {
	filePath string
	logger   *slog.Logger
}

// New creates a new mbox reader.
func New(cfg Config, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("mbox file path is required")
	}
	if _, err := os.Stat(cfg.FilePath); err != nil {
		return nil, fmt.Errorf("opening mbox file: %w", err)
	}
	return &Reader{filePath: cfg.FilePath, logger: logger}, nil
}

// Read sends every message in the file to out and closes it. Acknowledgments
// are consumed while messages are being sent and afterwards, until ackChan is
// closed or ctx is done.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Message, ackChan <-chan string) error {
	acked := make(chan int, 1)
	go func() {
		acked <- drainAcks(ctx, ackChan)
	}()

	sent, err := r.emit(ctx, out)
	close(out)
	if err != nil {
		return err
	}
	r.logger.Info("mbox file read", "file", r.filePath, "messages", sent)

	n := <-acked
	r.logger.Info("mbox reader finished", "acknowledged", n, "canceled", ctx.Err() != nil)
	return nil
}

// drainAcks counts acknowledgments until ackChan is closed or ctx is done.
func drainAcks(ctx context.Context, ackChan <-chan string) int {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n
		case _, ok := <-ackChan:
			if !ok {
				return n
			}
			n++
		}
	}
}

func (r *Reader) emit(ctx context.Context, out chan<- *api.Message) (int, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return 0, fmt.Errorf("opening mbox file: %w", err)
	}
	defer f.Close()

	base := filepath.Base(r.filePath)
	mr := mbox.NewReader(f)
	sent := 0
	for i := 0; ; i++ {
		raw, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, fmt.Errorf("reading mbox message %d: %w", i, err)
		}

		msg, err := ParseMessage(raw, fmt.Sprintf("%s#%d", base, i))
		if err != nil {
			r.logger.Warn("skipping unreadable message", "index", i, "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case out <- msg:
			sent++
		}
	}
}

// ParseMessage converts one RFC 5322 message to an SMS message. fallbackID is
// used when the message carries no Message-Id header.
func ParseMessage(raw io.Reader, fallbackID string) (*api.Message, error) {
	m, err := mail.ReadMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing message: %w", err)
	}

	msg := &api.Message{
		ID:     strings.Trim(m.Header.Get("Message-Id"), "<> "),
		Source: Source,
	}
	if msg.ID == "" {
		msg.ID = fallbackID
	}

	if from := m.Header.Get("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil && addr.Name != "" {
			msg.Sender = addr.Name
		} else if err == nil {
			msg.Sender = addr.Address
		} else {
			msg.Sender = strings.TrimSpace(from)
		}
	}

	if date, err := m.Header.Date(); err == nil {
		msg.ReceivedAt = date.UTC()
	}

	body, err := textBody(m.Header.Get("Content-Type"), m.Header.Get("Content-Transfer-Encoding"), m.Body)
	if err != nil {
		return nil, err
	}
	msg.Body = strings.TrimSpace(body)
	return msg, nil
}

// textBody returns the first text/plain content of a message body.
func textBody(contentType, encoding string, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return "", nil
			}
			if err != nil {
				return "", fmt.Errorf("reading multipart body: %w", err)
			}
			text, err := textBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", err
			}
			if text != "" {
				return text, nil
			}
		}
	}

	if mediaType != "text/plain" {
		return "", nil
	}

	if strings.EqualFold(strings.TrimSpace(encoding), "quoted-printable") {
		body = quotedprintable.NewReader(body)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(b), nil
}
