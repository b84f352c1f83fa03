// Package gmail implements a Reader that pulls forwarded SMS messages from a
// Gmail mailbox.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/momosync/momosync/pkg/api"
)

// DefaultQuery selects unread messages carrying the label SMS forwarders apply.
const DefaultQuery = "label:SMS is:unread"

// Source is the value stored in Message.Source.
const Source = "gmail"

// Reader polls Gmail for forwarded SMS messages.
type Reader struct {
	client   *gmail.Service
	query    string
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Config holds configuration for the Gmail reader.
type Config struct {
	// Query is the Gmail search query. Defaults to DefaultQuery.
	Query string
	// Interval between polls. Defaults to 10 seconds.
	Interval time.Duration
}

// New creates a new Gmail reader.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	client, err := gmail.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	if cfg.Query == "" {
		cfg.Query = DefaultQuery
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}

	return &Reader{
		client:   client,
		query:    cfg.Query,
		interval: cfg.Interval,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Read polls Gmail and sends each matching message to out until ctx is
// canceled. Messages are marked as read only after their ID arrives on ackChan.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Message, ackChan <-chan string) error {
	defer close(out)

	go r.handleAcknowledgments(ctx, ackChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.poll(ctx, out)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("gmail reader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			r.poll(ctx, out)
		}
	}
}

// handleAcknowledgments marks messages as read once they were handled downstream.
func (r *Reader) handleAcknowledgments(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msgID, ok := <-ackChan:
			if !ok {
				r.logger.Info("acknowledgment channel closed")
				return
			}
			r.markAsRead(ctx, msgID)
		}
	}
}

func (r *Reader) markAsRead(ctx context.Context, msgID string) {
	defer r.release(msgID)

	_, err := r.client.Users.Messages.Modify("me", msgID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		r.logger.Warn("failed to mark message as read", "message_id", msgID, "error", err)
		return
	}
	r.logger.Debug("marked message as read", "message_id", msgID)
}

// claim reports whether msgID is not already awaiting an acknowledgment.
func (r *Reader) claim(msgID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inFlight[msgID]; ok {
		return false
	}
	r.inFlight[msgID] = struct{}{}
	return true
}

func (r *Reader) release(msgID string) {
	r.mu.Lock()
	delete(r.inFlight, msgID)
	r.mu.Unlock()
}

func (r *Reader) poll(ctx context.Context, out chan<- *api.Message) {
	resp, err := r.client.Users.Messages.List("me").Q(r.query).Context(ctx).Do()
	if err != nil {
		r.logger.Error("failed to list messages", "query", r.query, "error", err)
		return
	}

	r.logger.Info("found messages", "count", len(resp.Messages))

	for _, ref := range resp.Messages {
		if !r.claim(ref.Id) {
			continue
		}
		if err := r.fetch(ctx, ref.Id, out); err != nil {
			r.release(ref.Id)
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("failed to process message", "message_id", ref.Id, "error", err)
		}
	}
}

func (r *Reader) fetch(ctx context.Context, msgID string, out chan<- *api.Message) error {
	msg, err := r.client.Users.Messages.Get("me", msgID).Format("full").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting message: %w", err)
	}

	m := ToMessage(msg)
	if m.Body == "" {
		r.logger.Warn("empty message body", "message_id", msgID)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- m:
	}
	return nil
}

// Fetch returns up to limit messages matching the query, newest first. It
// neither claims nor marks them read, so a running Read is unaffected.
func (r *Reader) Fetch(ctx context.Context, limit int64) ([]*api.Message, error) {
	resp, err := r.client.Users.Messages.List("me").Q(r.query).MaxResults(limit).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	msgs := make([]*api.Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		msg, err := r.client.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return msgs, fmt.Errorf("getting message %s: %w", ref.Id, err)
		}
		msgs = append(msgs, ToMessage(msg))
	}
	return msgs, nil
}

// ToMessage converts a Gmail message to an SMS message. The sender is the
// display name of the From header and the body is the first text/plain part,
// falling back to text/html with tags removed and then to the snippet.
func ToMessage(msg *gmail.Message) *api.Message {
	m := &api.Message{
		ID:     msg.Id,
		Source: Source,
	}
	if msg.InternalDate > 0 {
		m.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if strings.EqualFold(h.Name, "From") {
				m.Sender = senderName(h.Value)
				break
			}
		}

		if body := findPart(msg.Payload, "text/plain"); body != "" {
			m.Body = strings.TrimSpace(body)
		} else if body := findPart(msg.Payload, "text/html"); body != "" {
			m.Body = stripHTML(body)
		}
	}

	if m.Body == "" {
		m.Body = html.UnescapeString(msg.Snippet)
	}
	return m
}

func senderName(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Address
}

// findPart returns the decoded data of the first part with the given MIME type.
func findPart(part *gmail.MessagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		if data, err := decode(part.Body.Data); err == nil {
			return data
		}
	}
	for _, child := range part.Parts {
		if data := findPart(child, mimeType); data != "" {
			return data
		}
	}
	return ""
}

func decode(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
	}
	return string(b), err
}

var (
	tagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

func stripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
