// Package webhook implements a Reader that accepts SMS messages pushed over
// HTTP by an SMS forwarding app running on the phone.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/momosync/momosync/pkg/api"
)

const (
	// Source is the value stored in Message.Source.
	Source = "webhook"
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// SMSPath receives forwarded messages.
	SMSPath = "/api/sms"
	// HealthPath reports liveness.
	HealthPath = "/healthz"

	maxBodyBytes = 64 << 10
	queueSize    = 100
)

// Config holds configuration for the webhook reader.
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string
	// Token, when set, must be presented as "Authorization: Bearer <token>".
	Token string
}

// Payload is the JSON body accepted on SMSPath.
type Payload struct {
	ID        string `json:"id,omitempty"`
	DeviceID  string `json:"device_id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

type response struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Reader serves the webhook endpoint and forwards accepted messages.
type Reader struct {
	addr   string
	token  string
	queue  chan *api.Message
	now    func() time.Time
	logger *slog.Logger
}

// New creates a new webhook reader.
func New(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Reader{
		addr:   cfg.Addr,
		token:  cfg.Token,
		queue:  make(chan *api.Message, queueSize),
		now:    time.Now,
		logger: logger,
	}
}

// Handler returns the HTTP handler serving the webhook routes.
func (r *Reader) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SMSPath, r.handleSMS)
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, response{Status: "ok"})
	})
	return mux
}

// Read serves HTTP until ctx is canceled, forwarding accepted messages to out.
// Acknowledgments are only logged; the sender already got its response.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Message, ackChan <-chan string) error {
	defer close(out)

	server := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", r.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", r.addr, err)
	}

	go r.logAcks(ctx, ackChan)

	serveErr := make(chan error, 1)
	go func() {
		r.logger.Info("webhook server listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				r.logger.Warn("error shutting down webhook server", "error", err)
			}
			r.logger.Info("webhook reader stopping", "reason", ctx.Err())
			return nil
		case err, ok := <-serveErr:
			if ok {
				return fmt.Errorf("serving webhook: %w", err)
			}
			serveErr = nil
		case msg := <-r.queue:
			select {
			case out <- msg:
			case <-ctx.Done():
			}
		}
	}
}

// logAcks consumes acknowledgments until ackChan is closed or ctx is done.
func (r *Reader) logAcks(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-ackChan:
			if !ok {
				return
			}
			r.logger.Debug("message handled", "message_id", id)
		}
	}
}

func (r *Reader) handleSMS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, response{Status: "error", Error: "method not allowed"})
		return
	}

	if !r.authorized(req) {
		writeJSON(w, http.StatusUnauthorized, response{Status: "error", Error: "invalid token"})
		return
	}

	msg, err := r.decode(w, req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: err.Error()})
		return
	}

	select {
	case r.queue <- msg:
	default:
		r.logger.Warn("queue full, rejecting sms", "message_id", msg.ID, "device_id", msg.DeviceID)
		writeJSON(w, http.StatusServiceUnavailable, response{Status: "error", Error: "queue full"})
		return
	}

	r.logger.Debug("accepted sms", "message_id", msg.ID, "device_id", msg.DeviceID, "sender", msg.Sender)
	writeJSON(w, http.StatusAccepted, response{Status: "accepted", ID: msg.ID})
}

func (r *Reader) authorized(req *http.Request) bool {
	if r.token == "" {
		return true
	}
	got, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(r.token)) == 1
}

func (r *Reader) decode(w http.ResponseWriter, req *http.Request) (*api.Message, error) {
	var p Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if strings.TrimSpace(p.Message) == "" {
		return nil, errors.New("message is required")
	}

	receivedAt := r.now().UTC()
	if p.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp: %w", err)
		}
		receivedAt = ts.UTC()
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &api.Message{
		ID:         id,
		Sender:     p.Sender,
		Body:       p.Message,
		ReceivedAt: receivedAt,
		Source:     Source,
		DeviceID:   p.DeviceID,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
