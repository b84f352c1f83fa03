package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/logging"
)

func TestHandleSMS_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		auth       string
		body       string
		wantStatus int
		wantQueued bool
	}{
		{
			name:       "accepted",
			method:     http.MethodPost,
			auth:       "Bearer s3cret",
			body:       `{"device_id":"pixel","sender":"MTN","message":"You have received UGX 1,000 from Jane.","timestamp":"2025-03-01T09:00:00+03:00"}`,
			wantStatus: http.StatusAccepted,
			wantQueued: true,
		},
		{
			name:       "wrong method",
			method:     http.MethodGet,
			auth:       "Bearer s3cret",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "missing token",
			method:     http.MethodPost,
			body:       `{"message":"hi"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong token",
			method:     http.MethodPost,
			auth:       "Bearer nope",
			body:       `{"message":"hi"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed json",
			method:     http.MethodPost,
			auth:       "Bearer s3cret",
			body:       `{"message":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty message",
			method:     http.MethodPost,
			auth:       "Bearer s3cret",
			body:       `{"sender":"MTN","message":"   "}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad timestamp",
			method:     http.MethodPost,
			auth:       "Bearer s3cret",
			body:       `{"message":"hi","timestamp":"yesterday"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Config{Token: "s3cret"}, logging.Discard())

			req := httptest.NewRequest(tt.method, SMSPath, strings.NewReader(tt.body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			r.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := len(r.queue) == 1; got != tt.wantQueued {
				t.Errorf("queued: got %v, want %v", got, tt.wantQueued)
			}
		})
	}
}

func TestHandleSMS_BuildsMessage(t *testing.T) {
	r := New(Config{}, logging.Discard())
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	body := `{"id":"sms-42","device_id":"pixel","sender":"AirtelMoney","message":"Sent UGX 5,000 to Jane."}`
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, SMSPath, strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusAccepted)
	}

	msg := <-r.queue
	want := api.Message{
		ID:         "sms-42",
		Sender:     "AirtelMoney",
		Body:       "Sent UGX 5,000 to Jane.",
		ReceivedAt: fixed,
		Source:     Source,
		DeviceID:   "pixel",
	}
	if *msg != want {
		t.Errorf("got %+v, want %+v", *msg, want)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	New(Config{}, logging.Discard()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthPath, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReader_ForwardsAndShutsDown(t *testing.T) {
	r := New(Config{Addr: "127.0.0.1:0"}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *api.Message, 1)
	done := make(chan error, 1)
	go func() { done <- r.Read(ctx, out, make(chan string)) }()

	r.queue <- &api.Message{ID: "m1", Body: "hi"}
	select {
	case msg := <-out:
		if msg.ID != "m1" {
			t.Errorf("got %q, want m1", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not forwarded")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Read: got %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not return after cancel")
	}

	if _, ok := <-out; ok {
		t.Error("out was not closed")
	}
}

func TestHandleSMS_QueueFull(t *testing.T) {
	r := New(Config{}, logging.Discard())
	for i := range queueSize {
		r.queue <- &api.Message{ID: fmt.Sprint(i)}
	}

	req := httptest.NewRequest(http.MethodPost, SMSPath, strings.NewReader(`{"sender":"MTN","message":"MTN: received UGX 1,000"}`))
	rec := httptest.NewRecorder()

	handled := make(chan struct{})
	go func() {
		r.Handler().ServeHTTP(rec, req)
		close(handled)
	}()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked on a full queue")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if len(r.queue) != queueSize {
		t.Errorf("queued: got %d, want %d", len(r.queue), queueSize)
	}
}

func TestReader_AcknowledgesWhileForwarding(t *testing.T) {
	r := New(Config{Addr: "127.0.0.1:0"}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *api.Message)
	acks := make(chan string)
	done := make(chan error, 1)
	go func() { done <- r.Read(ctx, out, acks) }()

	// Nobody receives from out, so the forward loop stays blocked on it.
	r.queue <- &api.Message{ID: "m1"}
	for _, id := range []string{"a", "b", "c"} {
		select {
		case acks <- id:
		case <-time.After(2 * time.Second):
			t.Fatalf("ack %q not consumed while forwarding", id)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not return after cancel")
	}
}
