package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/logging"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestToMessage(t *testing.T) {
	tests := []struct {
		name       string
		msg        *gmail.Message
		wantSender string
		wantBody   string
	}{
		{
			name: "plain text part preferred",
			msg: &gmail.Message{
				Id: "m1",
				Payload: &gmail.MessagePart{
					MimeType: "multipart/alternative",
					Headers:  []*gmail.MessagePartHeader{{Name: "From", Value: `"MTN Mobile Money" <sms@forwarder.example>`}},
					Parts: []*gmail.MessagePart{
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>ignored</p>")}},
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("You have received UGX 150,000 from John Doe.\n")}},
					},
				},
			},
			wantSender: "MTN Mobile Money",
			wantBody:   "You have received UGX 150,000 from John Doe.",
		},
		{
			name: "html fallback with nested parts",
			msg: &gmail.Message{
				Id: "m2",
				Payload: &gmail.MessagePart{
					MimeType: "multipart/mixed",
					Headers:  []*gmail.MessagePartHeader{{Name: "from", Value: "airtel@forwarder.example"}},
					Parts: []*gmail.MessagePart{{
						MimeType: "multipart/alternative",
						Parts: []*gmail.MessagePart{
							{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<div>Sent <b>UGX 5,000</b> &amp; done</div>")}},
						},
					}},
				},
			},
			wantSender: "airtel@forwarder.example",
			wantBody:   "Sent UGX 5,000 & done",
		},
		{
			name: "snippet fallback",
			msg: &gmail.Message{
				Id:      "m3",
				Snippet: "Airtel Money: paid UGX 2,000",
				Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{{Name: "From", Value: "Airtel"}}},
			},
			wantSender: "Airtel",
			wantBody:   "Airtel Money: paid UGX 2,000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToMessage(tt.msg)
			if got.Sender != tt.wantSender {
				t.Errorf("sender: got %q, want %q", got.Sender, tt.wantSender)
			}
			if got.Body != tt.wantBody {
				t.Errorf("body: got %q, want %q", got.Body, tt.wantBody)
			}
			if got.ID != tt.msg.Id || got.Source != Source {
				t.Errorf("id/source: got %q/%q", got.ID, got.Source)
			}
		})
	}
}

func TestToMessage_ReceivedAt(t *testing.T) {
	got := ToMessage(&gmail.Message{Id: "m", InternalDate: 1740819600000})
	want := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if !got.ReceivedAt.Equal(want) {
		t.Errorf("got %v, want %v", got.ReceivedAt, want)
	}
}

// fakeGmail serves a single unread message and records modify calls.
type fakeGmail struct {
	mu       sync.Mutex
	query    string
	modified []string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages")
	switch {
	case path == "" && r.Method == http.MethodGet:
		f.query = r.URL.Query().Get("q")
		_ = json.NewEncoder(w).Encode(gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "abc"}}})
	case path == "/abc" && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(gmail.Message{
			Id:      "abc",
			Snippet: "You have received UGX 1,000 from Jane.",
		})
	case path == "/abc/modify" && r.Method == http.MethodPost:
		f.modified = append(f.modified, "abc")
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGmail) modifiedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.modified)
}

func TestReader_ReadAndAcknowledge(t *testing.T) {
	fake := &fakeGmail{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	r, err := New(srv.Client(), Config{Interval: 20 * time.Millisecond}, logging.Discard(), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan *api.Message, 10)
	acks := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- r.Read(ctx, out, acks) }()

	msg := <-out
	if msg.ID != "abc" || msg.Body != "You have received UGX 1,000 from Jane." {
		t.Fatalf("got %+v", msg)
	}

	// Unacknowledged messages are not emitted again.
	time.Sleep(80 * time.Millisecond)
	if len(out) != 0 {
		t.Errorf("in-flight message emitted again: %d queued", len(out))
	}

	acks <- "abc"
	deadline := time.After(2 * time.Second)
	for fake.modifiedCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("message was not marked as read")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Read: got %v, want context.Canceled", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.query != DefaultQuery {
		t.Errorf("query: got %q, want %q", fake.query, DefaultQuery)
	}
}

func TestReader_FetchDoesNotMarkRead(t *testing.T) {
	fake := &fakeGmail{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	r, err := New(srv.Client(), Config{Query: "label:SMS"}, logging.Discard(), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msgs, err := r.Fetch(context.Background(), 5)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "abc" {
		t.Fatalf("got %+v, want message abc", msgs)
	}
	if n := fake.modifiedCount(); n != 0 {
		t.Errorf("modify calls: got %d, want 0", n)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.query != "label:SMS" {
		t.Errorf("query: got %q, want label:SMS", fake.query)
	}
}
