package mbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momosync/momosync/pkg/api"
	"github.com/momosync/momosync/pkg/logging"
)

const fixture = `From sms@forwarder Sat Mar  1 09:00:00 2025
From: "MTN Mobile Money" <mtn@sms.example>
Date: Sat, 01 Mar 2025 09:00:00 +0000
Message-Id: <sms-1@sms.example>
Subject: SMS from MTN

You have received UGX 150,000 from John Doe. Ref: ABC123

From sms@forwarder Sat Mar  1 10:00:00 2025
From: Airtel
Subject: SMS from Airtel
Content-Type: multipart/alternative; boundary=XYZ

--XYZ
Content-Type: text/html

<p>ignored</p>
--XYZ
Content-Type: text/plain
Content-Transfer-Encoding: quoted-printable

Sent UGX 5,000 to Jane=2E
--XYZ--
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sms.mbox")
	if err := os.WriteFile(path, []byte(fixture), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReader_Read(t *testing.T) {
	r, err := New(Config{FilePath: writeFixture(t)}, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out := make(chan *api.Message, 10)
	acks := make(chan string, 2)
	acks <- "sms-1@sms.example"
	close(acks)

	if err := r.Read(context.Background(), out, acks); err != nil {
		t.Fatalf("Read: %v", err)
	}

	var msgs []*api.Message
	for m := range out {
		msgs = append(msgs, m)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	first := msgs[0]
	if first.ID != "sms-1@sms.example" || first.Sender != "MTN Mobile Money" {
		t.Errorf("first: got id %q sender %q", first.ID, first.Sender)
	}
	if first.Body != "You have received UGX 150,000 from John Doe. Ref: ABC123" {
		t.Errorf("first body: got %q", first.Body)
	}
	if want := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC); !first.ReceivedAt.Equal(want) {
		t.Errorf("first received: got %v, want %v", first.ReceivedAt, want)
	}

	second := msgs[1]
	if second.ID != "sms.mbox#1" || second.Sender != "Airtel" {
		t.Errorf("second: got id %q sender %q", second.ID, second.Sender)
	}
	if second.Body != "Sent UGX 5,000 to Jane." {
		t.Errorf("second body: got %q", second.Body)
	}
	if second.Source != Source {
		t.Errorf("source: got %q, want %q", second.Source, Source)
	}
}

func TestReader_StopsOnCancel(t *testing.T) {
	r, err := New(Config{FilePath: writeFixture(t)}, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *api.Message, 10)
	done := make(chan error, 1)
	go func() { done <- r.Read(ctx, out, make(chan string)) }()

	// Read keeps waiting for acknowledgments after the file is exhausted.
	for range out {
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Read: got %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after cancel")
	}
}

func TestNew_MissingFile(t *testing.T) {
	if _, err := New(Config{FilePath: filepath.Join(t.TempDir(), "nope.mbox")}, logging.Discard()); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := New(Config{}, logging.Discard()); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestReader_AcknowledgesWhileEmitting(t *testing.T) {
	r, err := New(Config{FilePath: writeFixture(t)}, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan *api.Message)
	acks := make(chan string)
	done := make(chan error, 1)
	go func() { done <- r.Read(ctx, out, acks) }()

	// Nothing has been taken from out yet, so Read is blocked sending the
	// first message and must still accept acknowledgments.
	for _, id := range []string{"a", "b", "c"} {
		select {
		case acks <- id:
		case <-time.After(2 * time.Second):
			t.Fatalf("ack %q not consumed while emitting", id)
		}
	}

	for range out {
	}
	close(acks)

	if err := <-done; err != nil {
		t.Errorf("Read: got %v, want nil", err)
	}
}
