package mbox

import (
	"fmt"
	"io"
	"mime/quotedprintable"
	"net/mail"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/momosync/momosync/pkg/api"
)

// exportAddress is the mailbox exported messages claim to come from. The
// SMS sender is kept as its display name.
const exportAddress = "sms@momosync.invalid"

// Export writes msgs to w in mbox format. The result reads back through
// Reader with the same IDs, senders, bodies and receive times.
func Export(w io.Writer, msgs []*api.Message) error {
	mw := mbox.NewWriter(w)

	for _, msg := range msgs {
		receivedAt := msg.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = time.Unix(0, 0).UTC()
		}

		part, err := mw.CreateMessage(exportAddress, receivedAt)
		if err != nil {
			return fmt.Errorf("creating mbox message %s: %w", msg.ID, err)
		}
		if err := writeMessage(part, msg, receivedAt); err != nil {
			return fmt.Errorf("writing mbox message %s: %w", msg.ID, err)
		}
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing mbox: %w", err)
	}
	return nil
}

func writeMessage(w io.Writer, msg *api.Message, receivedAt time.Time) error {
	from := mail.Address{Name: msg.Sender, Address: exportAddress}
	headers := []struct{ name, value string }{
		{"From", from.String()},
		{"Date", receivedAt.Format(time.RFC1123Z)},
		{"Message-Id", "<" + msg.ID + ">"},
		{"Subject", "SMS from " + msg.Sender},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=utf-8"},
		{"Content-Transfer-Encoding", "quoted-printable"},
	}
	for _, h := range headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", h.name, h.value); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}

	qp := quotedprintable.NewWriter(w)
	if _, err := io.WriteString(qp, msg.Body); err != nil {
		return err
	}
	if err := qp.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
