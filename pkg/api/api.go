// Package api defines the core interfaces and data structures for momosync.
package api

import (
	"context"
	"time"
)

// Message is a raw SMS as obtained by a reader, before parsing.
type Message struct {
	// ID identifies the message at its source. It is sent back on the ack
	// channel once the message has been handled.
	ID     string
	Sender string
	Body   string
	// ReceivedAt is when the handset received the SMS. Zero when unknown.
	ReceivedAt time.Time
	// Source is the name of the reader that produced the message.
	Source string
	// DeviceID identifies the forwarding handset, if the source knows it.
	DeviceID string
}

// Transaction is a parsed mobile-money transaction ready to be stored.
type Transaction struct {
	ID        string  `json:"id"`
	MessageID string  `json:"message_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	// Direction is "Cash In" or "Cash Out".
	Direction string `json:"type"`
	// Network is "MTN" or "AIRTEL".
	Network      string `json:"network"`
	Counterparty string `json:"counterparty"`
	// CounterpartyPhone is the international form of Counterparty when the
	// counterparty is a phone number.
	CounterpartyPhone string `json:"counterparty_phone,omitempty"`
	Reference         string `json:"reference,omitempty"`
	Sender            string `json:"sender"`
	Message           string `json:"message"`
	// Timestamp is RFC3339.
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	DeviceID  string `json:"device_id,omitempty"`
}

// Reader reads raw messages from a source and sends them to the provided channel.
// Implementations should close the channel when done or on error.
// The ackChan carries IDs of messages that have been fully handled.
type Reader interface {
	Read(ctx context.Context, out chan<- *Message, ackChan <-chan string) error
}

// Writer consumes transactions from a channel and writes them to a destination.
// Successfully written transaction message IDs are sent to the ackChan.
type Writer interface {
	Write(ctx context.Context, in <-chan *Transaction, ackChan chan<- string) error
}
