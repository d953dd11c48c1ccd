// Package transport is the narrow surface over the WhatsApp gateway. The
// dispatcher depends only on the Sender interface, never on the concrete
// client, so tests can script success and failure per call.
//
// The gateway connection is shared: campaigns dispatching concurrently all
// call Send on the same connection. Serializing those calls is the gateway's
// job; implementations of Sender must be safe for concurrent use.
package transport

import (
	"context"
	"time"
)

// SendOptions carries the media attachment for non-text messages.
type SendOptions struct {
	Kind          string
	MediaURL      string
	MediaFilename string
}

// Delivery is the gateway's acknowledgement of a single accepted send.
type Delivery struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender is everything the dispatch worker needs from the chat channel.
type Sender interface {
	// Send delivers one message to one phone-style address. A nil error
	// means the gateway accepted the message, not that the recipient read
	// it; delivery and read receipts arrive later as Receipt events.
	Send(ctx context.Context, phone, body string, opts *SendOptions) (*Delivery, error)

	// IsReady reports whether the underlying connection can send right now.
	IsReady() bool
}

// Receipt is an asynchronous delivery-state event from the gateway
// (message_ack in the underlying client): a recipient's message moved to
// delivered or read. MessageID is the Delivery.MessageID of the original
// send; it is the only correlation key the gateway carries.
type Receipt struct {
	MessageID string    `json:"message_id"`
	Phone     string    `json:"phone"`
	Ack       string    `json:"ack"` // "delivered" or "read"
	Timestamp time.Time `json:"timestamp"`
}

// Status mirrors the gateway session state exposed to the dashboard.
type Status struct {
	IsConnected   bool       `json:"is_connected"`
	State         string     `json:"status"` // disconnected, connecting, connected, qr_required, error
	PhoneNumber   string     `json:"phone_number,omitempty"`
	QRCode        string     `json:"qr_code,omitempty"`
	LastConnected *time.Time `json:"last_connected,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}
