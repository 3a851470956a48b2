// Package mail is the outbound notification service. Delivery is best-effort
// and asynchronous: the request path only enqueues, a background worker
// retries with exponential backoff, and failures never roll back a committed
// registration state change.
package mail

import (
	"context"
	"log/slog"
)

//go:generate mockgen -source=mail.go -destination=mocks/mocks.go -package=mocks Sender

// Message is one outbound email.
type Message struct {
	Subject     string
	Sender      string
	Recipients  []string
	Bcc         []string
	ReplyTo     string
	Body        string
	Attachments []Attachment
}

// Attachment is a file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Sender delivers a single message. Implementations wrap the actual mail
// transport; failure semantics beyond returning an error are out of scope
// here.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them. Used in
// development and as a fallback when no transport is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mail (not delivered, log transport)",
		"subject", msg.Subject,
		"recipients", msg.Recipients,
		"body", msg.Body,
	)
	return nil
}
