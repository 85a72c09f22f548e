// Package notify declares the outbound delivery collaborators the core calls
// into. Delivery internals (SMTP, push gateways) live behind these interfaces;
// the default implementation just writes structured log lines so the rest of
// the system can treat delivery as fire-and-forget.
package notify

import (
	"context"

	"utilitygrid.org/internal/obs"
)

// Email is a single outbound message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends email on behalf of the core.
type Mailer interface {
	SendEmail(ctx context.Context, msg Email) error
}

// Pusher sends push notifications to registered device tokens.
type Pusher interface {
	SendPush(ctx context.Context, tokens []string, title, body string) error
}

// LogSender implements Mailer and Pusher by logging the message. Used as the
// default wiring and in tests.
type LogSender struct{}

func (LogSender) SendEmail(_ context.Context, msg Email) error {
	obs.LogRequest(map[string]any{
		"type":    "notify",
		"channel": "email",
		"to":      msg.To,
		"subject": msg.Subject,
	})
	return nil
}

func (LogSender) SendPush(_ context.Context, tokens []string, title, _ string) error {
	obs.LogRequest(map[string]any{
		"type":    "notify",
		"channel": "push",
		"tokens":  len(tokens),
		"title":   title,
	})
	return nil
}
