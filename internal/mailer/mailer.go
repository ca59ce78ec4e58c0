package mailer

import (
	"context"
	"errors"
	"strings"

	"dumpster-be/internal/logger"

	"go.uber.org/zap"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Provider     string
	From         string
	WebhookURL   string
	WebhookToken string
	SMTPAddr     string
}

var ErrProviderFailure = errors.New("mail provider failure")

// New picks a provider by name. Unknown or incomplete configurations
// fall back to logging the message.
func New(cfg Config) Mailer {
	switch strings.ToLower(cfg.Provider) {
	case "noop":
		return noopMailer{}
	case "fail":
		return failMailer{}
	case "webhook":
		if cfg.WebhookURL != "" {
			return newWebhookMailer(cfg)
		}
	case "smtp":
		if cfg.SMTPAddr != "" {
			return newSMTPMailer(cfg)
		}
	case "", "log", "stub":
	default:
		logger.L().Warn("unknown mail provider, falling back to log", zap.String("provider", cfg.Provider))
	}
	return logMailer{from: cfg.From}
}

type logMailer struct {
	from string
}

func (m logMailer) Send(ctx context.Context, msg Message) error {
	logger.FromCtx(ctx).Info("email",
		zap.String("from", m.from),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, Message) error { return nil }

type failMailer struct{}

func (failMailer) Send(context.Context, Message) error { return ErrProviderFailure }
