// Package mailer delivers notify.Message values over SMTP using go-mail.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/notify"
	"github.com/vietguard/vietguard-api/internal/redact"
	"github.com/wneessen/go-mail"
)

// ErrInvalidConfig is returned when the SMTP settings are unusable.
var ErrInvalidConfig = errors.New("invalid smtp configuration")

// SMTPDispatcher implements notify.Dispatcher. Each Send opens one
// connection, delivers one message and closes it.
type SMTPDispatcher struct {
	client *mail.Client
	from   string
	logger *slog.Logger
}

var _ notify.Dispatcher = (*SMTPDispatcher)(nil)

// NewSMTPDispatcher creates a dispatcher for the configured relay.
func NewSMTPDispatcher(cfg config.SMTPConfig, logger *slog.Logger) (*SMTPDispatcher, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("%w: host and from are required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(tlsPolicy(cfg.TLS)),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &SMTPDispatcher{
		client: client,
		from:   cfg.From,
		logger: logger.With(slog.String("component", "mailer")),
	}, nil
}

func tlsPolicy(mode string) mail.TLSPolicy {
	switch mode {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

// Send delivers msg. It makes exactly one delivery attempt.
func (d *SMTPDispatcher) Send(ctx context.Context, msg notify.Message) error {
	m, err := buildMsg(d.from, msg)
	if err != nil {
		return err
	}

	if err := d.client.DialAndSendWithContext(ctx, m); err != nil {
		d.logger.ErrorContext(ctx, "failed to send email",
			slog.String("to", redact.Email(msg.To)),
			slog.String("subject", msg.Subject),
			slog.String("error", redact.Error(err)))
		return fmt.Errorf("failed to send email: %w", err)
	}

	d.logger.InfoContext(ctx, "email sent",
		slog.String("to", redact.Email(msg.To)),
		slog.Int("attachments", len(msg.Attachments)))
	return nil
}

func buildMsg(from string, msg notify.Message) (*mail.Msg, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("%w: invalid sender: %v", ErrInvalidConfig, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("%w: invalid recipient: %v", notify.ErrInvalidMessage, err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		if err := m.AttachReader(a.FileName, bytes.NewReader(a.Data),
			mail.WithFileContentType(mail.ContentType(ct))); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", a.FileName, err)
		}
	}
	return m, nil
}
