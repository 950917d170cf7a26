package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

// EmailSender delivers one message.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	log       *zap.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, log *zap.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.FromName == "" {
		cfg.FromName = "Clinic Scheduling"
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		log:       logging.OrNop(log),
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.log.Error("sendgrid send failed", zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.log.Error("sendgrid returned error status",
			zap.Int("status", response.StatusCode),
			zap.String("body", response.Body),
			zap.String("to", msg.To),
		)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.log.Info("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// LogSender only logs. It stands in for SendGrid when email is not configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: logging.OrNop(log)}
}

func (s *LogSender) Send(_ context.Context, msg EmailMessage) error {
	s.log.Info("simulated email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

// NewSender picks SendGrid when configured and the logging sender otherwise.
func NewSender(cfg SendGridConfig, log *zap.Logger) EmailSender {
	if sg := NewSendGridSender(cfg, log); sg != nil {
		return sg
	}
	return NewLogSender(log)
}
