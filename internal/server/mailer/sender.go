// Package mailer delivers the transactional emails of the auth flows.
package mailer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/logging"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender delivers one HTML message. A non-nil error means the message was
// not accepted for delivery.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

const plainFallback = "This message requires an HTML capable mail client."

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends through the SendGrid v3 API.
type SendGridSender struct {
	client sendClient
	from   *mail.Email
	log    logging.Logger
}

func NewSendGridSender(apiKey, fromAddress, fromName string, log logging.Logger) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromAddress),
		log:    log.With("module", "mailer", "transport", "sendgrid"),
	}
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	message := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), plainFallback, htmlBody)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.log.Error(ctx, "sendgrid request failed", "to", common.MaskEmail(to), "error", err)
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.log.Error(ctx, "sendgrid rejected message", "to", common.MaskEmail(to), "status", resp.StatusCode)
		return fmt.Errorf("sendgrid: status %d", resp.StatusCode)
	}

	s.log.Debug(ctx, "email accepted", "to", common.MaskEmail(to), "status", resp.StatusCode)
	return nil
}

// LogSender records messages in the log instead of sending them. It is used
// when no SendGrid key is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("module", "mailer", "transport", "log")}
}

func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.log.Info(ctx, "email not sent, no transport configured",
		"to", common.MaskEmail(to), "subject", subject, "bytes", len(htmlBody))
	return nil
}
