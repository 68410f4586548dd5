package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/dmitrijs2005/inkpost/internal/common"
	"github.com/dmitrijs2005/inkpost/internal/logging"
)

const (
	verificationSubject = "Verify Your Email"
	resetSubject        = "Reset Your Password"
)

var (
	verificationTemplate = template.Must(template.New("verify").Parse(`<html>
  <body>
    <h2>Verify Your Email</h2>
    <p>Click the link below to verify your email address:</p>
    <a href="{{.Link}}">{{.Link}}</a>
    <p>This link expires in {{.Expires}}.</p>
  </body>
</html>
`))

	resetTemplate = template.Must(template.New("reset").Parse(`<html>
  <body>
    <h2>Reset Your Password</h2>
    <p>Click the link below to reset your password:</p>
    <a href="{{.Link}}">{{.Link}}</a>
    <p>This link expires in {{.Expires}}.</p>
    <p>If you didn't request this, please ignore this email.</p>
  </body>
</html>
`))
)

type templateData struct {
	Link    string
	Expires string
}

// Mailer renders the verification and password reset emails and hands
// them to a Sender.
type Mailer struct {
	sender          Sender
	frontendURL     string
	verificationTTL time.Duration
	resetTTL        time.Duration
	log             logging.Logger
}

func New(sender Sender, frontendURL string, verificationTTL, resetTTL time.Duration, log logging.Logger) *Mailer {
	return &Mailer{
		sender:          sender,
		frontendURL:     frontendURL,
		verificationTTL: verificationTTL,
		resetTTL:        resetTTL,
		log:             log.With("module", "mailer"),
	}
}

// VerificationLink is the frontend page that redeems a verification token.
func (m *Mailer) VerificationLink(token string) string {
	return m.frontendURL + "/verify-email?token=" + url.QueryEscape(token)
}

// ResetLink is the frontend page that redeems a password reset token.
func (m *Mailer) ResetLink(token string) string {
	return m.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
}

func (m *Mailer) SendVerification(ctx context.Context, to, token string) error {
	return m.send(ctx, to, token, verificationSubject, verificationTemplate,
		templateData{Link: m.VerificationLink(token), Expires: humanize(m.verificationTTL)})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	return m.send(ctx, to, token, resetSubject, resetTemplate,
		templateData{Link: m.ResetLink(token), Expires: humanize(m.resetTTL)})
}

func (m *Mailer) send(ctx context.Context, to, token, subject string, tpl *template.Template, data templateData) error {
	var body bytes.Buffer
	if err := tpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %q: %w", tpl.Name(), err)
	}

	m.log.Info(ctx, "sending email", "subject", subject, "to", common.MaskEmail(to), "token", common.MaskToken(token))
	if err := m.sender.Send(ctx, to, subject, body.String()); err != nil {
		return err
	}
	m.log.Info(ctx, "email sent", "subject", subject, "to", common.MaskEmail(to))
	return nil
}

// humanize renders whole hours or minutes: "24 hours", "1 hour", "30 minutes".
func humanize(d time.Duration) string {
	unit, n := "minute", int64(d/time.Minute)
	if d >= time.Hour && d%time.Hour == 0 {
		unit, n = "hour", int64(d/time.Hour)
	}
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
