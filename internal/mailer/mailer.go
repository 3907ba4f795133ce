package mailer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer delivers verification codes out-of-band. Login handlers call it
// once per request; a failure surfaces to the caller without retries and
// without invalidating the already-issued code.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

type sendgridMailer struct {
	client   *sendgrid.Client
	fromName string
	fromAddr string
}

func New(apiKey, fromName, fromAddr string) Mailer {
	return &sendgridMailer{
		client:   sendgrid.NewSendClient(apiKey),
		fromName: fromName,
		fromAddr: fromAddr,
	}
}

func (m *sendgridMailer) SendVerificationCode(ctx context.Context, email, code string) error {
	message := mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.fromAddr),
		"Bugema University - Verification Code",
		mail.NewEmail("", email),
		TextBody(code),
		HTMLBody(code),
	)
	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sendgrid responded %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

func TextBody(code string) string {
	return fmt.Sprintf(`Bugema University - Verification Code

Hello,

You have requested to log in to the Bugema University portal.

Your verification code is: %s

This code will expire in 10 minutes for security reasons.

If you did not request this code, please ignore this email or contact the system administrator.

(c) %d Bugema University. All rights reserved.
`, code, time.Now().Year())
}

func HTMLBody(code string) string {
	return fmt.Sprintf(`<html>
  <body style="font-family: Arial, sans-serif; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      <h1>Bugema University</h1>
      <p>Class Schedule Management System</p>
      <h2>Verification Code</h2>
      <p>Hello,</p>
      <p>You have requested to log in to the Bugema University portal. Please use the verification code below to complete your login:</p>
      <div style="font-size: 32px; font-weight: bold; text-align: center; letter-spacing: 8px; padding: 20px;">%s</div>
      <p>This code will expire in 10 minutes for security reasons.</p>
      <p>If you did not request this code, please ignore this email or contact the system administrator.</p>
      <p style="color: #6b7280; font-size: 14px;">&copy; %d Bugema University. All rights reserved.<br>This is an automated message, please do not reply to this email.</p>
    </div>
  </body>
</html>`, code, time.Now().Year())
}
