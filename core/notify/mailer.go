package notify

import (
	"context"
	"fmt"

	"github.com/klipworks/memberbot/core/config"
	"github.com/klipworks/memberbot/core/logger"
	mail "github.com/wneessen/go-mail"
	"log/slog"
)

const codeSubject = "Your verification code"

// Mailer delivers verification codes over SMTP. It implements
// verify.Notifier.
type Mailer struct {
	client *mail.Client
	from   string
}

// NewMailer builds the SMTP client from configuration. The connection is
// dialed per send, not held open.
func NewMailer(cfg config.SMTPConfig) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
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
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Mailer{client: client, from: cfg.From}, nil
}

// SendCode mails the one-time code to address.
func (m *Mailer) SendCode(ctx context.Context, address, code string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(address); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(codeSubject)
	msg.SetBodyString(mail.TypeTextPlain, plainBody(code))
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBody(code))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send code mail: %w", err)
	}
	logger.Debug(ctx, "mail", "code.sent",
		slog.String("email_domain", domainOf(address)),
	)
	return nil
}

func plainBody(code string) string {
	return fmt.Sprintf(
		"Your verification code is: %s\n\nEnter this code in the chat to finish verifying your account.\nThe code expires in one hour.\n",
		code,
	)
}

func htmlBody(code string) string {
	return fmt.Sprintf(
		`<p>Your verification code is:</p><p style="font-size:24px;font-weight:bold;letter-spacing:4px">%s</p><p>Enter this code in the chat to finish verifying your account.<br>The code expires in one hour.</p>`,
		code,
	)
}

func domainOf(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == '@' {
			return address[i+1:]
		}
	}
	return ""
}
