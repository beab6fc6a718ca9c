package mailer

import (
	"licenseplane/pkg/config"

	"go.uber.org/fx"
	"gopkg.in/gomail.v2"
)

var Module = fx.Module("mailer", fx.Provide(New))

// Sender delivers one email. The worker is the only caller; the API side
// never talks SMTP directly.
type Sender interface {
	Send(to []string, subject, htmlBody string) error
}

type smtpSender struct {
	dialer *gomail.Dialer
	from   string
}

func New(cfg *config.Config) Sender {
	return &smtpSender{
		dialer: gomail.NewDialer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password),
		from:   cfg.SMTP.From,
	}
}

func (s *smtpSender) Send(to []string, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	return s.dialer.DialAndSend(m)
}
