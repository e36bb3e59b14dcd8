package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTP sends messages through a mail server.
type SMTP struct {
	cfg  SMTPConfig
	addr string
	auth smtp.Auth
}

// NewSMTP returns an SMTP notifier. Authentication is skipped when no user is set.
func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	s := &SMTP{cfg: cfg, addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}
	if cfg.User != "" {
		s.auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return s
}

func (s *SMTP) build(msg Message) *email.Email {
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)
	return e
}

// Send delivers msg synchronously.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.build(msg).Send(s.addr, s.auth)
	observe("smtp", err)
	if err != nil {
		return fmt.Errorf("sending mail to %s: %w", msg.To, err)
	}
	return nil
}
