// Package mailer sends transactional email through SMTP, MailerSend or the
// log, behind a circuit breaker.
package mailer

import (
	"context"
	"fmt"

	"github.com/iliyamo/tour-booking/internal/config"
)

// Message is one outgoing email with both a plain text and an HTML body.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New builds the mailer selected by cfg.Driver, wrapped in a breaker.
func New(cfg config.MailConfig) (Mailer, error) {
	var m Mailer
	switch cfg.Driver {
	case "smtp":
		m = NewSMTPMailer(cfg.Host, cfg.Port, cfg.From, cfg.FromName, cfg.Username, cfg.Password, cfg.TLS)
	case "mailersend":
		m = NewMailerSend(cfg.APIKey, cfg.FromName, cfg.From)
	case "log", "":
		return LogMailer{}, nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
	return NewBreaker(cfg.Driver, m), nil
}
