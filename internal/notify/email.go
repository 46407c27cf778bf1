package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

type EmailOptions struct {
	// Addr is the host:port of the smtp server.
	Addr     string
	Username string
	Password string
	From     string
	Subject  string
}

// Email sends messages as plain text mails, destination is a comma separated
// list of recipients.
type Email struct {
	opts EmailOptions
	send func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewEmail(opts EmailOptions) Email {
	if opts.Subject == "" {
		opts.Subject = "New quest"
	}
	return Email{
		opts: opts,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

func (m Email) Send(ctx context.Context, destination, text string) error {
	_, span := tracer.Start(ctx, "email:Send")
	defer span.End()

	var to []string
	for _, addr := range strings.Split(destination, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return failure("email send", fmt.Errorf("no recipients"))
	}

	e := email.NewEmail()
	e.From = m.opts.From
	e.To = to
	e.Subject = m.opts.Subject
	e.Text = []byte(text)

	var auth smtp.Auth
	if m.opts.Username != "" {
		host, _, err := net.SplitHostPort(m.opts.Addr)
		if err != nil {
			return failure("email send", err)
		}
		auth = smtp.PlainAuth("", m.opts.Username, m.opts.Password, host)
	}

	err := m.send(e, m.opts.Addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = m.send(e, m.opts.Addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return failure("email send", err)
	}
	return nil
}
