// Package email sends rendered HTML messages through SMTP or Postmark.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"
	"gopkg.in/gomail.v2"
)

var (
	ErrInvalidAddress    = errors.New("invalid email address")
	ErrFailedToSendEmail = errors.New("failed to send email")
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	Tag      string
}

func (m Message) validate() error {
	if !strings.Contains(m.To, "@") {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, m.To)
	}
	return nil
}

// Sender hands a message to an email provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPSender(server string, port int, username, password, from, fromName string) *SMTPSender {
	if from == "" {
		from = username
	}
	return &SMTPSender{
		dialer:   gomail.NewDialer(server, port, username, password),
		from:     from,
		fromName: fromName,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return errors.Join(ErrFailedToSendEmail, fmt.Errorf("smtp %s: %w", msg.To, err))
	}
	return nil
}

// PostmarkSender delivers through the Postmark transactional API.
type PostmarkSender struct {
	client *postmark.Client
	from   string
}

func NewPostmarkSender(serverToken, accountToken, from string) (*PostmarkSender, error) {
	if serverToken == "" || accountToken == "" {
		return nil, errors.New("postmark server and account tokens are required")
	}
	if !strings.Contains(from, "@") {
		return nil, fmt.Errorf("%w: sender %q", ErrInvalidAddress, from)
	}
	return &PostmarkSender{client: postmark.NewClient(serverToken, accountToken), from: from}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTMLBody,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}
