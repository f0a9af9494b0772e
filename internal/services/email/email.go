// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers confirmation emails through an email service
// provider HTTP API or through SMTP.
package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"codeberg.org/oliverandrich/newsletter/internal/apperr"
	"codeberg.org/oliverandrich/newsletter/internal/config"
	"codeberg.org/oliverandrich/newsletter/internal/models"
)

// Sender delivers one email to one recipient.
type Sender interface {
	Send(ctx context.Context, recipient models.SubscriberEmail, subject, htmlBody, textBody string) error
}

var (
	_ Sender = (*Client)(nil)
	_ Sender = (*SMTPSender)(nil)
)

// SMTPSender delivers email through an SMTP relay using go-mail.
type SMTPSender struct {
	cfg *config.SMTPConfig
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg *config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("SMTP from address is required")
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send delivers the message. Dial, auth and transfer failures are returned
// as delivery errors.
func (s *SMTPSender) Send(ctx context.Context, recipient models.SubscriberEmail, subject, htmlBody, textBody string) error {
	msg, err := s.buildMessage(recipient, subject, htmlBody, textBody)
	if err != nil {
		return apperr.Delivery("building email", err)
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return apperr.Delivery("creating mail client", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return apperr.Delivery("sending email", err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(recipient models.SubscriberEmail, subject, htmlBody, textBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(recipient.String()); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, textBody)
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.cfg.Timeout))
	}

	// Implicit TLS on 465, STARTTLS elsewhere
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && !s.cfg.Password.IsEmpty() {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password.Expose()),
		)
	}
	return opts
}
