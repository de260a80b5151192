// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	DialTimeout time.Duration
}

// SMTPSender delivers messages through an SMTP relay. STARTTLS is used when
// the server offers it.
type SMTPSender struct {
	cfg  SMTPConfig
	opts []gomail.Option
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.DialTimeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	// Fail on bad options now rather than on the first delivery.
	if _, err := gomail.NewClient(cfg.Host, opts...); err != nil {
		return nil, oops.Code("MAIL_CONFIG").With("host", cfg.Host).Wrap(err)
	}
	return &SMTPSender{cfg: cfg, opts: opts}, nil
}

// Send delivers msg over a fresh connection that is closed when ctx ends.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := buildMessage(msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return oops.Code("MAIL_CONFIG").With("host", s.cfg.Host).Wrap(err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.Code("SMTP_SEND_FAILED").
			With("host", s.cfg.Host).
			With("port", s.cfg.Port).
			Wrap(err)
	}
	return nil
}

func buildMessage(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, oops.Code("MAIL_ADDRESS_INVALID").With("from", msg.From).Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("MAIL_ADDRESS_INVALID").With("to", msg.To).Wrap(err)
	}
	m.Subject(headerValue(msg.Subject))
	m.SetDate()
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}

// headerValue drops line breaks so values cannot inject headers.
func headerValue(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

// IsTransient reports whether a delivery error is worth retrying: network
// failures and 4xx SMTP replies are, 5xx replies and cancellation are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) {
		return sendErr.IsTemp()
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
