// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package mail renders account emails and hands them to a Sender.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/tourbook/tourbook/internal/auth"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Message is a single plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config configures a Mailer.
type Config struct {
	From string
	// ResetWindow is quoted in the reset email.
	ResetWindow time.Duration
	// Retries is the number of additional attempts after a transient failure.
	Retries   uint64
	RetryBase time.Duration
}

// Mailer implements auth.Mailer on top of a Sender.
type Mailer struct {
	sender Sender
	cfg    Config
	logger *slog.Logger
}

// New creates a Mailer.
func New(sender Sender, cfg Config, logger *slog.Logger) (*Mailer, error) {
	if sender == nil {
		return nil, oops.Errorf("sender is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG").Errorf("from address is required")
	}
	if cfg.ResetWindow <= 0 {
		cfg.ResetWindow = auth.DefaultResetWindow
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{sender: sender, cfg: cfg, logger: logger}, nil
}

type templateData struct {
	FirstName    string
	URL          string
	ValidMinutes int
}

// SendWelcome greets a newly registered user.
func (m *Mailer) SendWelcome(ctx context.Context, to *auth.User, url string) error {
	return m.send(ctx, to, "welcome.tmpl", "Welcome to the Tourbook family!", url)
}

// SendPasswordReset delivers a reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, to *auth.User, url string) error {
	subject := fmt.Sprintf("Your password reset token (valid for %d min)", int(m.cfg.ResetWindow.Minutes()))
	return m.send(ctx, to, "password_reset.tmpl", subject, url)
}

func (m *Mailer) send(ctx context.Context, to *auth.User, tmpl, subject, url string) error {
	if to == nil || to.Email == "" {
		return oops.Code("MAIL_NO_RECIPIENT").Errorf("recipient is required")
	}

	var body bytes.Buffer
	err := templates.ExecuteTemplate(&body, tmpl, templateData{
		FirstName:    firstName(to.Name),
		URL:          url,
		ValidMinutes: int(m.cfg.ResetWindow.Minutes()),
	})
	if err != nil {
		return oops.Code("MAIL_RENDER_FAILED").With("template", tmpl).Wrap(err)
	}

	msg := Message{From: m.cfg.From, To: to.Email, Subject: subject, Body: body.String()}

	backoff := retry.WithMaxRetries(m.cfg.Retries, retry.NewExponential(m.cfg.RetryBase))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		sendErr := m.sender.Send(ctx, msg)
		if sendErr == nil {
			return nil
		}
		if IsTransient(sendErr) {
			m.logger.WarnContext(ctx, "mail delivery attempt failed",
				"template", tmpl, "attempt", attempt, "error", sendErr)
			return retry.RetryableError(sendErr)
		}
		return sendErr
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("template", tmpl).
			With("user_id", to.ID.String()).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

var _ auth.Mailer = (*Mailer)(nil)
