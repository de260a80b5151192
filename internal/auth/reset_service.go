// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/tourbook/tourbook/pkg/errutil"
)

// rollbackTimeout bounds the cleanup write after a failed delivery.
const rollbackTimeout = 5 * time.Second

// Mailer delivers account emails.
type Mailer interface {
	// SendWelcome greets a newly registered user.
	SendWelcome(ctx context.Context, to *User, url string) error

	// SendPasswordReset delivers a reset link.
	SendPasswordReset(ctx context.Context, to *User, url string) error
}

// PasswordResetService handles the reset handshake.
type PasswordResetService struct {
	store   *CredentialStore
	issuer  *TokenIssuer
	mailer  Mailer
	window  time.Duration
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(
	store *CredentialStore,
	issuer *TokenIssuer,
	mailer Mailer,
	cfg ResetConfig,
	opts ...ServiceOption,
) (*PasswordResetService, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultResetWindow
	}
	o := applyOptions(opts)
	return &PasswordResetService{
		store:   store,
		issuer:  issuer,
		mailer:  mailer,
		window:  window,
		logger:  o.logger,
		metrics: o.metrics,
		now:     o.now,
	}, nil
}

// RequestReset stores a new reset secret for the user with the given email and
// mails a link built from linkBase. It returns the plaintext secret.
// If the mail cannot be delivered the stored secret is cleared again.
func (s *PasswordResetService) RequestReset(ctx context.Context, email, linkBase string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", fail(CodeInvalidInput, "Please provide your email")
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if KindOf(err) == KindNotFound {
			s.metrics.ResetRequest("unknown_email")
			return "", fail(CodeUserNotFound, "There is no user with this address")
		}
		return "", err
	}

	secret, hash, err := GenerateResetSecret()
	if err != nil {
		return "", err
	}

	if err := s.store.SetResetSecret(ctx, user.ID, hash, s.now().Add(s.window)); err != nil {
		return "", err
	}

	link := strings.TrimSuffix(linkBase, "/") + "/" + secret
	if err := s.mailer.SendPasswordReset(ctx, user, link); err != nil {
		s.rollback(ctx, user, hash, err)
		s.metrics.ResetRequest("delivery_failed")
		return "", fail(CodeDeliveryFailed, "There was an error sending the mail. try again later!")
	}

	s.metrics.ResetRequest("sent")
	return secret, nil
}

// rollback clears the secret stored by this request. A secret stored by a
// later request for the same user is kept.
func (s *PasswordResetService) rollback(ctx context.Context, user *User, hash string, cause error) {
	errutil.LogError(s.logger, "password reset delivery failed",
		oops.With("user_id", user.ID.String()).Wrap(cause))

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := s.store.ClearResetSecret(rctx, user.ID, hash); err != nil {
		errutil.LogError(s.logger, "password reset rollback failed", err)
	}
}

// ResetPassword exchanges a reset secret for a new password and opens a session.
// Wrong, expired and already used secrets all yield ErrResetTokenInvalid.
func (s *PasswordResetService) ResetPassword(ctx context.Context, secret string, in PasswordChange) (*Session, error) {
	if err := s.store.Validate(ctx, in); err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, ErrResetTokenInvalid
	}

	user, err := s.store.ConsumeResetSecret(ctx, HashResetSecret(secret), in.Password)
	if err != nil {
		return nil, err
	}

	tok, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: tok}, nil
}

// PurgeExpired clears reset secrets whose window has passed.
func (s *PasswordResetService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.PurgeExpiredResets(ctx)
}

// RunSweeper purges expired reset secrets every interval until ctx ends.
func (s *PasswordResetService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogError(s.logger, "reset sweep failed", err)
				continue
			}
			if n > 0 {
				s.logger.DebugContext(ctx, "purged expired reset secrets", "count", n)
			}
		}
	}
}
