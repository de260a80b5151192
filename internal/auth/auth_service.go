// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session is the result of a successful login: the redacted user and a signed token.
type Session struct {
	User  *User
	Token Token
}

// Recorder receives authentication events for metrics.
type Recorder interface {
	LoginAttempt(result string)
	ResetRequest(result string)
	TokenRejected(reason string)
}

type nopRecorder struct{}

func (nopRecorder) LoginAttempt(string)  {}
func (nopRecorder) ResetRequest(string)  {}
func (nopRecorder) TokenRejected(string) {}

type serviceOptions struct {
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// ServiceOption configures Service and PasswordResetService.
type ServiceOption func(*serviceOptions)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(o *serviceOptions) { o.metrics = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.now = now }
}

func applyOptions(opts []ServiceOption) serviceOptions {
	o := serviceOptions{
		logger:  slog.Default(),
		metrics: nopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Service provides signup, login and session resolution.
type Service struct {
	store   *CredentialStore
	issuer  *TokenIssuer
	mailer  Mailer
	logger  *slog.Logger
	metrics Recorder
}

// NewAuthService creates a new Service. mailer may be nil, in which case no
// welcome mail is sent.
func NewAuthService(store *CredentialStore, issuer *TokenIssuer, mailer Mailer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	o := applyOptions(opts)
	return &Service{
		store:   store,
		issuer:  issuer,
		mailer:  mailer,
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

// Issuer returns the token issuer sessions are signed with.
func (s *Service) Issuer() *TokenIssuer {
	return s.issuer
}

// Signup creates an account and opens a session for it. welcomeURL, when set,
// is mailed to the new user; delivery failures are logged only.
func (s *Service) Signup(ctx context.Context, in SignupInput, welcomeURL string) (*Session, error) {
	user, err := s.store.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	if s.mailer != nil && welcomeURL != "" {
		if err := s.mailer.SendWelcome(ctx, user, welcomeURL); err != nil {
			s.logger.WarnContext(ctx, "welcome mail failed",
				"user_id", user.ID.String(), "error", err)
		}
	}

	return s.openSession(user)
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		s.metrics.LoginAttempt("missing_fields")
		return nil, fail(CodeMissingCredentials, "Please provide email & Password")
	}

	user, err := s.store.Authenticate(ctx, email, password)
	if err != nil {
		if KindOf(err) == KindUnauthenticated {
			s.metrics.LoginAttempt("rejected")
		} else {
			s.metrics.LoginAttempt("error")
		}
		return nil, err
	}

	s.metrics.LoginAttempt("success")
	return s.openSession(user)
}

// UpdatePassword changes the password of an authenticated user after checking
// the current one, then opens a new session.
func (s *Service) UpdatePassword(ctx context.Context, id ulid.ULID, currentPassword string, in PasswordChange) (*Session, error) {
	ok, err := s.store.CheckPassword(ctx, id, currentPassword)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, fail(CodeUserGone, "The user belonging to this token does not exist")
		}
		return nil, err
	}
	if !ok {
		return nil, fail(CodeWrongPassword, "current Password is not correct")
	}

	if err := s.store.Validate(ctx, in); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePassword(ctx, id, in.Password); err != nil {
		return nil, err
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.openSession(user)
}

// Authenticate resolves a bearer token to its active user. A token issued
// before the user's last password change is rejected.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, fail(CodeTokenMissing, "Please login to access this")
	}

	claims, err := s.issuer.Verify(token)
	if err != nil {
		s.metrics.TokenRejected(strings.ToLower(ErrorCode(err)))
		return nil, err
	}

	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			s.metrics.TokenRejected("user_gone")
			return nil, fail(CodeUserGone, "The user belonging to this token does not exist")
		}
		return nil, err
	}

	if user.ChangedPasswordAfter(claims.IssuedAt) {
		s.metrics.TokenRejected("password_changed")
		return nil, fail(CodePasswordChanged, "User recently changed password. Please login again")
	}
	return user, nil
}

// Me returns the active user with the given ID.
func (s *Service) Me(ctx context.Context, id ulid.ULID) (*User, error) {
	return s.store.FindByID(ctx, id)
}

// UpdateMe changes the caller's name or email. Password fields are refused;
// passwords change through UpdatePassword.
func (s *Service) UpdateMe(ctx context.Context, id ulid.ULID, in ProfileUpdate) (*User, error) {
	if in.Password != "" || in.PasswordConfirm != "" {
		return nil, fail(CodePasswordNotAllowed, "This route is not for password updates. Please use /updateMyPassword.")
	}
	return s.store.UpdateProfile(ctx, id, in)
}

// GetUser returns the active user with the given ID for administrative lookups.
func (s *Service) GetUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil && KindOf(err) == KindNotFound {
		return nil, fail(CodeUserNotFound, "No user found with that ID")
	}
	return user, err
}

// Deactivate soft-deletes the account. Existing tokens stop resolving at once
// because inactive users are invisible to Authenticate.
func (s *Service) Deactivate(ctx context.Context, id ulid.ULID) error {
	return s.store.Deactivate(ctx, id)
}

func (s *Service) openSession(user *User) (*Session, error) {
	tok, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: tok}, nil
}

// Restrict returns ErrForbidden unless user holds one of roles.
func Restrict(user *User, roles ...Role) error {
	if user == nil || !user.HasRole(roles...) {
		return ErrForbidden
	}
	return nil
}

// ErrForbidden is returned when an authenticated user lacks the required role.
var ErrForbidden = fail(CodeForbidden, "You do not have permission to perform this action")
