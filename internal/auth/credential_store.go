// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is verified when a user doesn't exist so that lookups of
// unknown emails cost the same as a wrong password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialStore owns user records and their password and reset fields.
// Values it returns are always redacted.
type CredentialStore struct {
	repo      UserRepository
	hasher    PasswordHasher
	validator *Validator
	logger    *slog.Logger
	now       func() time.Time
}

// StoreOption configures a CredentialStore.
type StoreOption func(*CredentialStore)

// WithStoreClock overrides the store's time source.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *CredentialStore) { s.now = now }
}

// WithStoreLogger sets the logger used for best-effort failures.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *CredentialStore) { s.logger = logger }
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(repo UserRepository, hasher PasswordHasher, opts ...StoreOption) (*CredentialStore, error) {
	if repo == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	s := &CredentialStore{
		repo:      repo,
		hasher:    hasher,
		validator: NewValidator(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Validate checks an input struct against its validation tags.
func (s *CredentialStore) Validate(ctx context.Context, in any) error {
	return s.validator.Struct(ctx, in)
}

// FindByEmail returns the active user with the given email.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	rec, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, lookupError(err, "GetByEmail")
	}
	return rec.Public(), nil
}

// FindByID returns the active user with the given ID.
func (s *CredentialStore) FindByID(ctx context.Context, id ulid.ULID) (*User, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, oops.With("user_id", id.String()).Wrap(lookupError(err, "GetByID"))
	}
	return rec.Public(), nil
}

func lookupError(err error, op string) error {
	if errors.Is(err, ErrNotFound) {
		return fail(CodeUserNotFound, "No user found")
	}
	return oops.Code("USER_LOOKUP_FAILED").With("operation", op).Wrap(err)
}

// Create validates the input and stores a new user with role user.
func (s *CredentialStore) Create(ctx context.Context, in SignupInput) (*User, error) {
	in.Normalize()
	if err := s.Validate(ctx, in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "Hash").Wrap(err)
	}

	rec, err := NewUserRecord(in, hash, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, fail(CodeEmailTaken, "Email is already registered")
		}
		return nil, oops.Code("USER_CREATE_FAILED").With("operation", "Create").Wrap(err)
	}
	return rec.Public(), nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords both yield AUTH_INVALID_CREDENTIALS. A hash produced with outdated
// parameters is replaced on success.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	rec, lookupErr := s.repo.GetByEmail(ctx, NormalizeEmail(email))

	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = rec.PasswordHash
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "GetByEmail").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(ctx, password, targetHash)
	if verifyErr != nil && rec != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "Verify").
			With("user_id", rec.ID.String()).
			Wrap(verifyErr)
	}
	if rec == nil || !valid {
		return nil, fail(CodeInvalidCredentials, "Incorrect email or password")
	}

	if s.hasher.NeedsUpgrade(rec.PasswordHash) {
		s.upgradeHash(ctx, rec, password)
	}
	return rec.Public(), nil
}

// upgradeHash re-hashes a password with the current parameters. The change
// time is not touched, so existing sessions stay valid.
func (s *CredentialStore) upgradeHash(ctx context.Context, rec *UserRecord, password string) {
	hash, err := s.hasher.Hash(ctx, password)
	if err == nil {
		err = s.repo.UpdatePasswordHash(ctx, rec.ID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"user_id", rec.ID.String(), "error", err)
	}
}

// CheckPassword reports whether password is the current password of user id.
func (s *CredentialStore) CheckPassword(ctx context.Context, id ulid.ULID, password string) (bool, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, oops.With("user_id", id.String()).Wrap(lookupError(err, "GetByID"))
	}
	ok, err := s.hasher.Verify(ctx, password, rec.PasswordHash)
	if err != nil {
		return false, oops.Code("AUTH_VERIFY_FAILED").With("user_id", id.String()).Wrap(err)
	}
	return ok, nil
}

// UpdatePassword hashes and stores a new password and stamps the change time.
func (s *CredentialStore) UpdatePassword(ctx context.Context, id ulid.ULID, newPassword string) error {
	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return oops.Code("PASSWORD_UPDATE_FAILED").With("operation", "Hash").Wrap(err)
	}
	if err := s.repo.UpdatePassword(ctx, id, hash, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(CodeUserNotFound, "No user found")
		}
		return oops.Code("PASSWORD_UPDATE_FAILED").
			With("operation", "UpdatePassword").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}

// UpdateProfile changes the name and email of user id. Empty fields keep
// their current value.
func (s *CredentialStore) UpdateProfile(ctx context.Context, id ulid.ULID, in ProfileUpdate) (*User, error) {
	in.Normalize()
	if err := s.Validate(ctx, in); err != nil {
		return nil, err
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, oops.With("user_id", id.String()).Wrap(lookupError(err, "GetByID"))
	}
	name, email := rec.Name, rec.Email
	if in.Name != "" {
		name = in.Name
	}
	if in.Email != "" {
		email = in.Email
	}

	updated, err := s.repo.UpdateProfile(ctx, id, name, email, s.now())
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, fail(CodeEmailTaken, "Email is already registered")
		case errors.Is(err, ErrNotFound):
			return nil, fail(CodeUserNotFound, "No user found")
		}
		return nil, oops.Code("PROFILE_UPDATE_FAILED").
			With("operation", "UpdateProfile").
			With("user_id", id.String()).
			Wrap(err)
	}
	return updated.Public(), nil
}

// SetResetSecret records the hash and expiry of a pending reset secret.
func (s *CredentialStore) SetResetSecret(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	if tokenHash == "" {
		return oops.Code("RESET_SET_FAILED").Errorf("reset token hash cannot be empty")
	}
	if err := s.repo.SetResetSecret(ctx, id, tokenHash, expiresAt); err != nil {
		return oops.Code("RESET_SET_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}

// ClearResetSecret drops the pending reset secret of user id if it is still
// the one with tokenHash.
func (s *CredentialStore) ClearResetSecret(ctx context.Context, id ulid.ULID, tokenHash string) error {
	if err := s.repo.ClearResetSecret(ctx, id, tokenHash); err != nil {
		return oops.Code("RESET_CLEAR_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}

// ConsumeResetSecret exchanges a pending reset secret hash for a new password.
// A wrong, expired or already used hash yields RESET_TOKEN_INVALID.
func (s *CredentialStore) ConsumeResetSecret(ctx context.Context, tokenHash, newPassword string) (*User, error) {
	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return nil, oops.Code("RESET_CONSUME_FAILED").With("operation", "Hash").Wrap(err)
	}
	rec, err := s.repo.ConsumeResetSecret(ctx, tokenHash, hash, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, oops.Code("RESET_CONSUME_FAILED").With("operation", "ConsumeResetSecret").Wrap(err)
	}
	return rec.Public(), nil
}

// Deactivate soft-deletes a user.
func (s *CredentialStore) Deactivate(ctx context.Context, id ulid.ULID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(CodeUserNotFound, "No user found")
		}
		return oops.Code("USER_DEACTIVATE_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}

// PurgeExpiredResets clears reset secrets whose window has passed.
func (s *CredentialStore) PurgeExpiredResets(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeExpiredResets(ctx, s.now())
	if err != nil {
		return 0, oops.Code("RESET_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}
