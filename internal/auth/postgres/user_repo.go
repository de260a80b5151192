// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tourbook/tourbook/internal/auth"
)

// poolIface is the subset of pgxpool.Pool used here; pgxmock implements it too.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, email, role, photo, password_hash, password_changed_at,
		       password_reset_token_hash, password_reset_expires_at, active,
		       created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.UserRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, name, email, role, photo, password_hash, password_changed_at,
			active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.ID.String(),
		user.Name,
		user.Email,
		string(user.Role),
		user.Photo,
		user.PasswordHash,
		user.PasswordChangedAt,
		user.Active,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_EMAIL_CONFLICT").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("USER_INSERT_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an active user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.UserRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1 AND active
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_RECORD_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves an active user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1) AND active
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_RECORD_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// UpdatePassword stores a new password hash and stamps the change time.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, changedAt time.Time) error {
	return r.execOne(ctx, "update password", id, `
		UPDATE users
		SET password_hash = $2, password_changed_at = $3, updated_at = $3
		WHERE id = $1 AND active
	`, id.String(), passwordHash, changedAt)
}

// UpdatePasswordHash replaces the password hash without touching
// password_changed_at.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return r.execOne(ctx, "update password hash", id, `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND active
	`, id.String(), passwordHash)
}

// UpdateProfile sets the name and email of an active user.
func (r *UserRepository) UpdateProfile(ctx context.Context, id ulid.ULID, name, email string, now time.Time) (*auth.UserRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, email = $3, updated_at = $4
		WHERE id = $1 AND active
		RETURNING `+userColumns,
		id.String(), name, email, now)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_RECORD_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_EMAIL_CONFLICT").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicateEmail)
		}
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "update profile").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// SetResetSecret stores a pending reset secret, replacing any previous one.
func (r *UserRepository) SetResetSecret(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	return r.execOne(ctx, "set reset secret", id, `
		UPDATE users
		SET password_reset_token_hash = $2, password_reset_expires_at = $3, updated_at = NOW()
		WHERE id = $1 AND active
	`, id.String(), tokenHash, expiresAt)
}

// ClearResetSecret removes the pending reset secret of user id if it still
// has tokenHash. The hash condition keeps a secret stored by a later request.
func (r *UserRepository) ClearResetSecret(ctx context.Context, id ulid.ULID, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND password_reset_token_hash = $2
	`, id.String(), tokenHash)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "clear reset secret").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// ConsumeResetSecret swaps a pending, unexpired reset secret for a new
// password hash in a single conditional UPDATE. Of several concurrent calls
// with the same hash, only the first to take the row lock matches.
func (r *UserRepository) ConsumeResetSecret(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*auth.UserRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET password_hash = $2,
		    password_changed_at = $3,
		    password_reset_token_hash = NULL,
		    password_reset_expires_at = NULL,
		    updated_at = $3
		WHERE password_reset_token_hash = $1
		  AND password_reset_expires_at > $3
		  AND active
		RETURNING `+userColumns,
		tokenHash, passwordHash, now)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_RECORD_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_CONSUME_RESET_FAILED").
			With("operation", "consume reset secret").
			Wrap(err)
	}
	return user, nil
}

// Deactivate marks the user inactive and drops any pending reset secret.
func (r *UserRepository) Deactivate(ctx context.Context, id ulid.ULID) error {
	return r.execOne(ctx, "deactivate user", id, `
		UPDATE users
		SET active = FALSE,
		    password_reset_token_hash = NULL,
		    password_reset_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND active
	`, id.String())
}

// PurgeExpiredResets clears reset secrets that expired before now.
func (r *UserRepository) PurgeExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_reset_token_hash = NULL, password_reset_expires_at = NULL
		WHERE password_reset_expires_at <= $1
	`, now)
	if err != nil {
		return 0, oops.Code("USER_PURGE_RESETS_FAILED").
			With("operation", "purge expired resets").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func (r *UserRepository) execOne(ctx context.Context, op string, id ulid.ULID, sql string, args ...any) error {
	result, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", op).
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_RECORD_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a UserRecord.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.UserRecord, error) {
	var (
		idStr     string
		role      string
		resetHash *string
		user      auth.UserRecord
	)

	if err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&role,
		&user.Photo,
		&user.PasswordHash,
		&user.PasswordChangedAt,
		&resetHash,
		&user.PasswordResetExpiresAt,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id
	user.Role = auth.Role(role)
	if resetHash != nil {
		user.PasswordResetTokenHash = *resetHash
	}
	return &user, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
