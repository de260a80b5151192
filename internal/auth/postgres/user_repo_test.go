// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourbook/tourbook/internal/auth"
	"github.com/tourbook/tourbook/internal/auth/postgres"
	"github.com/tourbook/tourbook/pkg/errutil"
)

var userCols = []string{
	"id", "name", "email", "role", "photo", "password_hash", "password_changed_at",
	"password_reset_token_hash", "password_reset_expires_at", "active",
	"created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func userRow(id ulid.ULID, changedAt *time.Time) *pgxmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(userCols).AddRow(
		id.String(), "Jo Public", "jo@example.com", "guide", "default.jpg", "$argon2id$hash",
		changedAt, (*string)(nil), (*time.Time)(nil), true, now, now,
	)
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	rec := &auth.UserRecord{
		User: auth.User{
			ID:        ulid.Make(),
			Name:      "Jo Public",
			Email:     "jo@example.com",
			Role:      auth.RoleUser,
			Photo:     auth.DefaultPhoto,
			CreatedAt: now,
		},
		PasswordHash: "$argon2id$hash",
		Active:       true,
		UpdatedAt:    now,
	}

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		check     func(t *testing.T, err error)
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(rec.ID.String(), rec.Name, rec.Email, "user", rec.Photo, rec.PasswordHash,
						rec.PasswordChangedAt, true, rec.CreatedAt, rec.UpdatedAt).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			check: func(t *testing.T, err error) { require.NoError(t, err) },
		},
		{
			name: "unique violation is a duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "idx_users_email_lower"})
			},
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.True(t, errors.Is(err, auth.ErrDuplicateEmail))
			},
		},
		{
			name: "other errors are wrapped",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
						pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(errors.New("connection refused"))
			},
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				assert.False(t, errors.Is(err, auth.ErrDuplicateEmail))
				assert.Contains(t, err.Error(), "connection refused")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)
			tt.check(t, postgres.NewUserRepository(mock).Create(ctx, rec))
		})
	}
}

func TestUserRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("scans the row", func(t *testing.T) {
		mock := newMock(t)
		changed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`(?s)SELECT .+ FROM users\s+WHERE id = \$1 AND active`).
			WithArgs(id.String()).
			WillReturnRows(userRow(id, &changed))

		rec, err := postgres.NewUserRepository(mock).GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, auth.RoleGuide, rec.Role)
		require.NotNil(t, rec.PasswordChangedAt)
		assert.Equal(t, changed, *rec.PasswordChangedAt)
		assert.Empty(t, rec.PasswordResetTokenHash)
	})

	t.Run("no rows is not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`(?s)SELECT .+ FROM users`).
			WithArgs(id.String()).
			WillReturnError(pgx.ErrNoRows)

		_, err := postgres.NewUserRepository(mock).GetByID(ctx, id)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	mock := newMock(t)
	mock.ExpectQuery(`WHERE LOWER\(email\) = LOWER\(\$1\) AND active`).
		WithArgs("jo@example.com").
		WillReturnRows(userRow(id, nil))

	rec, err := postgres.NewUserRepository(mock).GetByEmail(ctx, "jo@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Nil(t, rec.PasswordChangedAt)
}

func TestUserRepository_Updates(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pattern string
		args    []any
		run     func(r *postgres.UserRepository) error
	}{
		{
			name:    "update password",
			pattern: `UPDATE users\s+SET password_hash = \$2, password_changed_at = \$3`,
			args:    []any{id.String(), "$argon2id$new", at},
			run:     func(r *postgres.UserRepository) error { return r.UpdatePassword(ctx, id, "$argon2id$new", at) },
		},
		{
			name:    "set reset secret",
			pattern: `SET password_reset_token_hash = \$2, password_reset_expires_at = \$3`,
			args:    []any{id.String(), "abc", at},
			run:     func(r *postgres.UserRepository) error { return r.SetResetSecret(ctx, id, "abc", at) },
		},
		{
			name:    "update password hash",
			pattern: `UPDATE users\s+SET password_hash = \$2, updated_at = NOW\(\)\s+WHERE id = \$1 AND active`,
			args:    []any{id.String(), "$argon2id$rehashed"},
			run:     func(r *postgres.UserRepository) error { return r.UpdatePasswordHash(ctx, id, "$argon2id$rehashed") },
		},
		{
			name:    "deactivate",
			pattern: `SET active = FALSE`,
			args:    []any{id.String()},
			run:     func(r *postgres.UserRepository) error { return r.Deactivate(ctx, id) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(tt.pattern).WithArgs(tt.args...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			require.NoError(t, tt.run(postgres.NewUserRepository(mock)))
		})

		t.Run(tt.name+" on missing user", func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectExec(tt.pattern).WithArgs(tt.args...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
			err := tt.run(postgres.NewUserRepository(mock))
			require.Error(t, err)
			assert.True(t, errors.Is(err, auth.ErrNotFound))
		})
	}
}

func TestUserRepository_ClearResetSecret(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	pattern := `SET password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = NOW\(\)\s+WHERE id = \$1 AND password_reset_token_hash = \$2`

	t.Run("clears matching secret", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(pattern).WithArgs(id.String(), "abc").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, postgres.NewUserRepository(mock).ClearResetSecret(ctx, id, "abc"))
	})

	t.Run("replaced secret is not an error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(pattern).WithArgs(id.String(), "abc").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		require.NoError(t, postgres.NewUserRepository(mock).ClearResetSecret(ctx, id, "abc"))
	})

	t.Run("database failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(pattern).WithArgs(id.String(), "abc").WillReturnError(assert.AnError)
		err := postgres.NewUserRepository(mock).ClearResetSecret(ctx, id, "abc")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_UPDATE_FAILED")
	})
}

func TestUserRepository_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pattern := `UPDATE users\s+SET name = \$2, email = \$3, updated_at = \$4\s+WHERE id = \$1 AND active\s+RETURNING`

	t.Run("returns updated row", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(pattern).
			WithArgs(id.String(), "Jo Public", "jo@example.com", now).
			WillReturnRows(userRow(id, nil))

		rec, err := postgres.NewUserRepository(mock).UpdateProfile(ctx, id, "Jo Public", "jo@example.com", now)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, "jo@example.com", rec.Email)
	})

	t.Run("taken email", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(pattern).
			WithArgs(id.String(), "Jo Public", "al@example.com", now).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

		_, err := postgres.NewUserRepository(mock).UpdateProfile(ctx, id, "Jo Public", "al@example.com", now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrDuplicateEmail))
	})

	t.Run("missing user", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(pattern).
			WithArgs(id.String(), "Jo Public", "jo@example.com", now).
			WillReturnError(pgx.ErrNoRows)

		_, err := postgres.NewUserRepository(mock).UpdateProfile(ctx, id, "Jo Public", "jo@example.com", now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
	})
}

func TestUserRepository_ConsumeResetSecret(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("match returns updated row", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE password_reset_token_hash = \$1\s+AND password_reset_expires_at > \$3\s+AND active\s+RETURNING`).
			WithArgs("hash", "$argon2id$new", now).
			WillReturnRows(userRow(id, &now))

		rec, err := postgres.NewUserRepository(mock).ConsumeResetSecret(ctx, "hash", "$argon2id$new", now)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
	})

	t.Run("no match is not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`UPDATE users`).
			WithArgs("hash", "$argon2id$new", now).
			WillReturnError(pgx.ErrNoRows)

		_, err := postgres.NewUserRepository(mock).ConsumeResetSecret(ctx, "hash", "$argon2id$new", now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, auth.ErrNotFound))
	})
}

func TestUserRepository_PurgeExpiredResets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock := newMock(t)
	mock.ExpectExec(`WHERE password_reset_expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := postgres.NewUserRepository(mock).PurgeExpiredResets(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
