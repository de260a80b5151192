// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package authtest provides test helpers for authentication.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tourbook/tourbook/internal/auth"
)

// MemoryRepository is an in-memory UserRepository. Writes are serialized by a
// single mutex, which makes ConsumeResetSecret atomic like the SQL version.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[ulid.ULID]*auth.UserRecord
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[ulid.ULID]*auth.UserRecord)}
}

func clone(rec *auth.UserRecord) *auth.UserRecord {
	c := *rec
	return &c
}

// Create implements auth.UserRepository.
func (r *MemoryRepository) Create(_ context.Context, user *auth.UserRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return auth.ErrDuplicateEmail
		}
	}
	r.users[user.ID] = clone(user)
	return nil
}

// GetByID implements auth.UserRepository.
func (r *MemoryRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !u.Active {
		return nil, auth.ErrNotFound
	}
	return clone(u), nil
}

// GetByEmail implements auth.UserRepository.
func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*auth.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Active && u.Email == auth.NormalizeEmail(email) {
			return clone(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

// UpdatePassword implements auth.UserRepository.
func (r *MemoryRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string, changedAt time.Time) error {
	return r.update(id, func(u *auth.UserRecord) {
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = &changedAt
	})
}

// UpdatePasswordHash implements auth.UserRepository.
func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	return r.update(id, func(u *auth.UserRecord) { u.PasswordHash = passwordHash })
}

// UpdateProfile implements auth.UserRepository.
func (r *MemoryRepository) UpdateProfile(_ context.Context, id ulid.ULID, name, email string, now time.Time) (*auth.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !u.Active {
		return nil, auth.ErrNotFound
	}
	for otherID, other := range r.users {
		if otherID != id && other.Email == email {
			return nil, auth.ErrDuplicateEmail
		}
	}
	u.Name = name
	u.Email = email
	u.UpdatedAt = now
	return clone(u), nil
}

// SetResetSecret implements auth.UserRepository.
func (r *MemoryRepository) SetResetSecret(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	return r.update(id, func(u *auth.UserRecord) {
		u.PasswordResetTokenHash = tokenHash
		u.PasswordResetExpiresAt = &expiresAt
	})
}

// ClearResetSecret implements auth.UserRepository.
func (r *MemoryRepository) ClearResetSecret(_ context.Context, id ulid.ULID, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok && u.PasswordResetTokenHash == tokenHash {
		u.PasswordResetTokenHash = ""
		u.PasswordResetExpiresAt = nil
	}
	return nil
}

// ConsumeResetSecret implements auth.UserRepository.
func (r *MemoryRepository) ConsumeResetSecret(_ context.Context, tokenHash, passwordHash string, now time.Time) (*auth.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if !u.Active || u.PasswordResetTokenHash != tokenHash || !u.HasPendingReset(now) {
			continue
		}
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = &now
		u.PasswordResetTokenHash = ""
		u.PasswordResetExpiresAt = nil
		u.UpdatedAt = now
		return clone(u), nil
	}
	return nil, auth.ErrNotFound
}

// Deactivate implements auth.UserRepository.
func (r *MemoryRepository) Deactivate(_ context.Context, id ulid.ULID) error {
	return r.update(id, func(u *auth.UserRecord) {
		u.Active = false
		u.PasswordResetTokenHash = ""
		u.PasswordResetExpiresAt = nil
	})
}

// PurgeExpiredResets implements auth.UserRepository.
func (r *MemoryRepository) PurgeExpiredResets(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		if u.PasswordResetExpiresAt != nil && !now.Before(*u.PasswordResetExpiresAt) {
			u.PasswordResetTokenHash = ""
			u.PasswordResetExpiresAt = nil
			n++
		}
	}
	return n, nil
}

// Record returns a copy of the stored record, including inactive ones.
func (r *MemoryRepository) Record(id ulid.ULID) (*auth.UserRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, false
	}
	return clone(u), true
}

// SetRole changes a user's role.
func (r *MemoryRepository) SetRole(id ulid.ULID, role auth.Role) {
	_ = r.update(id, func(u *auth.UserRecord) { u.Role = role })
}

func (r *MemoryRepository) update(id ulid.ULID, fn func(*auth.UserRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !u.Active {
		return auth.ErrNotFound
	}
	fn(u)
	return nil
}

// Mail is one message captured by RecordingMailer.
type Mail struct {
	Kind string
	To   string
	URL  string
}

// RecordingMailer records sent mail and can be told to fail.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []Mail
	Err  error
}

// SendWelcome implements auth.Mailer.
func (m *RecordingMailer) SendWelcome(_ context.Context, to *auth.User, url string) error {
	return m.record("welcome", to, url)
}

// SendPasswordReset implements auth.Mailer.
func (m *RecordingMailer) SendPasswordReset(_ context.Context, to *auth.User, url string) error {
	return m.record("reset", to, url)
}

func (m *RecordingMailer) record(kind string, to *auth.User, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, Mail{Kind: kind, To: to.Email, URL: url})
	return nil
}

// Sent returns the mail recorded so far.
func (m *RecordingMailer) Sent() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}

// Verify interfaces are satisfied.
var (
	_ auth.UserRepository = (*MemoryRepository)(nil)
	_ auth.Mailer         = (*RecordingMailer)(nil)
)
