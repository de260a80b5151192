// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Name and password constraints.
const (
	MinNameLength     = 3
	MaxNameLength     = 30
	MinPasswordLength = 8
	DefaultPhoto      = "default.jpg"
)

// Role is a user's authorization role.
type Role string

// Known roles.
const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin:
		return true
	}
	return false
}

// ParseRole parses a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", oops.Code(CodeInvalidInput).With("role", s).Errorf("unknown role %q", s)
	}
	return r, nil
}

// User is the public view of an account. It never carries credential material.
type User struct {
	ID                ulid.ULID  `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Role              Role       `json:"role"`
	Photo             string     `json:"photo"`
	PasswordChangedAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// ChangedPasswordAfter reports whether the password was changed after a token
// issued at iat. Token times have one-second resolution, so the change time is
// truncated before comparing. A token issued earlier in the same second as the
// change is still accepted.
func (u *User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Truncate(time.Second).After(iat)
}

// HasRole reports whether the user holds one of roles.
func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// UserRecord is the full persisted row. Only the credential store and its
// repository handle it.
type UserRecord struct {
	User
	PasswordHash           string
	PasswordResetTokenHash string
	PasswordResetExpiresAt *time.Time
	Active                 bool
	UpdatedAt              time.Time
}

// Public returns a copy of the record with every credential field dropped.
func (r *UserRecord) Public() *User {
	u := r.User
	return &u
}

// HasPendingReset reports whether a reset secret is outstanding at now.
func (r *UserRecord) HasPendingReset(now time.Time) bool {
	return r.PasswordResetTokenHash != "" && r.PasswordResetExpiresAt != nil && now.Before(*r.PasswordResetExpiresAt)
}

// SignupInput is the payload accepted when creating an account.
type SignupInput struct {
	Name            string `json:"name" validate:"required,min=3,max=30"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
	Photo           string `json:"photo" validate:"omitempty,max=255"`
}

// Normalize trims the name and lower-cases the email.
func (in *SignupInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
}

// PasswordChange is a new password together with its confirmation.
type PasswordChange struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// ProfileUpdate holds the profile fields a user may change about themselves.
// Empty fields keep their current value. Password and PasswordConfirm are
// only decoded so that requests carrying them can be refused.
type ProfileUpdate struct {
	Name            string `json:"name" validate:"omitempty,min=3,max=30"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"-"`
	PasswordConfirm string `json:"passwordConfirm" validate:"-"`
}

// Normalize trims the name and lower-cases the email.
func (in *ProfileUpdate) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUserRecord builds a validated record ready to be stored.
func NewUserRecord(in SignupInput, passwordHash string, now time.Time) (*UserRecord, error) {
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash cannot be empty")
	}
	photo := in.Photo
	if photo == "" {
		photo = DefaultPhoto
	}
	return &UserRecord{
		User: User{
			ID:        ulid.Make(),
			Name:      in.Name,
			Email:     in.Email,
			Role:      RoleUser,
			Photo:     photo,
			CreatedAt: now,
		},
		PasswordHash: passwordHash,
		Active:       true,
		UpdatedAt:    now,
	}, nil
}

// Validator checks input structs and renders failures as Validation errors.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator that reports fields by their JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates s.
func (v *Validator) Struct(ctx context.Context, s any) error {
	err := v.v.StructCtx(ctx, s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return oops.Code("AUTH_VALIDATOR_FAILED").Wrap(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fail(CodeInvalidInput, "Invalid input data: "+strings.Join(msgs, ". "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		switch fe.Field() {
		case "name":
			return "Please tell us your name"
		case "email":
			return "Please provide your email"
		case "passwordConfirm":
			return "Please confirm your password"
		}
		return "Please provide " + fe.Field()
	case "email":
		return "Please provide a valid email"
	case "eqfield":
		return "Passwords are not the same"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	}
	return fe.Field() + " is invalid"
}

// UserRepository manages user persistence.
// Every read method returns active users only and reports anything else as ErrNotFound.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateEmail when the email is taken.
	Create(ctx context.Context, user *UserRecord) error

	// GetByID retrieves an active user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*UserRecord, error)

	// GetByEmail retrieves an active user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)

	// UpdatePassword stores a new password hash and stamps the change time.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, changedAt time.Time) error

	// UpdatePasswordHash replaces the stored hash of an unchanged password.
	// The change time is left as it is.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateProfile sets the name and email of an active user and returns the
	// updated record. Returns ErrDuplicateEmail when the email is taken.
	UpdateProfile(ctx context.Context, id ulid.ULID, name, email string, now time.Time) (*UserRecord, error)

	// SetResetSecret stores the hash and expiry of a pending reset secret,
	// replacing any previous one.
	SetResetSecret(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// ClearResetSecret removes the pending reset secret of user id if its hash
	// is still tokenHash. A newer secret is left in place and no error is
	// returned when nothing matched.
	ClearResetSecret(ctx context.Context, id ulid.ULID, tokenHash string) error

	// ConsumeResetSecret sets the password of the active user whose pending
	// secret hash matches and has not expired at now, clearing the secret in
	// the same write. Returns ErrNotFound when no such user exists.
	ConsumeResetSecret(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*UserRecord, error)

	// Deactivate marks the user inactive.
	Deactivate(ctx context.Context, id ulid.ULID) error

	// PurgeExpiredResets clears reset secrets that expired before now.
	PurgeExpiredResets(ctx context.Context, now time.Time) (int64, error)
}
