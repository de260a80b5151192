// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by repositories when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// Kind classifies an error for the transport boundary.
type Kind int

// Error kinds. KindInternal is the zero value so unclassified errors never leak.
const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindDelivery:
		return "delivery"
	default:
		return "internal"
	}
}

// Operational reports whether errors of this kind carry a client-safe message.
func (k Kind) Operational() bool {
	return k != KindInternal
}

// Error codes with a client-visible meaning.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeMissingCredentials = "AUTH_MISSING_CREDENTIALS"
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeTokenMissing       = "AUTH_TOKEN_MISSING"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeUserGone           = "AUTH_USER_GONE"
	CodePasswordChanged    = "AUTH_PASSWORD_CHANGED"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeWrongPassword      = "AUTH_WRONG_PASSWORD"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeDeliveryFailed     = "RESET_DELIVERY_FAILED"
	CodePasswordNotAllowed = "AUTH_PASSWORD_NOT_ALLOWED"
)

var kindByCode = map[string]Kind{
	CodeInvalidInput:       KindValidation,
	CodeMissingCredentials: KindValidation,
	CodeEmailTaken:         KindValidation,
	CodeEmptyPassword:      KindValidation,
	CodeResetTokenInvalid:  KindValidation,
	CodePasswordNotAllowed: KindValidation,
	CodeInvalidCredentials: KindUnauthenticated,
	CodeTokenMissing:       KindUnauthenticated,
	CodeTokenInvalid:       KindUnauthenticated,
	CodeTokenExpired:       KindUnauthenticated,
	CodeUserGone:           KindUnauthenticated,
	CodePasswordChanged:    KindUnauthenticated,
	CodeForbidden:          KindForbidden,
	CodeWrongPassword:      KindForbidden,
	CodeUserNotFound:       KindNotFound,
	CodeNotFound:           KindNotFound,
	CodeDeliveryFailed:     KindDelivery,
}

// KindOf maps an error to its Kind using its oops code.
// Errors without a known code are KindInternal.
func KindOf(err error) Kind {
	code := ErrorCode(err)
	if code == "" {
		return KindInternal
	}
	return kindByCode[code]
}

// ErrorCode returns the oops code carried by err, or "" if there is none.
func ErrorCode(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// PublicMessage returns the client-safe message of an operational error.
// Internal errors yield the empty string.
func PublicMessage(err error) string {
	if !KindOf(err).Operational() {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if msg := oopsErr.Public(); msg != "" {
		return msg
	}
	return oopsErr.Error()
}

// fail builds an operational error whose message is safe to show to clients.
func fail(code, msg string) error {
	return oops.Code(code).Public(msg).Errorf("%s", msg)
}

// InvalidInput returns a Validation error carrying msg for the client.
func InvalidInput(msg string) error {
	return fail(CodeInvalidInput, msg)
}

// NotFound returns a NotFound error carrying msg for the client.
func NotFound(msg string) error {
	return fail(CodeNotFound, msg)
}
