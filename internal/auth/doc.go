// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package auth provides authentication primitives for Tourbook.
//
// # Components
//
//   - CredentialStore - owns user records; every value it returns is redacted
//   - Argon2idHasher - slow salted hashing with a bounded number of concurrent hashes
//   - TokenIssuer - HS256 session tokens binding a user ID and issue time
//   - PasswordResetService - the one-time, time-boxed reset handshake
//   - Service - signup, login, password change and token resolution
//
// Services are created with New* constructors that validate dependencies.
//
// # Errors
//
// Errors carry samber/oops codes. KindOf maps a code to a Kind, and
// PublicMessage returns the client-safe text of operational kinds. Anything
// without a known code is KindInternal and must not be shown to clients.
package auth
