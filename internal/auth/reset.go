// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset secret configuration.
const (
	ResetSecretBytes   = 32               // 32 bytes = 64 hex chars
	DefaultResetWindow = 10 * time.Minute // validity of a reset secret
)

// ErrResetTokenInvalid covers wrong, expired and already used secrets alike.
var ErrResetTokenInvalid = fail(CodeResetTokenInvalid, "Token is invalid or has expired")

// ResetConfig configures the reset handshake.
type ResetConfig struct {
	// Window is how long a reset secret stays valid.
	Window time.Duration
}

// GenerateResetSecret creates a secure random secret and its hash.
// Returns (plaintext_secret, sha256_hash, error).
// The plaintext is sent to the user; only the hash is stored.
func GenerateResetSecret() (secret, hash string, err error) {
	buf := make([]byte, ResetSecretBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	secret = hex.EncodeToString(buf)
	return secret, HashResetSecret(secret), nil
}

// HashResetSecret computes the hex SHA256 digest stored for a reset secret.
func HashResetSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}
