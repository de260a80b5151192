// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultTokenTTL = 90 * 24 * time.Hour
	// MinSecretLength is the shortest signing secret accepted in production.
	MinSecretLength = 32
)

// Token verification errors. Both are reported as 401 by the HTTP layer.
var (
	ErrTokenInvalid = fail(CodeTokenInvalid, "Invalid token. Please login again")
	ErrTokenExpired = fail(CodeTokenExpired, "Token Expired. please login again")
)

// TokenConfig configures a TokenIssuer.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
}

// Claims is the payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
}

// VerifiedToken is what a valid token proves.
type VerifiedToken struct {
	UserID   ulid.ULID
	IssuedAt time.Time
}

// Token is a freshly signed session token.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(cfg TokenConfig, now func() time.Time) (*TokenIssuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, oops.Code("TOKEN_CONFIG").Errorf("signing secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, oops.Code("TOKEN_CONFIG").With("ttl", cfg.TTL).Errorf("token TTL must be positive")
	}
	if now == nil {
		now = time.Now
	}
	i := &TokenIssuer{
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		now:    now,
	}
	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	)
	return i, nil
}

// TTL returns the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for userID with the current time as issued-at.
func (i *TokenIssuer) Issue(userID ulid.ULID) (Token, error) {
	iat := i.now().Truncate(time.Second)
	exp := iat.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, oops.Code("TOKEN_SIGN_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return Token{Value: signed, IssuedAt: iat, ExpiresAt: exp}, nil
}

// Verify checks the signature and lifetime of a token.
// Expired tokens yield ErrTokenExpired; every other failure yields ErrTokenInvalid.
func (i *TokenIssuer) Verify(tokenString string) (VerifiedToken, error) {
	claims := &Claims{}
	token, err := i.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifiedToken{}, ErrTokenExpired
		}
		return VerifiedToken{}, ErrTokenInvalid
	}
	if !token.Valid || claims.IssuedAt == nil {
		return VerifiedToken{}, ErrTokenInvalid
	}

	id, err := ulid.ParseStrict(claims.UserID)
	if err != nil || claims.Subject != claims.UserID {
		return VerifiedToken{}, ErrTokenInvalid
	}
	return VerifiedToken{UserID: id, IssuedAt: claims.IssuedAt.Time}, nil
}
