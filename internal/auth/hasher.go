// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// OWASP-recommended argon2id defaults.
const (
	DefaultArgon2Time      = 1         // iterations
	DefaultArgon2MemoryKiB = 64 * 1024 // 64 MB
	DefaultArgon2Threads   = 4         // parallelism

	argon2SaltLen = 16 // salt length in bytes
	argon2KeyLen  = 32 // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = fail(CodeEmptyPassword, "password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an argon2id hash of the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(ctx context.Context, password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash should be re-computed with the current parameters.
	NeedsUpgrade(hash string) bool
}

// HasherConfig is the argon2id work factor plus the number of hashes allowed to run at once.
type HasherConfig struct {
	Time        uint32
	MemoryKiB   uint32
	Threads     uint8
	Concurrency int
}

// DefaultHasherConfig returns the OWASP defaults with one slot per CPU.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Time:        DefaultArgon2Time,
		MemoryKiB:   DefaultArgon2MemoryKiB,
		Threads:     DefaultArgon2Threads,
		Concurrency: runtime.GOMAXPROCS(0),
	}
}

// Argon2idHasher implements PasswordHasher using argon2id.
// Hashes produced by bcrypt are still accepted so older accounts can log in.
type Argon2idHasher struct {
	cfg   HasherConfig
	slots *semaphore.Weighted
}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher(cfg HasherConfig) (*Argon2idHasher, error) {
	if cfg.Time == 0 || cfg.MemoryKiB == 0 || cfg.Threads == 0 {
		return nil, oops.Code("AUTH_HASHER_CONFIG").
			With("time", cfg.Time).
			With("memory_kib", cfg.MemoryKiB).
			With("threads", cfg.Threads).
			Errorf("argon2id parameters must be positive")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Argon2idHasher{
		cfg:   cfg,
		slots: semaphore.NewWeighted(int64(cfg.Concurrency)),
	}, nil
}

// acquire waits for a hashing slot or for ctx to end.
func (h *Argon2idHasher) acquire(ctx context.Context) error {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return oops.Code("AUTH_HASHER_BUSY").Wrap(err)
	}
	return nil
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, h.cfg.Time, h.cfg.MemoryKiB, h.cfg.Threads, argon2KeyLen)
	h.slots.Release(1)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cfg.MemoryKiB,
		h.cfg.Time,
		h.cfg.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return h.verifyBcrypt(ctx, password, encodedHash)
	}

	params, salt, expectedHash, err := decodeArgon2id(encodedHash)
	if err != nil {
		return false, err
	}

	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	//nolint:gosec // G115: key length bounded by decodeArgon2id
	computedHash := argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKiB, params.Threads, uint32(len(expectedHash)))
	h.slots.Release(1)

	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

func (h *Argon2idHasher) verifyBcrypt(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.slots.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
}

// NeedsUpgrade returns true if the hash is not argon2id (e.g., bcrypt) or was
// produced with a different work factor than the one configured.
func (h *Argon2idHasher) NeedsUpgrade(hash string) bool {
	params, _, _, err := decodeArgon2id(hash)
	if err != nil {
		return true
	}
	return params.Time != h.cfg.Time || params.MemoryKiB != h.cfg.MemoryKiB || params.Threads != h.cfg.Threads
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

func decodeArgon2id(encodedHash string) (HasherConfig, []byte, []byte, error) {
	var params HasherConfig

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if time == 0 || memory == 0 {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("time and memory must be positive (t=%d, m=%d)", time, memory)
	}

	// threads must fit in uint8
	if threads == 0 || threads > 255 {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	if len(key) == 0 || len(key) > 1<<30 {
		return params, nil, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	params.Time = time
	params.MemoryKiB = memory
	params.Threads = uint8(threads)
	return params, salt, key, nil
}
