// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Default argon2id cost parameters (OWASP minimum profile).
const (
	DefaultArgon2Time    = 1         // iterations
	DefaultArgon2Memory  = 64 * 1024 // 64 MB
	DefaultArgon2Threads = 4         // parallelism
	argon2KeyLen         = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Wrapf(ErrInvalidInput, "password cannot be empty")

// PasswordHasher turns a plaintext password into its stored form.
//
// Hash must be deterministic: the same password always yields the same
// value, so credentials can be looked up by (email, hash).
type PasswordHasher interface {
	// Hash produces the stored form of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the stored hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid input.
	Verify(password, hash string) (bool, error)
}

// Argon2Params are the cost parameters of an Argon2idHasher.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultArgon2Params returns the production cost parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    DefaultArgon2Time,
		Memory:  DefaultArgon2Memory,
		Threads: DefaultArgon2Threads,
	}
}

// Argon2idHasher implements PasswordHasher with argon2id keyed by a
// site-wide salt.
type Argon2idHasher struct {
	salt   []byte
	params Argon2Params
}

// NewArgon2idHasher creates a hasher using the configured salt.
func NewArgon2idHasher(salt string, params Argon2Params) (*Argon2idHasher, error) {
	if salt == "" {
		return nil, oops.Code("AUTH_EMPTY_SALT").Wrapf(ErrInvalidInput, "password salt cannot be empty")
	}
	if params.Time == 0 || params.Memory == 0 || params.Threads == 0 {
		return nil, oops.Code("AUTH_INVALID_HASH_PARAMS").
			With("time", params.Time).
			With("memory", params.Memory).
			With("threads", params.Threads).
			Wrapf(ErrInvalidInput, "argon2 parameters must be positive")
	}
	return &Argon2idHasher{salt: []byte(salt), params: params}, nil
}

// Hash produces the argon2id hash of the password in a PHC-like encoding:
// $argon2id$v=19$m=65536,t=1,p=4$<key>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	key := argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, hash string) (bool, error) {
	if hash == "" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("stored hash cannot be empty")
	}
	if password == "" {
		return false, nil
	}
	computed, err := h.Hash(password)
	if err != nil {
		return false, err
	}
	// Constant-time comparison
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}

// Compile-time interface check.
var _ PasswordHasher = (*Argon2idHasher)(nil)
