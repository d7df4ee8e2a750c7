// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberauth/memberauth/internal/auth"
	"github.com/memberauth/memberauth/pkg/errutil"
)

// testParams keeps argon2 cheap in tests.
var testParams = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1}

func newTestHasher(t *testing.T, salt string) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasher(salt, testParams)
	require.NoError(t, err)
	return h
}

func TestNewArgon2idHasher(t *testing.T) {
	t.Run("rejects empty salt", func(t *testing.T) {
		_, err := auth.NewArgon2idHasher("", testParams)
		require.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_SALT")
	})

	t.Run("rejects zero parameters", func(t *testing.T) {
		_, err := auth.NewArgon2idHasher("salt", auth.Argon2Params{})
		require.ErrorIs(t, err, auth.ErrInvalidInput)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH_PARAMS")
	})

	t.Run("default parameters", func(t *testing.T) {
		p := auth.DefaultArgon2Params()
		assert.Equal(t, uint32(auth.DefaultArgon2Time), p.Time)
		assert.Equal(t, uint32(auth.DefaultArgon2Memory), p.Memory)
		assert.Equal(t, uint8(auth.DefaultArgon2Threads), p.Threads)
	})
}

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := newTestHasher(t, "site-salt")

	t.Run("produces argon2id encoding", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	})

	t.Run("same password produces the same hash", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.Equal(t, hash1, hash2)
	})

	t.Run("different passwords produce different hashes", func(t *testing.T) {
		hash1, err := hasher.Hash("password1")
		require.NoError(t, err)
		hash2, err := hasher.Hash("password2")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("salt changes the hash", func(t *testing.T) {
		other := newTestHasher(t, "other-salt")
		hash1, err := hasher.Hash("password")
		require.NoError(t, err)
		hash2, err := other.Hash("password")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.ErrorIs(t, err, auth.ErrInvalidInput)
	})
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := newTestHasher(t, "site-salt")
	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty password fails without error", func(t *testing.T) {
		ok, err := hasher.Verify("", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty stored hash is an error", func(t *testing.T) {
		_, err := hasher.Verify("password", "")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
	})

	t.Run("hash from a different salt fails", func(t *testing.T) {
		other := newTestHasher(t, "other-salt")
		ok, err := other.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
