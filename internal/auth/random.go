// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import (
	"crypto/rand"
	"math/big"

	"github.com/samber/oops"
)

// ResetPasswordLength is the length of passwords generated by ResetPassword.
const ResetPasswordLength = 8

const alnum = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomAlnum returns a random string of n characters from [0-9a-zA-Z].
func RandomAlnum(n int) (string, error) {
	if n <= 0 {
		return "", oops.Code("AUTH_RANDOM_LENGTH").Wrapf(ErrInvalidInput, "length must be positive, got %d", n)
	}
	limit := big.NewInt(int64(len(alnum)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", oops.Code("AUTH_RANDOM_FAILED").With("operation", "crypto/rand.Int").Wrap(err)
		}
		out[i] = alnum[idx.Int64()]
	}
	return string(out), nil
}
