// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/samber/oops"
)

// loginHashNonceBytes keeps hashes issued within the same clock tick distinct.
const loginHashNonceBytes = 16

// GenerateLoginHash derives a login hash for a member at the given time:
// hex(sha256(salt || member_id || unix_nanos || nonce)).
func GenerateLoginHash(salt string, memberID int64, at time.Time) (string, error) {
	nonce := make([]byte, loginHashNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", oops.Code("AUTH_LOGIN_HASH_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", loginHashNonceBytes).
			Wrap(err)
	}

	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte(strconv.FormatInt(memberID, 10)))
	h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)), nil
}
