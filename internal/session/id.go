// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package session

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/samber/oops"
)

// idBytes is the entropy of a session id.
const idBytes = 32

// GenerateID returns a random 256-bit session id, base64url encoded.
func GenerateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_ID_FAILED").Wrapf(err, "generate session id")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidID reports whether id has the shape of a generated session id.
// Cookies failing this check are ignored without a backend round trip.
func ValidID(id string) bool {
	if len(id) != base64.RawURLEncoding.EncodedLen(idBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(id)
	return err == nil
}
