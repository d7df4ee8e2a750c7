// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import "errors"

// Error kinds. Every error returned by this package and by CredentialStore
// implementations wraps exactly one of these; test with errors.Is.
var (
	// ErrInvalidInput is returned for malformed email addresses, empty
	// passwords, unknown attribute names and empty member ids.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateEmail is returned when an email address is already used
	// by another credential.
	ErrDuplicateEmail = errors.New("email address already in use")

	// ErrNotFound is returned when a requested member or credential does not exist.
	ErrNotFound = errors.New("not found")

	// ErrWrongPassword is returned when the old password supplied with a
	// password change does not match the stored one.
	ErrWrongPassword = errors.New("wrong password")

	// ErrUnauthenticated is returned by operations that need a resolved member.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrConflict is returned by a store when a credential was modified
	// concurrently since it was loaded.
	ErrConflict = errors.New("concurrent modification")
)

// KindOf returns the error kind wrapped by err, or nil if err carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrInvalidInput,
		ErrDuplicateEmail,
		ErrNotFound,
		ErrWrongPassword,
		ErrUnauthenticated,
		ErrConflict,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
