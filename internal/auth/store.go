// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import (
	"context"
	"strconv"
)

// Session keys written by SessionManager.
const (
	SessionKeyMemberID  = "member_id"
	SessionKeyLoginHash = "login_hash"
)

// SessionState is the caller's session bag. Values are buffered in memory;
// the owner of the session persists them when the request finishes.
type SessionState interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)

	// Rotate issues a new session identifier on the next save, keeping the
	// stored values and invalidating the old identifier.
	Rotate()
}

// RememberMeStore is the long-lived remember-me bag. It lives apart from the
// session and has its own expiry.
type RememberMeStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

// CredentialStore manages member and credential persistence.
//
// Lookups return an error wrapping ErrNotFound when nothing matches. Email
// comparisons are case-insensitive.
type CredentialStore interface {
	// FindMemberByID retrieves a member with its credential eager-loaded.
	FindMemberByID(ctx context.Context, id int64) (*Member, error)

	// FindCredentialByEmail retrieves the credential owning an email address.
	FindCredentialByEmail(ctx context.Context, email string) (*Credential, error)

	// FindCredentialByEmailAndPasswordHash retrieves the credential matching
	// both the email address and the stored password hash.
	FindCredentialByEmailAndPasswordHash(ctx context.Context, email, passwordHash string) (*Credential, error)

	// FindCredentialByMemberID retrieves the credential of a member.
	FindCredentialByMemberID(ctx context.Context, memberID int64) (*Credential, error)

	// EmailTaken reports whether another member than excludeMemberID uses email.
	EmailTaken(ctx context.Context, email string, excludeMemberID int64) (bool, error)

	// CreateMemberWithCredential stores the member and its credential
	// atomically and returns the new member id. On failure nothing is stored.
	CreateMemberWithCredential(ctx context.Context, member *Member, credential *Credential) (int64, error)

	// SaveMember updates an existing member.
	SaveMember(ctx context.Context, member *Member) error

	// SaveCredential updates an existing credential and its attributes.
	// Fails with ErrConflict if the stored version differs from credential.Version.
	SaveCredential(ctx context.Context, credential *Credential) error

	// DeleteMember removes a member together with its credential.
	DeleteMember(ctx context.Context, id int64) error
}

type memberKey struct{}

// ContextWithMember returns a context carrying the authenticated member id.
func ContextWithMember(ctx context.Context, memberID int64) context.Context {
	return context.WithValue(ctx, memberKey{}, memberID)
}

// MemberIDFromContext returns the authenticated member id, or 0.
func MemberIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(memberKey{}).(int64)
	return id
}

// FormatMemberID renders a member id for session storage.
func FormatMemberID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseMemberID parses a member id read from session storage.
// Returns 0 for anything that is not a positive integer.
func ParseMemberID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
