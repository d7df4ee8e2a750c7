// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package authtest provides in-memory implementations of the auth storage
// interfaces for tests.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/memberauth/memberauth/internal/auth"
)

// MemoryStore is a CredentialStore backed by maps. Values are cloned on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu          sync.Mutex
	members     map[int64]*auth.Member
	credentials map[int64]*auth.Credential // member id -> credential
	nextMember  int64
	nextCred    int64

	// FailCredentialInsert makes CreateMemberWithCredential fail after the
	// member was written, exercising rollback.
	FailCredentialInsert bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:     make(map[int64]*auth.Member),
		credentials: make(map[int64]*auth.Credential),
	}
}

// FindMemberByID implements auth.CredentialStore.
func (s *MemoryStore) FindMemberByID(_ context.Context, id int64) (*auth.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[id]
	if !ok {
		return nil, notFound("member", id)
	}
	out := m.Clone()
	out.Credential = s.credentials[id].Clone()
	return out, nil
}

// FindCredentialByEmail implements auth.CredentialStore.
func (s *MemoryStore) FindCredentialByEmail(_ context.Context, email string) (*auth.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.byEmail(email); c != nil {
		return c.Clone(), nil
	}
	return nil, oops.With("email", email).Wrapf(auth.ErrNotFound, "credential not found")
}

// FindCredentialByEmailAndPasswordHash implements auth.CredentialStore.
func (s *MemoryStore) FindCredentialByEmailAndPasswordHash(_ context.Context, email, passwordHash string) (*auth.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.byEmail(email); c != nil && c.PasswordHash == passwordHash {
		return c.Clone(), nil
	}
	return nil, oops.With("email", email).Wrapf(auth.ErrNotFound, "credential not found")
}

// FindCredentialByMemberID implements auth.CredentialStore.
func (s *MemoryStore) FindCredentialByMemberID(_ context.Context, memberID int64) (*auth.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[memberID]
	if !ok {
		return nil, notFound("credential", memberID)
	}
	return c.Clone(), nil
}

// EmailTaken implements auth.CredentialStore.
func (s *MemoryStore) EmailTaken(_ context.Context, email string, excludeMemberID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byEmail(email)
	return c != nil && c.MemberID != excludeMemberID, nil
}

// CreateMemberWithCredential implements auth.CredentialStore.
func (s *MemoryStore) CreateMemberWithCredential(_ context.Context, member *auth.Member, credential *auth.Credential) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byEmail(credential.Email) != nil {
		return 0, oops.With("email", credential.Email).Wrapf(auth.ErrDuplicateEmail, "email address already in use")
	}

	s.nextMember++
	id := s.nextMember
	m := member.Clone()
	m.ID = id
	m.Credential = nil
	s.members[id] = m

	if s.FailCredentialInsert {
		delete(s.members, id)
		return 0, oops.Errorf("credential insert failed")
	}

	s.nextCred++
	c := credential.Clone()
	c.ID = s.nextCred
	c.MemberID = id
	c.Version = 1
	c.MarkClean()
	s.credentials[id] = c

	member.ID = id
	credential.ID = c.ID
	credential.MemberID = id
	credential.Version = c.Version
	credential.MarkClean()
	return id, nil
}

// SaveMember implements auth.CredentialStore.
func (s *MemoryStore) SaveMember(_ context.Context, member *auth.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[member.ID]; !ok {
		return notFound("member", member.ID)
	}
	m := member.Clone()
	m.Credential = nil
	m.UpdatedAt = time.Now()
	s.members[member.ID] = m
	return nil
}

// SaveCredential implements auth.CredentialStore.
func (s *MemoryStore) SaveCredential(_ context.Context, credential *auth.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.credentials[credential.MemberID]
	if !ok {
		return notFound("credential", credential.MemberID)
	}
	if current.Version != credential.Version {
		return oops.
			With("member_id", credential.MemberID).
			With("version", credential.Version).
			Wrapf(auth.ErrConflict, "credential was modified concurrently")
	}
	if other := s.byEmail(credential.Email); other != nil && other.MemberID != credential.MemberID {
		return oops.With("email", credential.Email).Wrapf(auth.ErrDuplicateEmail, "email address already in use")
	}

	c := credential.Clone()
	c.Version++
	c.UpdatedAt = time.Now()
	c.MarkClean()
	s.credentials[credential.MemberID] = c

	credential.Version = c.Version
	credential.UpdatedAt = c.UpdatedAt
	credential.MarkClean()
	return nil
}

// DeleteMember implements auth.CredentialStore.
func (s *MemoryStore) DeleteMember(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; !ok {
		return notFound("member", id)
	}
	delete(s.members, id)
	delete(s.credentials, id)
	return nil
}

// MemberCount returns the number of stored members.
func (s *MemoryStore) MemberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// CredentialCount returns the number of stored credentials.
func (s *MemoryStore) CredentialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.credentials)
}

func (s *MemoryStore) byEmail(email string) *auth.Credential {
	for _, c := range s.credentials {
		if strings.EqualFold(c.Email, email) {
			return c
		}
	}
	return nil
}

func notFound(kind string, id int64) error {
	return oops.With("kind", kind).With("id", id).Wrapf(auth.ErrNotFound, "%s not found", kind)
}

var _ auth.CredentialStore = (*MemoryStore)(nil)
