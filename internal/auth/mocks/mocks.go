// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package mocks holds testify mocks of the auth collaborators.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/memberauth/memberauth/internal/auth"
)

// testingT is satisfied by *testing.T.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockCredentialStore is a mock for auth.CredentialStore.
type MockCredentialStore struct {
	mock.Mock
}

var _ auth.CredentialStore = (*MockCredentialStore)(nil)

// NewMockCredentialStore returns a mock whose expectations are asserted
// when t finishes.
func NewMockCredentialStore(t testingT) *MockCredentialStore {
	m := &MockCredentialStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockCredentialStore) FindMemberByID(ctx context.Context, id int64) (*auth.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Member), args.Error(1)
}

func (m *MockCredentialStore) FindCredentialByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	return credentialResult(m.Called(ctx, email))
}

func (m *MockCredentialStore) FindCredentialByEmailAndPasswordHash(ctx context.Context, email, passwordHash string) (*auth.Credential, error) {
	return credentialResult(m.Called(ctx, email, passwordHash))
}

func (m *MockCredentialStore) FindCredentialByMemberID(ctx context.Context, memberID int64) (*auth.Credential, error) {
	return credentialResult(m.Called(ctx, memberID))
}

func (m *MockCredentialStore) EmailTaken(ctx context.Context, email string, excludeMemberID int64) (bool, error) {
	args := m.Called(ctx, email, excludeMemberID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) CreateMemberWithCredential(ctx context.Context, member *auth.Member, credential *auth.Credential) (int64, error) {
	args := m.Called(ctx, member, credential)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCredentialStore) SaveMember(ctx context.Context, member *auth.Member) error {
	return m.Called(ctx, member).Error(0)
}

func (m *MockCredentialStore) SaveCredential(ctx context.Context, credential *auth.Credential) error {
	return m.Called(ctx, credential).Error(0)
}

func (m *MockCredentialStore) DeleteMember(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func credentialResult(args mock.Arguments) (*auth.Credential, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Credential), args.Error(1)
}

// MockPasswordHasher is a mock for auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)

// NewMockPasswordHasher returns a mock whose expectations are asserted
// when t finishes.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}
