// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/memberauth/memberauth/pkg/errutil"
)

// CredentialService manages the lifecycle of member credentials: creation,
// updates, password changes and resets, and deletion.
type CredentialService struct {
	store      CredentialStore
	hasher     PasswordHasher
	attributes *AttributeSchema
	logger     *slog.Logger
}

// CredentialServiceOption configures a CredentialService.
type CredentialServiceOption func(*CredentialService)

// WithAttributeSchema restricts which free-form attributes UpdateUser accepts.
func WithAttributeSchema(schema *AttributeSchema) CredentialServiceOption {
	return func(s *CredentialService) {
		if schema != nil {
			s.attributes = schema
		}
	}
}

// WithServiceLogger sets the logger of a CredentialService.
func WithServiceLogger(l *slog.Logger) CredentialServiceOption {
	return func(s *CredentialService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewCredentialService creates a new CredentialService.
// Without WithAttributeSchema every non-reserved attribute name is accepted.
func NewCredentialService(store CredentialStore, hasher PasswordHasher, opts ...CredentialServiceOption) (*CredentialService, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	s := &CredentialService{
		store:      store,
		hasher:     hasher,
		attributes: AllowAllAttributes(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateUser registers a new member with an email/password credential and
// returns the new member id. The member and its credential are stored as one
// unit; if either fails nothing is stored.
func (s *CredentialService) CreateUser(ctx context.Context, email, password, name string) (int64, error) {
	id, err := s.createUser(ctx, email, password, name)
	CredentialMutations.WithLabelValues("create", mutationStatus(err)).Inc()
	return id, err
}

func (s *CredentialService) createUser(ctx context.Context, email, password, name string) (int64, error) {
	password = strings.TrimSpace(password)
	if password == "" {
		return 0, oops.Code("AUTH_EMPTY_PASSWORD").Wrapf(ErrInvalidInput, "email address or password can't be empty")
	}
	email, err := ValidateEmail(email)
	if err != nil {
		return 0, err
	}

	duplicate, err := s.store.FindCredentialByEmail(ctx, email)
	switch {
	case err == nil && strings.EqualFold(duplicate.Email, email):
		return 0, oops.Code("AUTH_DUPLICATE_EMAIL").
			With("email", email).
			Wrapf(ErrDuplicateEmail, "email address already exists")
	case err != nil && !errors.Is(err, ErrNotFound):
		return 0, oops.Code("AUTH_CREATE_USER_FAILED").
			With("operation", "find credential by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return 0, oops.Code("AUTH_CREATE_USER_FAILED").With("operation", "hash password").Wrap(err)
	}
	cred, err := NewCredential(email, hash)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	member := &Member{
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}

	id, err := s.store.CreateMemberWithCredential(ctx, member, cred)
	if err != nil {
		// lost a race against a concurrent registration of the same address
		if errors.Is(err, ErrDuplicateEmail) {
			return 0, oops.Code("AUTH_DUPLICATE_EMAIL").
				With("email", email).
				Wrap(err)
		}
		errutil.LogError(ctx, s.logger, "creating member failed", err)
		return 0, oops.Code("AUTH_CREATE_USER_FAILED").
			With("operation", "create member with credential").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "member created", "member_id", id)
	return id, nil
}

// UpdateUser applies an Update to a member's credential and reports whether
// anything changed. A zero memberID means the member authenticated on ctx.
//
// Changing the password requires the matching old password. The credential
// is only written when something changed.
func (s *CredentialService) UpdateUser(ctx context.Context, update Update, memberID int64) (bool, error) {
	updated, err := s.updateUser(ctx, update, memberID)
	CredentialMutations.WithLabelValues("update", mutationStatus(err)).Inc()
	return updated, err
}

func (s *CredentialService) updateUser(ctx context.Context, update Update, memberID int64) (bool, error) {
	if memberID == 0 {
		memberID = MemberIDFromContext(ctx)
	}
	if memberID <= 0 {
		return false, oops.Code("AUTH_MEMBER_NOT_FOUND").Wrapf(ErrNotFound, "member not found")
	}

	member, err := s.store.FindMemberByID(ctx, memberID)
	if err != nil {
		return false, s.lookupError(err, memberID)
	}
	cred := member.Credential
	if cred == nil {
		if cred, err = s.store.FindCredentialByMemberID(ctx, memberID); err != nil {
			return false, s.lookupError(err, memberID)
		}
	}

	if update.Password != nil {
		if err := s.checkOldPassword(update.OldPassword, cred.PasswordHash, memberID); err != nil {
			return false, err
		}
		password := strings.TrimSpace(*update.Password)
		if password == "" {
			return false, oops.Code("AUTH_EMPTY_PASSWORD").
				With("member_id", memberID).
				Wrapf(ErrInvalidInput, "password can't be empty")
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return false, oops.Code("AUTH_UPDATE_USER_FAILED").With("operation", "hash password").Wrap(err)
		}
		cred.SetPasswordHash(hash)
	}

	if update.Email != nil {
		email, err := ValidateEmail(*update.Email)
		if err != nil {
			return false, err
		}
		taken, err := s.store.EmailTaken(ctx, email, memberID)
		if err != nil {
			return false, oops.Code("AUTH_UPDATE_USER_FAILED").With("operation", "check email").Wrap(err)
		}
		if taken {
			return false, oops.Code("AUTH_DUPLICATE_EMAIL").
				With("email", email).
				With("member_id", memberID).
				Wrapf(ErrDuplicateEmail, "email address is already in use")
		}
		cred.SetEmail(email)
	}

	for name := range update.Attributes {
		if err := s.attributes.Validate(name); err != nil {
			return false, err
		}
	}

	updated := false
	for name, value := range update.Attributes {
		if v, ok := value.Value(); ok {
			updated = cred.SetAttribute(name, v) || updated
		} else {
			updated = cred.RemoveAttribute(name) || updated
		}
	}

	if !updated && !cred.IsChanged() {
		return false, nil
	}

	if err := s.store.SaveCredential(ctx, cred); err != nil {
		return false, oops.Code("AUTH_UPDATE_USER_FAILED").
			With("operation", "save credential").
			With("member_id", memberID).
			Wrap(err)
	}
	return true, nil
}

func (s *CredentialService) checkOldPassword(old *string, storedHash string, memberID int64) error {
	wrong := oops.Code("AUTH_WRONG_PASSWORD").
		With("member_id", memberID).
		Wrapf(ErrWrongPassword, "old password is invalid")
	if old == nil {
		return wrong
	}
	candidate := strings.TrimSpace(*old)
	if candidate == "" || storedHash == "" {
		return wrong
	}
	ok, err := s.hasher.Verify(candidate, storedHash)
	if err != nil || !ok {
		return wrong
	}
	return nil
}

// ChangePassword replaces a member's password after checking the old one.
// A wrong old password yields (false, nil); other failures are returned.
func (s *CredentialService) ChangePassword(ctx context.Context, oldPassword, newPassword string, memberID int64) (bool, error) {
	updated, err := s.UpdateUser(ctx, Update{
		OldPassword: &oldPassword,
		Password:    &newPassword,
	}, memberID)
	if errors.Is(err, ErrWrongPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return updated, nil
}

// ResetPassword sets a freshly generated random password for a member and
// returns it in plaintext for out-of-band delivery.
func (s *CredentialService) ResetPassword(ctx context.Context, memberID int64) (string, error) {
	password, err := RandomAlnum(ResetPasswordLength)
	if err != nil {
		return "", err
	}
	if err := s.SetPassword(ctx, memberID, password); err != nil {
		return "", err
	}
	return password, nil
}

// SetPassword stores a new password without checking the old one.
func (s *CredentialService) SetPassword(ctx context.Context, memberID int64, password string) error {
	err := s.setPassword(ctx, memberID, password)
	CredentialMutations.WithLabelValues("set_password", mutationStatus(err)).Inc()
	return err
}

func (s *CredentialService) setPassword(ctx context.Context, memberID int64, password string) error {
	if memberID <= 0 {
		return oops.Code("AUTH_INVALID_MEMBER_ID").Wrapf(ErrInvalidInput, "member id was invalid")
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return oops.Code("AUTH_EMPTY_PASSWORD").Wrapf(ErrInvalidInput, "password can't be empty")
	}

	cred, err := s.store.FindCredentialByMemberID(ctx, memberID)
	if err != nil {
		return s.lookupError(err, memberID)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code("AUTH_SET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	cred.SetPasswordHash(hash)
	if err := s.store.SaveCredential(ctx, cred); err != nil {
		return oops.Code("AUTH_SET_PASSWORD_FAILED").
			With("operation", "save credential").
			With("member_id", memberID).
			Wrap(err)
	}
	return nil
}

// DeleteUser removes a member and its credential.
func (s *CredentialService) DeleteUser(ctx context.Context, memberID int64) (bool, error) {
	err := s.deleteUser(ctx, memberID)
	CredentialMutations.WithLabelValues("delete", mutationStatus(err)).Inc()
	return err == nil, err
}

func (s *CredentialService) deleteUser(ctx context.Context, memberID int64) error {
	if memberID <= 0 {
		return oops.Code("AUTH_INVALID_MEMBER_ID").Wrapf(ErrInvalidInput, "cannot delete user with empty member id")
	}
	if _, err := s.store.FindMemberByID(ctx, memberID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_INVALID_MEMBER_ID").
				With("member_id", memberID).
				Wrapf(ErrInvalidInput, "cannot delete unknown member")
		}
		return oops.Code("AUTH_DELETE_USER_FAILED").With("operation", "find member").Wrap(err)
	}

	if err := s.store.DeleteMember(ctx, memberID); err != nil {
		return oops.Code("AUTH_DELETE_USER_FAILED").
			With("operation", "delete member").
			With("member_id", memberID).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "member deleted", "member_id", memberID)
	return nil
}

func (s *CredentialService) lookupError(err error, memberID int64) error {
	if errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_MEMBER_NOT_FOUND").
			With("member_id", memberID).
			Wrap(err)
	}
	return oops.Code("AUTH_LOOKUP_FAILED").
		With("member_id", memberID).
		Wrap(err)
}
