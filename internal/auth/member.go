// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import (
	"maps"
	"net/mail"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Member is an identity record. Only ID and Name matter to authentication;
// the remaining fields are carried through unchanged.
type Member struct {
	ID            int64
	Name          string
	RegisterType  int
	FilesizeTotal int64
	// Credential is eager-loaded by CredentialStore.FindMemberByID.
	Credential *Credential
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Credential is the authentication record of a member (one per member).
//
// Mutations that go through the Set*/RemoveAttribute methods are tracked so
// callers can skip persistence when nothing changed.
type Credential struct {
	ID           int64
	MemberID     int64
	Email        string
	PasswordHash string
	LoginHash    string
	LastLogin    *time.Time
	Attributes   map[string]string
	// Version is the optimistic-locking counter maintained by the store.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	changed bool
}

// NewCredential creates a credential for a member that is about to be created.
// The email must already be validated and the password already hashed.
func NewCredential(email, passwordHash string) (*Credential, error) {
	if email == "" {
		return nil, oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrInvalidInput, "email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_EMPTY_PASSWORD").Wrapf(ErrInvalidInput, "password hash cannot be empty")
	}
	now := time.Now()
	return &Credential{
		Email:        email,
		PasswordHash: passwordHash,
		Attributes:   map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// SetEmail sets the email address and reports whether it changed.
func (c *Credential) SetEmail(email string) bool {
	if c.Email == email {
		return false
	}
	c.Email = email
	c.changed = true
	return true
}

// SetPasswordHash sets the stored password hash and reports whether it changed.
func (c *Credential) SetPasswordHash(hash string) bool {
	if c.PasswordHash == hash {
		return false
	}
	c.PasswordHash = hash
	c.changed = true
	return true
}

// SetLoginHash records a new login hash and login time.
func (c *Credential) SetLoginHash(hash string, at time.Time) {
	c.LoginHash = hash
	c.LastLogin = &at
	c.changed = true
}

// Attribute returns a free-form attribute value.
func (c *Credential) Attribute(name string) (string, bool) {
	v, ok := c.Attributes[name]
	return v, ok
}

// SetAttribute sets a free-form attribute and reports whether it changed.
func (c *Credential) SetAttribute(name, value string) bool {
	if current, ok := c.Attributes[name]; ok && current == value {
		return false
	}
	if c.Attributes == nil {
		c.Attributes = map[string]string{}
	}
	c.Attributes[name] = value
	c.changed = true
	return true
}

// RemoveAttribute deletes a free-form attribute and reports whether it existed.
func (c *Credential) RemoveAttribute(name string) bool {
	if _, ok := c.Attributes[name]; !ok {
		return false
	}
	delete(c.Attributes, name)
	c.changed = true
	return true
}

// IsChanged reports whether the credential was modified since it was loaded
// or last marked clean.
func (c *Credential) IsChanged() bool {
	return c.changed
}

// MarkClean clears the change flag. Stores call it after a successful save.
func (c *Credential) MarkClean() {
	c.changed = false
}

// Clone returns a deep copy of the credential.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Attributes = maps.Clone(c.Attributes)
	if c.LastLogin != nil {
		t := *c.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}

// Clone returns a deep copy of the member including its credential.
func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Credential = m.Credential.Clone()
	return &cp
}

// ValidateEmail trims the address and checks it is a bare addr-spec with a
// dotted domain (no display name, no angle brackets).
// Returns the trimmed address.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", oops.Code("AUTH_INVALID_EMAIL").Wrapf(ErrInvalidInput, "email address cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", oops.Code("AUTH_INVALID_EMAIL").
			With("email", email).
			Wrapf(ErrInvalidInput, "email address is not valid")
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", oops.Code("AUTH_INVALID_EMAIL").
			With("email", email).
			Wrapf(ErrInvalidInput, "email address is not valid")
	}
	return email, nil
}
