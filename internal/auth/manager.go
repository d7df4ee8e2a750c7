// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/memberauth/memberauth/pkg/errutil"
)

// ManagerConfig holds the policy knobs of a SessionManager.
type ManagerConfig struct {
	// LoginHashSalt is mixed into every login hash.
	LoginHashSalt string

	// MultipleLogins accepts any session carrying a valid member id. When
	// false only the most recently issued login hash validates, so a new
	// interactive login invalidates all older sessions of the account.
	MultipleLogins bool
}

// SessionManager decides whether the caller of one request is authenticated
// and performs login, logout and forced login against its session.
//
// A SessionManager is bound to a single session and must not be shared
// between concurrent requests; build one per request.
type SessionManager struct {
	cfg      ManagerConfig
	session  SessionState
	remember RememberMeStore
	store    CredentialStore
	hasher   PasswordHasher
	logger   *slog.Logger
	now      func() time.Time

	// member is the last resolved member; reloaded when a different id is checked.
	member *Member
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithRememberMe enables silent re-authentication from a remember-me store.
func WithRememberMe(r RememberMeStore) ManagerOption {
	return func(m *SessionManager) {
		m.remember = r
	}
}

// WithLogger sets the logger used for unexpected store failures.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *SessionManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source used for login hashes.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewSessionManager creates a SessionManager for one session.
func NewSessionManager(
	cfg ManagerConfig,
	session SessionState,
	store CredentialStore,
	hasher PasswordHasher,
	opts ...ManagerOption,
) (*SessionManager, error) {
	if session == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("session state is required")
	}
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}

	m := &SessionManager{
		cfg:     cfg,
		session: session,
		store:   store,
		hasher:  hasher,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PerformCheck reports whether the session belongs to an authenticated member.
//
// With no usable session values it falls back to the remember-me store and
// force-logs the remembered member in. Any failure clears the session.
func (m *SessionManager) PerformCheck(ctx context.Context) bool {
	ok := m.performCheck(ctx)
	SessionChecks.WithLabelValues(result(ok)).Inc()
	return ok
}

func (m *SessionManager) performCheck(ctx context.Context) bool {
	rawID, _ := m.session.Get(SessionKeyMemberID)
	loginHash, _ := m.session.Get(SessionKeyLoginHash)

	switch {
	case rawID != "" && loginHash != "":
		// only worth checking if there's both a member id and a login hash
		if memberID := ParseMemberID(rawID); memberID != 0 {
			if m.member == nil || m.member.ID != memberID {
				m.member = m.loadMember(ctx, memberID)
			}
			if m.member != nil && (m.cfg.MultipleLogins || m.loginHashMatches(loginHash)) {
				return true
			}
		}

	case m.remember != nil:
		if remembered, ok := m.remember.Get(SessionKeyMemberID); ok && remembered != "" {
			if m.forceLogin(ctx, ParseMemberID(remembered), MethodRemember) {
				return true
			}
			// stale token: the member is gone or the value is garbage
			m.remember.Delete(SessionKeyMemberID)
		}
	}

	m.clearSession()
	return false
}

func (m *SessionManager) loginHashMatches(loginHash string) bool {
	cred := m.member.Credential
	if cred == nil || cred.LoginHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cred.LoginHash), []byte(loginHash)) == 1
}

// Login authenticates by email and password. On success the session gets the
// member id and a fresh login hash, and its identifier is rotated.
func (m *SessionManager) Login(ctx context.Context, email, password string) bool {
	ok := m.login(ctx, email, password)
	Logins.WithLabelValues(MethodPassword, result(ok)).Inc()
	return ok
}

func (m *SessionManager) login(ctx context.Context, email, password string) bool {
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return false
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		errutil.LogError(ctx, m.logger, "hashing password for login failed", err)
		return false
	}

	cred, err := m.store.FindCredentialByEmailAndPasswordHash(ctx, email, hash)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			errutil.LogError(ctx, m.logger, "credential lookup failed", err)
		}
		m.clearSession()
		return false
	}

	member := m.loadMember(ctx, cred.MemberID)
	if member == nil {
		m.clearSession()
		return false
	}
	m.member = member

	if !m.establish(ctx) {
		return false
	}
	m.session.Rotate()

	m.logger.DebugContext(ctx, "member logged in", "member_id", member.ID)
	return true
}

// ForceLogin logs a member in without a password, for remember-me and
// administrative impersonation. The session identifier is not rotated.
func (m *SessionManager) ForceLogin(ctx context.Context, memberID int64) bool {
	return m.forceLogin(ctx, memberID, MethodForce)
}

func (m *SessionManager) forceLogin(ctx context.Context, memberID int64, method string) bool {
	ok := m.doForceLogin(ctx, memberID)
	Logins.WithLabelValues(method, result(ok)).Inc()
	return ok
}

func (m *SessionManager) doForceLogin(ctx context.Context, memberID int64) bool {
	if memberID <= 0 {
		return false
	}

	member := m.loadMember(ctx, memberID)
	if member == nil {
		m.clearSession()
		return false
	}
	m.member = member

	return m.establish(ctx)
}

// establish writes the resolved member and a new login hash into the session.
func (m *SessionManager) establish(ctx context.Context) bool {
	hash, err := m.CreateLoginHash(ctx)
	if err != nil {
		errutil.LogError(ctx, m.logger, "creating login hash failed", err)
		m.clearSession()
		return false
	}
	m.session.Set(SessionKeyMemberID, FormatMemberID(m.member.ID))
	m.session.Set(SessionKeyLoginHash, hash)
	return true
}

// Logout clears the session and any remember-me entry. It always succeeds.
func (m *SessionManager) Logout(_ context.Context) bool {
	m.clearSession()
	if m.remember != nil {
		m.remember.Delete(SessionKeyMemberID)
	}
	return true
}

// Remember stores the current member in the remember-me store so later
// requests without a session log in silently. Returns false when remember-me
// is disabled or no member is resolved.
func (m *SessionManager) Remember(_ context.Context) bool {
	if m.remember == nil || m.member == nil {
		return false
	}
	m.remember.Set(SessionKeyMemberID, FormatMemberID(m.member.ID))
	return true
}

// CreateLoginHash issues a new login hash for the resolved member and stores
// it, with the login time, on the member's credential.
func (m *SessionManager) CreateLoginHash(ctx context.Context) (string, error) {
	if m.member == nil {
		return "", oops.Code("AUTH_NOT_LOGGED_IN").
			Wrapf(ErrUnauthenticated, "member not logged in, can't create login hash")
	}

	cred := m.member.Credential
	if cred == nil {
		var err error
		cred, err = m.store.FindCredentialByMemberID(ctx, m.member.ID)
		if err != nil {
			return "", oops.Code("AUTH_LOGIN_HASH_FAILED").
				With("operation", "find credential").
				With("member_id", m.member.ID).
				Wrap(err)
		}
	}

	now := m.now()
	hash, err := GenerateLoginHash(m.cfg.LoginHashSalt, m.member.ID, now)
	if err != nil {
		return "", err
	}

	updated := cred.Clone()
	updated.SetLoginHash(hash, now)
	if err := m.store.SaveCredential(ctx, updated); err != nil {
		return "", oops.Code("AUTH_LOGIN_HASH_FAILED").
			With("operation", "save credential").
			With("member_id", m.member.ID).
			Wrap(err)
	}
	m.member.Credential = updated

	return hash, nil
}

// CheckPassword re-validates the authenticated member's password without
// touching the session.
func (m *SessionManager) CheckPassword(ctx context.Context, password string) bool {
	if !m.PerformCheck(ctx) {
		return false
	}

	rawID, _ := m.session.Get(SessionKeyMemberID)
	memberID := ParseMemberID(rawID)
	password = strings.TrimSpace(password)
	if memberID == 0 || password == "" {
		return false
	}

	member, err := m.store.FindMemberByID(ctx, memberID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			errutil.LogError(ctx, m.logger, "member lookup failed", err)
		}
		return false
	}
	if member.Credential == nil || member.Credential.PasswordHash == "" {
		return false
	}

	ok, err := m.hasher.Verify(password, member.Credential.PasswordHash)
	if err != nil {
		errutil.LogError(ctx, m.logger, "password verification failed", err)
		return false
	}
	return ok
}

// Member returns the resolved member, or nil.
func (m *SessionManager) Member() *Member {
	return m.member
}

// MemberID returns the resolved member id, or 0.
func (m *SessionManager) MemberID() int64 {
	if m.member == nil {
		return 0
	}
	return m.member.ID
}

// Email returns the resolved member's email address, or "".
func (m *SessionManager) Email() string {
	if m.member == nil || m.member.Credential == nil {
		return ""
	}
	return m.member.Credential.Email
}

// ScreenName returns the resolved member's display name, or "".
func (m *SessionManager) ScreenName() string {
	if m.member == nil {
		return ""
	}
	return m.member.Name
}

func (m *SessionManager) loadMember(ctx context.Context, id int64) *Member {
	member, err := m.store.FindMemberByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			errutil.LogError(ctx, m.logger, "member lookup failed", err)
		}
		return nil
	}
	return member
}

func (m *SessionManager) clearSession() {
	m.session.Delete(SessionKeyMemberID)
	m.session.Delete(SessionKeyLoginHash)
	m.member = nil
}
