// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package session stores server-side session bags keyed by an opaque cookie
// id. A Session satisfies auth.SessionState and auth.RememberMeStore.
package session

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/memberauth/memberauth/internal/auth"
)

// ErrNotFound is returned by Load when no live session has the given id.
var ErrNotFound = errors.New("session not found")

// Store persists sessions.
type Store interface {
	// Load returns the live session stored under id, or an error wrapping
	// ErrNotFound.
	Load(ctx context.Context, id string) (*Session, error)

	// Save writes the session and refreshes its expiry. A new or rotated
	// session gets a fresh id first and the previous id is removed. A
	// session without values is destroyed and its id cleared.
	Save(ctx context.Context, s *Session) error

	// Destroy removes the session stored under id. Missing ids are not an error.
	Destroy(ctx context.Context, id string) error
}

// Session is one session bag. It is not safe for concurrent use; each
// request works on its own loaded copy.
type Session struct {
	// ID is the opaque identifier handed to the client. Empty until the
	// first Save.
	ID string

	// RecordID identifies the stored record across id rotations.
	RecordID ulid.ULID

	Values    map[string]string
	CreatedAt time.Time
	ExpiresAt time.Time

	rotate bool
}

// New creates an empty, unsaved session.
func New() *Session {
	return &Session{
		RecordID:  ulid.Make(),
		Values:    map[string]string{},
		CreatedAt: time.Now(),
	}
}

// Get implements auth.SessionState.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Set implements auth.SessionState.
func (s *Session) Set(key, value string) {
	if s.Values == nil {
		s.Values = map[string]string{}
	}
	s.Values[key] = value
}

// Delete implements auth.SessionState.
func (s *Session) Delete(key string) {
	delete(s.Values, key)
}

// Rotate implements auth.SessionState. The id changes on the next Save.
func (s *Session) Rotate() {
	s.rotate = true
}

// Rotated reports whether the session will get a new id on the next Save.
func (s *Session) Rotated() bool {
	return s.rotate
}

// Empty reports whether the session holds no values.
func (s *Session) Empty() bool {
	return len(s.Values) == 0
}

// prepare assigns a fresh id to a new or rotated session and sets the expiry.
// It returns the id that must be removed from the backend, if any.
func (s *Session) prepare(now time.Time, ttl time.Duration) (string, error) {
	stale := ""
	if s.ID == "" || s.rotate {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		stale = s.ID
		s.ID = id
		s.rotate = false
	}
	if s.RecordID.IsZero() {
		s.RecordID = ulid.Make()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.ExpiresAt = now.Add(ttl)
	return stale, nil
}

// record is the stored form of a session.
type record struct {
	RecordID  ulid.ULID         `json:"record_id"`
	Values    map[string]string `json:"values"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func (s *Session) record() record {
	return record{
		RecordID:  s.RecordID,
		Values:    maps.Clone(s.Values),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

func (r record) session(id string) *Session {
	values := maps.Clone(r.Values)
	if values == nil {
		values = map[string]string{}
	}
	return &Session{
		ID:        id,
		RecordID:  r.RecordID,
		Values:    values,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

func notFound(id string) error {
	return oops.Code("SESSION_NOT_FOUND").With("session_id_len", len(id)).Wrap(ErrNotFound)
}

var (
	_ auth.SessionState    = (*Session)(nil)
	_ auth.RememberMeStore = (*Session)(nil)
)
