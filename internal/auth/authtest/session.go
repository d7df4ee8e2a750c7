// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package authtest

import (
	"maps"

	"github.com/memberauth/memberauth/internal/auth"
)

// Session is an in-memory SessionState. Rotations are counted instead of
// changing any identifier.
type Session struct {
	Values    map[string]string
	Rotations int
}

// NewSession creates an empty Session.
func NewSession() *Session {
	return &Session{Values: map[string]string{}}
}

// Get implements auth.SessionState.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Set implements auth.SessionState.
func (s *Session) Set(key, value string) {
	s.Values[key] = value
}

// Delete implements auth.SessionState.
func (s *Session) Delete(key string) {
	delete(s.Values, key)
}

// Rotate implements auth.SessionState.
func (s *Session) Rotate() {
	s.Rotations++
}

// Copy returns an independent copy, as if the same cookie were replayed from
// another client.
func (s *Session) Copy() *Session {
	return &Session{Values: maps.Clone(s.Values)}
}

// Bag is an in-memory RememberMeStore.
type Bag struct {
	Values map[string]string
}

// NewBag creates an empty Bag.
func NewBag() *Bag {
	return &Bag{Values: map[string]string{}}
}

// Get implements auth.RememberMeStore.
func (b *Bag) Get(key string) (string, bool) {
	v, ok := b.Values[key]
	return v, ok
}

// Set implements auth.RememberMeStore.
func (b *Bag) Set(key, value string) {
	b.Values[key] = value
}

// Delete implements auth.RememberMeStore.
func (b *Bag) Delete(key string) {
	delete(b.Values, key)
}

var (
	_ auth.SessionState    = (*Session)(nil)
	_ auth.RememberMeStore = (*Bag)(nil)
)
