// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// AttributeValue is either a value to store or the removal marker.
type AttributeValue struct {
	value  string
	remove bool
}

// SetAttr returns an AttributeValue that stores v.
func SetAttr(v string) AttributeValue {
	return AttributeValue{value: v}
}

// RemoveAttr returns the marker that deletes an attribute.
func RemoveAttr() AttributeValue {
	return AttributeValue{remove: true}
}

// Value returns the value and false for the removal marker.
func (v AttributeValue) Value() (string, bool) {
	return v.value, !v.remove
}

// IsRemove reports whether v is the removal marker.
func (v AttributeValue) IsRemove() bool {
	return v.remove
}

// reservedAttributes are credential columns that can never be written as
// free-form attributes.
var reservedAttributes = map[string]struct{}{
	"id":           {},
	"member_id":    {},
	"email":        {},
	"password":     {},
	"old_password": {},
	"login_hash":   {},
	"last_login":   {},
	"version":      {},
	"created_at":   {},
	"updated_at":   {},
}

// MaxAttributeNameLength bounds attribute names.
const MaxAttributeNameLength = 64

// AttributeSchema decides which free-form attribute names may be stored.
type AttributeSchema struct {
	patterns []glob.Glob
	raw      []string
}

// NewAttributeSchema compiles the given glob patterns (e.g. "profile.*").
// Wildcards match across dots.
// An empty pattern list allows no attributes at all.
func NewAttributeSchema(patterns ...string) (*AttributeSchema, error) {
	s := &AttributeSchema{raw: patterns}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code("AUTH_INVALID_ATTRIBUTE_PATTERN").
				With("pattern", p).
				Wrap(err)
		}
		s.patterns = append(s.patterns, g)
	}
	return s, nil
}

// AllowAllAttributes returns a schema that accepts every non-reserved name.
func AllowAllAttributes() *AttributeSchema {
	return &AttributeSchema{patterns: []glob.Glob{glob.MustCompile("*")}, raw: []string{"*"}}
}

// Patterns returns the source patterns of the schema.
func (s *AttributeSchema) Patterns() []string {
	return s.raw
}

// Validate checks a single attribute name.
func (s *AttributeSchema) Validate(name string) error {
	if name == "" || strings.TrimSpace(name) != name || len(name) > MaxAttributeNameLength {
		return oops.Code("AUTH_INVALID_ATTRIBUTE").
			With("attribute", name).
			Wrapf(ErrInvalidInput, "attribute name is not valid")
	}
	if _, reserved := reservedAttributes[strings.ToLower(name)]; reserved {
		return oops.Code("AUTH_RESERVED_ATTRIBUTE").
			With("attribute", name).
			Wrapf(ErrInvalidInput, "attribute %q is reserved", name)
	}
	for _, g := range s.patterns {
		if g.Match(name) {
			return nil
		}
	}
	return oops.Code("AUTH_UNKNOWN_ATTRIBUTE").
		With("attribute", name).
		Wrapf(ErrInvalidInput, "attribute %q is not allowed", name)
}

// Update describes a change to a credential. Nil fields are left untouched.
type Update struct {
	Password    *string
	OldPassword *string
	Email       *string
	Attributes  map[string]AttributeValue
}

// Form keys recognised by ParseUpdate.
const (
	FieldPassword    = "password"
	FieldOldPassword = "old_password"
	FieldEmail       = "email"
	AttributePrefix  = "attr."
)

// ParseUpdate builds an Update from form values. Keys other than password,
// old_password and email must carry the "attr." prefix; an attribute with an
// empty value is the removal marker. Unprefixed unknown keys are ignored.
func ParseUpdate(values map[string][]string) Update {
	var u Update
	first := func(vs []string) string {
		if len(vs) == 0 {
			return ""
		}
		return vs[0]
	}
	for key, vs := range values {
		v := first(vs)
		switch {
		case key == FieldPassword:
			u.Password = &v
		case key == FieldOldPassword:
			u.OldPassword = &v
		case key == FieldEmail:
			u.Email = &v
		case strings.HasPrefix(key, AttributePrefix):
			if u.Attributes == nil {
				u.Attributes = map[string]AttributeValue{}
			}
			name := strings.TrimPrefix(key, AttributePrefix)
			if v == "" {
				u.Attributes[name] = RemoveAttr()
			} else {
				u.Attributes[name] = SetAttr(v)
			}
		}
	}
	return u
}
