// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package session

import (
	"net/http"
	"time"
)

// CookieOptions describes how a session cookie is issued.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// SetCookie issues the cookie carrying s.ID, or clears it when the session
// was destroyed.
func SetCookie(w http.ResponseWriter, s *Session, opts CookieOptions) {
	if s.ID == "" {
		ClearCookie(w, opts)
		return
	}
	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    s.ID,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ClearCookie removes the cookie from the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// FromRequest returns the cookie value named by opts, or "".
func FromRequest(r *http.Request, opts CookieOptions) string {
	c, err := r.Cookie(opts.Name)
	if err != nil {
		return ""
	}
	return c.Value
}
