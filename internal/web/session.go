// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/memberauth/memberauth/internal/auth"
	"github.com/memberauth/memberauth/internal/session"
	"github.com/memberauth/memberauth/pkg/errutil"
)

type stateKey struct{}

// requestState is what the session middleware hands to handlers.
type requestState struct {
	manager *auth.SessionManager
}

func managerFrom(ctx context.Context) *auth.SessionManager {
	st, _ := ctx.Value(stateKey{}).(*requestState)
	if st == nil {
		return nil
	}
	return st.manager
}

// sessions loads the session and remember-me bags, resolves the member and
// commits both bags before the response header goes out.
func (s *Server) sessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, hadSession, err := s.load(ctx, r, s.deps.Sessions, s.opts.SessionCookie)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		opts := []auth.ManagerOption{auth.WithLogger(s.logger)}
		var remember *session.Session
		hadRemember := false
		if s.deps.Remember != nil {
			remember, hadRemember, err = s.load(ctx, r, s.deps.Remember, s.opts.RememberCookie)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			opts = append(opts, auth.WithRememberMe(remember))
		}

		manager, err := auth.NewSessionManager(s.opts.Manager, sess, s.deps.Store, s.deps.Hasher, opts...)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if manager.PerformCheck(ctx) {
			ctx = auth.ContextWithMember(ctx, manager.MemberID())
		}
		ctx = context.WithValue(ctx, stateKey{}, &requestState{manager: manager})
		r = r.WithContext(ctx)

		cw := &commitWriter{ResponseWriter: w, commit: func() error {
			err := s.commit(ctx, w, s.deps.Sessions, sess, hadSession, s.opts.SessionCookie)
			if err == nil && remember != nil {
				err = s.commit(ctx, w, s.deps.Remember, remember, hadRemember, s.opts.RememberCookie)
			}
			if err != nil {
				errutil.LogError(ctx, s.logger, "session commit failed", err)
			}
			return err
		}}
		next.ServeHTTP(cw, r)
		if !cw.committed {
			cw.WriteHeader(http.StatusOK)
		}
	})
}

// load returns the session named by the request cookie, or a fresh one when
// the cookie is missing or stale. The bool reports whether a cookie was sent.
func (s *Server) load(ctx context.Context, r *http.Request, store session.Store, opts session.CookieOptions) (*session.Session, bool, error) {
	id := session.FromRequest(r, opts)
	if id == "" {
		return session.New(), false, nil
	}
	sess, err := store.Load(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return session.New(), true, nil
	}
	if err != nil {
		return nil, true, oops.Code("WEB_SESSION_LOAD_FAILED").With("cookie", opts.Name).Wrap(err)
	}
	return sess, true, nil
}

// commit saves a bag and sets or clears its cookie.
func (s *Server) commit(ctx context.Context, w http.ResponseWriter, store session.Store, sess *session.Session, hadCookie bool, opts session.CookieOptions) error {
	if err := store.Save(ctx, sess); err != nil {
		return oops.Code("WEB_SESSION_SAVE_FAILED").With("cookie", opts.Name).Wrap(err)
	}
	if sess.ID == "" && !hadCookie {
		return nil
	}
	session.SetCookie(w, sess, opts)
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	errutil.LogError(r.Context(), s.logger, "session handling failed", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// commitWriter runs commit once, right before the status line is written, so
// Set-Cookie headers still reach the client.
type commitWriter struct {
	http.ResponseWriter
	commit    func() error
	committed bool
}

func (c *commitWriter) WriteHeader(code int) {
	if c.committed {
		return
	}
	c.committed = true
	if err := c.commit(); err != nil {
		code = http.StatusInternalServerError
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *commitWriter) Write(b []byte) (int, error) {
	if !c.committed {
		c.WriteHeader(http.StatusOK)
	}
	//nolint:wrapcheck // pass-through writer
	return c.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (c *commitWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}
