// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package web exposes registration, login and profile endpoints over HTTP.
// Every request gets its own auth.SessionManager bound to the caller's
// session cookie.
package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/memberauth/memberauth/internal/auth"
	"github.com/memberauth/memberauth/internal/logging"
	"github.com/memberauth/memberauth/internal/observability"
	"github.com/memberauth/memberauth/internal/session"
)

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-ID"

// Options configures the HTTP surface.
type Options struct {
	Manager        auth.ManagerConfig
	SessionCookie  session.CookieOptions
	RememberCookie session.CookieOptions

	// EmailField and PasswordField name the login form fields.
	EmailField    string
	PasswordField string
}

// Deps are the collaborators of the HTTP surface. Remember may be nil to
// disable remember-me; Metrics and Logger are optional.
type Deps struct {
	Sessions session.Store
	Remember session.Store
	Store    auth.CredentialStore
	Hasher   auth.PasswordHasher
	Service  *auth.CredentialService
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Server routes HTTP requests to the auth services.
type Server struct {
	opts   Options
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

// NewServer builds the router.
func NewServer(opts Options, deps Deps) (*Server, error) {
	switch {
	case deps.Sessions == nil:
		return nil, oops.Code("WEB_INVALID_DEPENDENCY").Errorf("session store is required")
	case deps.Store == nil:
		return nil, oops.Code("WEB_INVALID_DEPENDENCY").Errorf("credential store is required")
	case deps.Hasher == nil:
		return nil, oops.Code("WEB_INVALID_DEPENDENCY").Errorf("password hasher is required")
	case deps.Service == nil:
		return nil, oops.Code("WEB_INVALID_DEPENDENCY").Errorf("credential service is required")
	}
	if opts.SessionCookie.Name == "" {
		return nil, oops.Code("WEB_INVALID_OPTIONS").Errorf("session cookie name is required")
	}
	if deps.Remember != nil && opts.RememberCookie.Name == "" {
		return nil, oops.Code("WEB_INVALID_OPTIONS").Errorf("remember-me cookie name is required")
	}
	if opts.EmailField == "" {
		opts.EmailField = auth.FieldEmail
	}
	if opts.PasswordField == "" {
		opts.PasswordField = auth.FieldPassword
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{opts: opts, deps: deps, logger: logger}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	if s.deps.Metrics != nil {
		r.Use(s.instrument)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(s.sessions)

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/me", func(r chi.Router) {
		r.Use(requireMember)
		r.Get("/", s.handleMe)
		r.Patch("/", s.handleUpdateMe)
		r.Delete("/", s.handleDeleteMe)
		r.Post("/password", s.handleChangePassword)
		r.Post("/check-password", s.handleCheckPassword)
	})

	return r
}

// requestID tags the request with a fresh ULID for logs and the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ulid.Make().String()
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		s.deps.Metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// requireMember rejects requests without an authenticated member.
func requireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.MemberIDFromContext(r.Context()) == 0 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not logged in", Code: "AUTH_NOT_LOGGED_IN"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
