// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package web

import (
	"net/http"
	"time"

	"github.com/memberauth/memberauth/internal/auth"
)

// Form fields beyond the configurable email and password names.
const (
	fieldName     = "name"
	fieldRemember = "remember"
)

type memberResponse struct {
	ID         int64             `json:"id"`
	Name       string            `json:"name"`
	Email      string            `json:"email"`
	Attributes map[string]string `json:"attributes,omitempty"`
	LastLogin  *time.Time        `json:"last_login,omitempty"`
}

func newMemberResponse(m *auth.Member) memberResponse {
	resp := memberResponse{ID: m.ID, Name: m.Name}
	if c := m.Credential; c != nil {
		resp.Email = c.Email
		resp.Attributes = c.Attributes
		resp.LastLogin = c.LastLogin
	}
	return resp
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed form body"})
		return
	}

	id, err := s.deps.Service.CreateUser(r.Context(),
		r.PostForm.Get(s.opts.EmailField),
		r.PostForm.Get(s.opts.PasswordField),
		r.PostForm.Get(fieldName),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"member_id": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed form body"})
		return
	}

	m := managerFrom(r.Context())
	if !m.Login(r.Context(), r.PostForm.Get(s.opts.EmailField), r.PostForm.Get(s.opts.PasswordField)) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid email address or password", Code: "AUTH_LOGIN_FAILED"})
		return
	}
	if r.PostForm.Get(fieldRemember) == "1" {
		m.Remember(r.Context())
	}
	writeJSON(w, http.StatusOK, newMemberResponse(m.Member()))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	managerFrom(r.Context()).Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newMemberResponse(managerFrom(r.Context()).Member()))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed form body"})
		return
	}

	updated, err := s.deps.Service.UpdateUser(r.Context(), auth.ParseUpdate(r.PostForm), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Service.DeleteUser(r.Context(), auth.MemberIDFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	managerFrom(r.Context()).Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed form body"})
		return
	}

	ok, err := s.deps.Service.ChangePassword(r.Context(),
		r.PostForm.Get(auth.FieldOldPassword),
		r.PostForm.Get(auth.FieldPassword),
		0,
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "old password is invalid", Code: "AUTH_WRONG_PASSWORD"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed form body"})
		return
	}

	valid := managerFrom(r.Context()).CheckPassword(r.Context(), r.PostForm.Get(auth.FieldPassword))
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}
