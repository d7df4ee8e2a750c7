// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package web

import (
	"encoding/json"
	"net/http"

	"github.com/samber/oops"

	"github.com/memberauth/memberauth/internal/auth"
	"github.com/memberauth/memberauth/pkg/errutil"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.ErrInvalidInput:
		return http.StatusBadRequest
	case auth.ErrDuplicateEmail, auth.ErrConflict:
		return http.StatusConflict
	case auth.ErrNotFound:
		return http.StatusNotFound
	case auth.ErrWrongPassword:
		return http.StatusForbidden
	case auth.ErrUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON. Internal errors are logged and their
// details withheld from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		errutil.LogError(r.Context(), s.logger, "request failed", err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}

	resp := errorResponse{Error: auth.KindOf(err).Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			resp.Code = code
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}
