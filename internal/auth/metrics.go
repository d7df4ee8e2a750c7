// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values for auth metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	MethodPassword = "password"
	MethodForce    = "force"
	MethodRemember = "remember"
)

// Logins counts login attempts by method and result.
// Use RegisterMetrics to register this with a Prometheus registry.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "memberauth_logins_total",
		Help: "Total number of login attempts",
	},
	[]string{"method", "result"},
)

// SessionChecks counts session checks by result.
var SessionChecks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "memberauth_session_checks_total",
		Help: "Total number of session checks",
	},
	[]string{"result"},
)

// CredentialMutations counts credential lifecycle operations.
var CredentialMutations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "memberauth_credential_mutations_total",
		Help: "Total number of credential lifecycle operations by operation and status",
	},
	[]string{"operation", "status"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Logins)
	reg.MustRegister(SessionChecks)
	reg.MustRegister(CredentialMutations)
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// mutationStatus labels an operation outcome by its error kind.
func mutationStatus(err error) string {
	if err == nil {
		return ResultSuccess
	}
	switch KindOf(err) {
	case ErrInvalidInput:
		return "invalid_input"
	case ErrDuplicateEmail:
		return "duplicate_email"
	case ErrNotFound:
		return "not_found"
	case ErrWrongPassword:
		return "wrong_password"
	case ErrUnauthenticated:
		return "unauthenticated"
	case ErrConflict:
		return "conflict"
	default:
		return "error"
	}
}
