// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package errutil

import (
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireOops fails the test unless err is a non-nil oops error.
func requireOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.Truef(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that err is an oops error carrying code.
// Nested oops errors report the innermost code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr := requireOops(t, err)
	assert.Equalf(t, code, fmt.Sprint(oopsErr.Code()), "error: %v", err)
}

// AssertErrorContext asserts that err is an oops error whose context holds
// key set to value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := requireOops(t, err).Context()
	if assert.Containsf(t, ctx, key, "error: %v", err) {
		assert.Equal(t, value, ctx[key])
	}
}
