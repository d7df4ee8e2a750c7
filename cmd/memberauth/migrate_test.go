// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberauth/memberauth/internal/store"
	"github.com/memberauth/memberauth/pkg/errutil"
)

type fakeMigrator struct {
	version  uint
	dirty    bool
	pending  []store.Migration
	applied  []store.Migration
	upErr    error
	ups      int
	downs    int
	forced   []int
	closed   bool
	closeErr error
}

func (f *fakeMigrator) Up() error {
	f.ups++
	if f.upErr != nil {
		return f.upErr
	}
	f.applied = append(f.applied, f.pending...)
	f.pending = nil
	return nil
}

func (f *fakeMigrator) Down() error {
	f.downs++
	f.pending = append(f.applied, f.pending...)
	f.applied = nil
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, nil }

func (f *fakeMigrator) Force(version int) error {
	f.forced = append(f.forced, version)
	return nil
}

func (f *fakeMigrator) Status() (*store.MigrationStatus, error) {
	return &store.MigrationStatus{Current: f.version, Dirty: f.dirty, Applied: f.applied, Pending: f.pending}, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return f.closeErr
}

// migs returns the embedded migrations with the given versions.
func migs(versions ...uint) []store.Migration {
	out := make([]store.Migration, 0, len(versions))
	for _, v := range versions {
		name, _ := store.MigrationName(v)
		out = append(out, store.Migration{Version: v, Name: name})
	}
	return out
}

func useFakeMigrator(t *testing.T, f *fakeMigrator) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/memberauth")
	restore := newMigrator
	t.Cleanup(func() { newMigrator = restore })
	newMigrator = func(string) (migrator, error) { return f, nil }
}

func runMigrate(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(append([]string{"--env-file=", "migrate"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
		{name: "negative parses and is rejected later", input: "-1", wantVersion: -1},
		{name: "non-numeric returns error", input: "abc", wantErr: true},
		{name: "empty string returns error", input: "", wantErr: true},
		{name: "whitespace only returns error", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	t.Run("returns error when DATABASE_URL is empty", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		url, err := getDatabaseURL()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		assert.Empty(t, url)
	})

	t.Run("returns URL when DATABASE_URL is set", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/testdb")
		url, err := getDatabaseURL()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost:5432/testdb", url)
	})
}

func TestMigrateUp(t *testing.T) {
	f := &fakeMigrator{pending: migs(1, 2)}
	useFakeMigrator(t, f)

	out, err := runMigrate(t, "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Applying 2 migration(s)")
	assert.Equal(t, 1, f.ups)
	assert.True(t, f.closed)

	out, err = runMigrate(t, "up")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending migrations")
	assert.Equal(t, 1, f.ups)
}

func TestMigrateUp_Failure(t *testing.T) {
	f := &fakeMigrator{pending: migs(1), upErr: oops.Code("MIGRATION_UP_FAILED").Errorf("boom")}
	useFakeMigrator(t, f)

	_, err := runMigrate(t, "up")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
	assert.True(t, f.closed, "migrator is closed on failure")
}

func TestMigrateDown_RequiresConfirmation(t *testing.T) {
	f := &fakeMigrator{applied: migs(1)}
	useFakeMigrator(t, f)

	_, err := runMigrate(t, "down")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIRMATION_REQUIRED")
	assert.Zero(t, f.downs)

	_, err = runMigrate(t, "down", "--yes")
	require.NoError(t, err)
	assert.Equal(t, 1, f.downs)
}

func TestMigrateStatus(t *testing.T) {
	f := &fakeMigrator{version: 1, dirty: true, applied: migs(1), pending: migs(2)}
	useFakeMigrator(t, f)

	out, err := runMigrate(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "applied  000001_members")
	assert.Contains(t, out, "pending  000002_member_auth")
	assert.Contains(t, out, "database is dirty at 000001_members")
}

func TestMigrateVersion(t *testing.T) {
	f := &fakeMigrator{version: 1, dirty: true}
	useFakeMigrator(t, f)

	out, err := runMigrate(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "1 (dirty)")
}

func TestMigrateForce(t *testing.T) {
	f := &fakeMigrator{}
	useFakeMigrator(t, f)

	_, err := runMigrate(t, "force", "x")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")

	out, err := runMigrate(t, "force", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Forced migration version to 1")
	assert.Equal(t, []int{1}, f.forced)
}

func TestMigrate_CloseErrorIsReported(t *testing.T) {
	f := &fakeMigrator{closeErr: errors.New("close failed")}
	useFakeMigrator(t, f)

	_, err := runMigrate(t, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close failed")
}

func TestMigrate_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := runMigrate(t, "up")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}
