// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memberauth/memberauth/internal/auth"
	"github.com/memberauth/memberauth/pkg/errutil"
)

func ptr[T any](v T) *T { return &v }

var memberJoinColumns = []string{
	"id", "name", "register_type", "filesize_total", "created_at", "updated_at",
	"a.id", "email", "password", "login_hash", "last_login", "version", "a.created_at", "a.updated_at",
}

var credentialRowColumns = []string{
	"id", "member_id", "email", "password", "login_hash", "last_login", "version", "created_at", "updated_at",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock
}

func TestCredentialRepository_FindMemberByID(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("loads member with credential and attributes", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM members m`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(memberJoinColumns).AddRow(
				int64(7), "Alice", 0, int64(0), now, now,
				ptr(int64(3)), ptr("alice@example.com"), ptr("hash"), ptr("lh"), (*time.Time)(nil), ptr(int64(2)), &now, &now,
			))
		mock.ExpectQuery(`FROM member_auth_attributes`).
			WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows([]string{"name", "value"}).AddRow("nickname", "ally"))

		repo := NewCredentialRepository(mock)
		member, err := repo.FindMemberByID(context.Background(), 7)
		require.NoError(t, err)

		assert.Equal(t, int64(7), member.ID)
		assert.Equal(t, "Alice", member.Name)
		require.NotNil(t, member.Credential)
		assert.Equal(t, int64(3), member.Credential.ID)
		assert.Equal(t, int64(7), member.Credential.MemberID)
		assert.Equal(t, "alice@example.com", member.Credential.Email)
		assert.Equal(t, "lh", member.Credential.LoginHash)
		assert.Equal(t, int64(2), member.Credential.Version)
		assert.Nil(t, member.Credential.LastLogin)
		assert.Equal(t, map[string]string{"nickname": "ally"}, member.Credential.Attributes)
		assert.False(t, member.Credential.IsChanged())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member without credential", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM members m`).
			WithArgs(int64(8)).
			WillReturnRows(pgxmock.NewRows(memberJoinColumns).AddRow(
				int64(8), "Bob", 0, int64(0), now, now,
				(*int64)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*time.Time)(nil), (*int64)(nil), (*time.Time)(nil), (*time.Time)(nil),
			))

		repo := NewCredentialRepository(mock)
		member, err := repo.FindMemberByID(context.Background(), 8)
		require.NoError(t, err)
		assert.Nil(t, member.Credential)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM members m`).
			WithArgs(int64(9)).
			WillReturnError(pgx.ErrNoRows)

		repo := NewCredentialRepository(mock)
		_, err := repo.FindMemberByID(context.Background(), 9)
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "MEMBER_NOT_FOUND")
	})

	t.Run("query failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`FROM members m`).
			WithArgs(int64(9)).
			WillReturnError(errors.New("connection reset"))

		repo := NewCredentialRepository(mock)
		_, err := repo.FindMemberByID(context.Background(), 9)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "MEMBER_GET_BY_ID_FAILED")
	})
}

func TestCredentialRepository_FindCredentialByEmailAndPasswordHash(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("match", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`WHERE LOWER\(email\) = LOWER\(\$1\) AND password = \$2`).
			WithArgs("Alice@Example.com", "hash").
			WillReturnRows(pgxmock.NewRows(credentialRowColumns).AddRow(
				int64(3), int64(7), "alice@example.com", "hash", "", (*time.Time)(nil), int64(1), now, now,
			))
		mock.ExpectQuery(`FROM member_auth_attributes`).
			WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows([]string{"name", "value"}))

		repo := NewCredentialRepository(mock)
		cred, err := repo.FindCredentialByEmailAndPasswordHash(context.Background(), "Alice@Example.com", "hash")
		require.NoError(t, err)
		assert.Equal(t, int64(7), cred.MemberID)
		assert.Empty(t, cred.Attributes)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no match", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`AND password = \$2`).
			WithArgs("alice@example.com", "other").
			WillReturnError(pgx.ErrNoRows)

		repo := NewCredentialRepository(mock)
		_, err := repo.FindCredentialByEmailAndPasswordHash(context.Background(), "alice@example.com", "other")
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "CREDENTIAL_NOT_FOUND")
		errutil.AssertErrorContext(t, err, "email", "alice@example.com")
	})
}

func TestCredentialRepository_EmailTaken(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("alice@example.com", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewCredentialRepository(mock)
	taken, err := repo.EmailTaken(context.Background(), "alice@example.com", 7)
	require.NoError(t, err)
	assert.True(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_CreateMemberWithCredential(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	newPair := func() (*auth.Member, *auth.Credential) {
		cred, err := auth.NewCredential("alice@example.com", "hash")
		require.NoError(t, err)
		cred.SetAttribute("nickname", "ally")
		cred.SetAttribute("color", "green")
		return &auth.Member{Name: "Alice", CreatedAt: now, UpdatedAt: now}, cred
	}

	t.Run("inserts member, credential and attributes in one transaction", func(t *testing.T) {
		mock := newMock(t)
		member, cred := newPair()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO members`).
			WithArgs("Alice", 0, int64(0), now, now).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
		mock.ExpectQuery(`INSERT INTO member_auth \(`).
			WithArgs(int64(7), "alice@example.com", "hash", "", cred.LastLogin, cred.CreatedAt, cred.UpdatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id", "version"}).AddRow(int64(3), int64(1)))
		mock.ExpectExec(`INSERT INTO member_auth_attributes`).
			WithArgs(int64(3), "color", "green").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO member_auth_attributes`).
			WithArgs(int64(3), "nickname", "ally").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		repo := NewCredentialRepository(mock)
		id, err := repo.CreateMemberWithCredential(context.Background(), member, cred)
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		assert.Equal(t, int64(7), member.ID)
		assert.Equal(t, int64(7), cred.MemberID)
		assert.Equal(t, int64(3), cred.ID)
		assert.Equal(t, int64(1), cred.Version)
		assert.False(t, cred.IsChanged())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email rolls back", func(t *testing.T) {
		mock := newMock(t)
		member, cred := newPair()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO members`).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
		mock.ExpectQuery(`INSERT INTO member_auth \(`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
		mock.ExpectRollback()

		repo := NewCredentialRepository(mock)
		_, err := repo.CreateMemberWithCredential(context.Background(), member, cred)
		require.ErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "CREDENTIAL_DUPLICATE_EMAIL")
		assert.Zero(t, member.ID, "member id must not be set when nothing was stored")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("attribute failure rolls back", func(t *testing.T) {
		mock := newMock(t)
		member, cred := newPair()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO members`).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
		mock.ExpectQuery(`INSERT INTO member_auth \(`).
			WillReturnRows(pgxmock.NewRows([]string{"id", "version"}).AddRow(int64(3), int64(1)))
		mock.ExpectExec(`INSERT INTO member_auth_attributes`).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		repo := NewCredentialRepository(mock)
		_, err := repo.CreateMemberWithCredential(context.Background(), member, cred)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CREDENTIAL_ATTRIBUTES_FAILED")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCredentialRepository_SaveCredential(t *testing.T) {
	newCred := func() *auth.Credential {
		return &auth.Credential{
			ID:           3,
			MemberID:     7,
			Email:        "alice@example.com",
			PasswordHash: "hash",
			Attributes:   map[string]string{"nickname": "ally"},
			Version:      2,
		}
	}

	t.Run("bumps version and rewrites attributes", func(t *testing.T) {
		mock := newMock(t)
		cred := newCred()
		cred.SetLoginHash("lh", time.Now())

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE member_auth SET`).
			WithArgs(int64(7), int64(2), "alice@example.com", "hash", "lh", cred.LastLogin, pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "version"}).AddRow(int64(3), int64(3)))
		mock.ExpectExec(`DELETE FROM member_auth_attributes`).
			WithArgs(int64(3)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`INSERT INTO member_auth_attributes`).
			WithArgs(int64(3), "nickname", "ally").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		repo := NewCredentialRepository(mock)
		require.NoError(t, repo.SaveCredential(context.Background(), cred))
		assert.Equal(t, int64(3), cred.Version)
		assert.False(t, cred.IsChanged())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		mock := newMock(t)
		cred := newCred()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE member_auth SET`).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		repo := NewCredentialRepository(mock)
		err := repo.SaveCredential(context.Background(), cred)
		require.ErrorIs(t, err, auth.ErrConflict)
		errutil.AssertErrorCode(t, err, "CREDENTIAL_VERSION_CONFLICT")
		assert.Equal(t, int64(2), cred.Version)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing credential", func(t *testing.T) {
		mock := newMock(t)
		cred := newCred()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE member_auth SET`).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		repo := NewCredentialRepository(mock)
		err := repo.SaveCredential(context.Background(), cred)
		require.ErrorIs(t, err, auth.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email collision", func(t *testing.T) {
		mock := newMock(t)
		cred := newCred()

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE member_auth SET`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
		mock.ExpectRollback()

		repo := NewCredentialRepository(mock)
		err := repo.SaveCredential(context.Background(), cred)
		require.ErrorIs(t, err, auth.ErrDuplicateEmail)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCredentialRepository_SaveMember(t *testing.T) {
	t.Run("updates", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE members SET`).
			WithArgs(int64(7), "Alice", 1, int64(42), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewCredentialRepository(mock)
		err := repo.SaveMember(context.Background(), &auth.Member{ID: 7, Name: "Alice", RegisterType: 1, FilesizeTotal: 42})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE members SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewCredentialRepository(mock)
		err := repo.SaveMember(context.Background(), &auth.Member{ID: 99})
		require.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestCredentialRepository_DeleteMember(t *testing.T) {
	t.Run("deletes", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM members`).
			WithArgs(int64(7)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		repo := NewCredentialRepository(mock)
		require.NoError(t, repo.DeleteMember(context.Background(), 7))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM members`).
			WithArgs(int64(7)).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := NewCredentialRepository(mock)
		err := repo.DeleteMember(context.Background(), 7)
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "MEMBER_NOT_FOUND")
	})
}
