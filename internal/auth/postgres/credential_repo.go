// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package postgres implements auth.CredentialStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/memberauth/memberauth/internal/auth"
)

// poolIface is the part of *pgxpool.Pool the repository uses.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const credentialColumns = `id, member_id, email, password, login_hash, last_login, version, created_at, updated_at`

// CredentialRepository implements auth.CredentialStore using PostgreSQL.
type CredentialRepository struct {
	pool poolIface
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool poolIface) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// FindMemberByID retrieves a member and, if present, its credential.
func (r *CredentialRepository) FindMemberByID(ctx context.Context, id int64) (*auth.Member, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT m.id, m.name, m.register_type, m.filesize_total, m.created_at, m.updated_at,
		       a.id, a.email, a.password, a.login_hash, a.last_login, a.version, a.created_at, a.updated_at
		FROM members m
		LEFT JOIN member_auth a ON a.member_id = m.id
		WHERE m.id = $1
	`, id)

	var (
		member      auth.Member
		credID      *int64
		email       *string
		password    *string
		loginHash   *string
		lastLogin   *time.Time
		version     *int64
		credCreated *time.Time
		credUpdated *time.Time
	)
	err := row.Scan(
		&member.ID, &member.Name, &member.RegisterType, &member.FilesizeTotal, &member.CreatedAt, &member.UpdatedAt,
		&credID, &email, &password, &loginHash, &lastLogin, &version, &credCreated, &credUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("MEMBER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("MEMBER_GET_BY_ID_FAILED").
			With("operation", "get member by id").
			With("id", id).
			Wrap(err)
	}

	if credID != nil {
		cred := &auth.Credential{
			ID:           *credID,
			MemberID:     member.ID,
			Email:        deref(email),
			PasswordHash: deref(password),
			LoginHash:    deref(loginHash),
			LastLogin:    lastLogin,
			Version:      derefInt(version),
		}
		if credCreated != nil {
			cred.CreatedAt = *credCreated
		}
		if credUpdated != nil {
			cred.UpdatedAt = *credUpdated
		}
		if cred.Attributes, err = loadAttributes(ctx, r.pool, cred.ID); err != nil {
			return nil, err
		}
		member.Credential = cred
	}
	return &member, nil
}

// FindCredentialByEmail retrieves a credential by email (case-insensitive).
func (r *CredentialRepository) FindCredentialByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM member_auth
		WHERE LOWER(email) = LOWER($1)
	`, email)
	return r.credentialFromRow(ctx, row, "email", email)
}

// FindCredentialByEmailAndPasswordHash retrieves a credential matching the
// email (case-insensitive) and the exact stored password hash.
func (r *CredentialRepository) FindCredentialByEmailAndPasswordHash(ctx context.Context, email, passwordHash string) (*auth.Credential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM member_auth
		WHERE LOWER(email) = LOWER($1) AND password = $2
	`, email, passwordHash)
	return r.credentialFromRow(ctx, row, "email", email)
}

// FindCredentialByMemberID retrieves the credential of a member.
func (r *CredentialRepository) FindCredentialByMemberID(ctx context.Context, memberID int64) (*auth.Credential, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM member_auth
		WHERE member_id = $1
	`, memberID)
	return r.credentialFromRow(ctx, row, "member_id", memberID)
}

// EmailTaken reports whether a member other than excludeMemberID uses email.
func (r *CredentialRepository) EmailTaken(ctx context.Context, email string, excludeMemberID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM member_auth
			WHERE LOWER(email) = LOWER($1) AND member_id <> $2
		)
	`, email, excludeMemberID).Scan(&taken)
	if err != nil {
		return false, oops.Code("CREDENTIAL_EMAIL_CHECK_FAILED").
			With("operation", "check email taken").
			With("email", email).
			Wrap(err)
	}
	return taken, nil
}

// CreateMemberWithCredential inserts the member, its credential and the
// credential attributes in one transaction.
func (r *CredentialRepository) CreateMemberWithCredential(ctx context.Context, member *auth.Member, credential *auth.Credential) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, oops.Code("MEMBER_CREATE_FAILED").With("operation", "begin transaction").Wrap(err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	var memberID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO members (name, register_type, filesize_total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`,
		member.Name,
		member.RegisterType,
		member.FilesizeTotal,
		member.CreatedAt,
		member.UpdatedAt,
	).Scan(&memberID)
	if err != nil {
		return 0, oops.Code("MEMBER_CREATE_FAILED").
			With("operation", "insert member").
			Wrap(err)
	}

	var (
		credID  int64
		version int64
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO member_auth (member_id, email, password, login_hash, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, version
	`,
		memberID,
		credential.Email,
		credential.PasswordHash,
		credential.LoginHash,
		credential.LastLogin,
		credential.CreatedAt,
		credential.UpdatedAt,
	).Scan(&credID, &version)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, oops.Code("CREDENTIAL_DUPLICATE_EMAIL").
				With("email", credential.Email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return 0, oops.Code("MEMBER_CREATE_FAILED").
			With("operation", "insert credential").
			Wrap(err)
	}

	if err := insertAttributes(ctx, tx, credID, credential.Attributes); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, oops.Code("MEMBER_CREATE_FAILED").With("operation", "commit transaction").Wrap(err)
	}

	member.ID = memberID
	credential.ID = credID
	credential.MemberID = memberID
	credential.Version = version
	credential.MarkClean()
	return memberID, nil
}

// SaveMember updates an existing member.
func (r *CredentialRepository) SaveMember(ctx context.Context, member *auth.Member) error {
	member.UpdatedAt = time.Now()
	result, err := r.pool.Exec(ctx, `
		UPDATE members SET
			name = $2,
			register_type = $3,
			filesize_total = $4,
			updated_at = $5
		WHERE id = $1
	`,
		member.ID,
		member.Name,
		member.RegisterType,
		member.FilesizeTotal,
		member.UpdatedAt,
	)
	if err != nil {
		return oops.Code("MEMBER_UPDATE_FAILED").
			With("operation", "update member").
			With("id", member.ID).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("MEMBER_NOT_FOUND").
			With("id", member.ID).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SaveCredential updates a credential and replaces its attributes. The
// update only applies if the stored version still equals credential.Version.
func (r *CredentialRepository) SaveCredential(ctx context.Context, credential *auth.Credential) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").With("operation", "begin transaction").Wrap(err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	updatedAt := time.Now()
	var (
		credID  int64
		version int64
	)
	err = tx.QueryRow(ctx, `
		UPDATE member_auth SET
			email = $3,
			password = $4,
			login_hash = $5,
			last_login = $6,
			version = version + 1,
			updated_at = $7
		WHERE member_id = $1 AND version = $2
		RETURNING id, version
	`,
		credential.MemberID,
		credential.Version,
		credential.Email,
		credential.PasswordHash,
		credential.LoginHash,
		credential.LastLogin,
		updatedAt,
	).Scan(&credID, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missingOrConflict(ctx, tx, credential)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("CREDENTIAL_DUPLICATE_EMAIL").
				With("email", credential.Email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("operation", "update credential").
			With("member_id", credential.MemberID).
			Wrap(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM member_auth_attributes WHERE member_auth_id = $1`, credID); err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("operation", "clear attributes").
			With("member_id", credential.MemberID).
			Wrap(err)
	}
	if err := insertAttributes(ctx, tx, credID, credential.Attributes); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").With("operation", "commit transaction").Wrap(err)
	}

	credential.ID = credID
	credential.Version = version
	credential.UpdatedAt = updatedAt
	credential.MarkClean()
	return nil
}

func (r *CredentialRepository) missingOrConflict(ctx context.Context, q querier, credential *auth.Credential) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM member_auth WHERE member_id = $1)`, credential.MemberID).Scan(&exists)
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("operation", "check credential exists").
			With("member_id", credential.MemberID).
			Wrap(err)
	}
	if !exists {
		return oops.Code("CREDENTIAL_NOT_FOUND").
			With("member_id", credential.MemberID).
			Wrap(auth.ErrNotFound)
	}
	return oops.Code("CREDENTIAL_VERSION_CONFLICT").
		With("member_id", credential.MemberID).
		With("version", credential.Version).
		Wrap(auth.ErrConflict)
}

// DeleteMember removes a member; the credential and its attributes cascade.
func (r *CredentialRepository) DeleteMember(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return oops.Code("MEMBER_DELETE_FAILED").
			With("operation", "delete member").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("MEMBER_NOT_FOUND").
			With("id", id).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *CredentialRepository) credentialFromRow(ctx context.Context, row pgx.Row, key string, value any) (*auth.Credential, error) {
	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if cred.Attributes, err = loadAttributes(ctx, r.pool, cred.ID); err != nil {
		return nil, err
	}
	return cred, nil
}

// scanCredential scans a row of credentialColumns.
// Callers are responsible for handling pgx.ErrNoRows.
func scanCredential(row pgx.Row) (*auth.Credential, error) {
	var c auth.Credential
	err := row.Scan(
		&c.ID,
		&c.MemberID,
		&c.Email,
		&c.PasswordHash,
		&c.LoginHash,
		&c.LastLogin,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("CREDENTIAL_SCAN_FAILED").
			With("operation", "scan credential").
			Wrap(err)
	}
	return &c, nil
}

func loadAttributes(ctx context.Context, q querier, credID int64) (map[string]string, error) {
	rows, err := q.Query(ctx, `
		SELECT name, value FROM member_auth_attributes
		WHERE member_auth_id = $1
	`, credID)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_ATTRIBUTES_FAILED").
			With("operation", "query attributes").
			With("credential_id", credID).
			Wrap(err)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, oops.Code("CREDENTIAL_ATTRIBUTES_FAILED").
				With("operation", "scan attribute").
				Wrap(err)
		}
		attrs[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("CREDENTIAL_ATTRIBUTES_FAILED").
			With("operation", "iterate attributes").
			Wrap(err)
	}
	return attrs, nil
}

// insertAttributes writes attributes in name order.
func insertAttributes(ctx context.Context, q querier, credID int64, attrs map[string]string) error {
	for _, name := range slices.Sorted(maps.Keys(attrs)) {
		_, err := q.Exec(ctx, `
			INSERT INTO member_auth_attributes (member_auth_id, name, value)
			VALUES ($1, $2, $3)
		`, credID, name, attrs[name])
		if err != nil {
			return oops.Code("CREDENTIAL_ATTRIBUTES_FAILED").
				With("operation", "insert attribute").
				With("name", name).
				Wrap(err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

// Compile-time interface check.
var _ auth.CredentialStore = (*CredentialRepository)(nil)
