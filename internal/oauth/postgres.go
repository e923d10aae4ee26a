package oauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store against the oauth_tokens table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const tokenColumns = `id, employee_id, access_hash, refresh_hash, device_fingerprint,
	scopes, issued_at, access_expires_at, refresh_expires_at, last_used_at,
	revoked, revoked_at`

func (s *PGStore) Create(ctx context.Context, tok *Token) error {
	return insertToken(ctx, s.db, tok)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, tok *Token) error {
	scopes, err := json.Marshal(tok.Scopes)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		insert into oauth_tokens(id, employee_id, access_hash, refresh_hash,
			device_fingerprint, scopes, issued_at, access_expires_at, refresh_expires_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		tok.ID, tok.EmployeeID, tok.AccessHash, tok.RefreshHash,
		tok.DeviceFingerprint, scopes, tok.IssuedAt,
		tok.AccessExpiresAt, tok.RefreshExpiresAt,
	)
	return err
}

func (s *PGStore) FindByAccessHash(ctx context.Context, hash string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+tokenColumns+` from oauth_tokens where access_hash=$1`, hash)
	return scanToken(row)
}

func (s *PGStore) FindByRefreshHash(ctx context.Context, hash string) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+tokenColumns+` from oauth_tokens where refresh_hash=$1`, hash)
	return scanToken(row)
}

// Rotate runs in one transaction so a refresh cannot interleave with a
// concurrent revoke-all: either the old row is still live and both the
// revoke and the insert land together, or the rotation fails outright.
func (s *PGStore) Rotate(ctx context.Context, oldID string, next *Token) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update oauth_tokens set revoked=true, revoked_at=now()
		where id=$1 and revoked=false`, oldID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenRevoked
	}
	if err := insertToken(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) MarkRevoked(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		update oauth_tokens set revoked=true, revoked_at=now()
		where id=$1 and revoked=false`, id)
	return err
}

func (s *PGStore) RevokeAll(ctx context.Context, employeeID int64, exceptDevice string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if exceptDevice == "" {
		res, err = s.db.ExecContext(ctx, `
			update oauth_tokens set revoked=true, revoked_at=now()
			where employee_id=$1 and revoked=false`, employeeID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			update oauth_tokens set revoked=true, revoked_at=now()
			where employee_id=$1 and revoked=false and device_fingerprint <> $2`,
			employeeID, exceptDevice)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PGStore) ListActive(ctx context.Context, employeeID int64, now time.Time) ([]*Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+tokenColumns+` from oauth_tokens
		where employee_id=$1 and revoked=false and access_expires_at > $2
		order by issued_at desc`, employeeID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Token
	for rows.Next() {
		tok, err := scanTokenRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func (s *PGStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update oauth_tokens set last_used_at=$2 where id=$1`, id, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row *sql.Row) (*Token, error) {
	tok, err := scanTokenRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return tok, err
}

func scanTokenRows(row rowScanner) (*Token, error) {
	var (
		tok    Token
		scopes []byte
	)
	err := row.Scan(
		&tok.ID, &tok.EmployeeID, &tok.AccessHash, &tok.RefreshHash,
		&tok.DeviceFingerprint, &scopes, &tok.IssuedAt,
		&tok.AccessExpiresAt, &tok.RefreshExpiresAt, &tok.LastUsedAt,
		&tok.Revoked, &tok.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(scopes) > 0 {
		_ = json.Unmarshal(scopes, &tok.Scopes)
	}
	return &tok, nil
}
