package directory

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store against the employees table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const employeeColumns = `id, name, email, password_hash, role, department, code, active,
	biometric_consent, face_enrolled, fingerprint_enrolled, created_at, updated_at`

func (s *PGStore) Find(ctx context.Context, id int64) (*Employee, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees where id=$1`, id)
	return scanEmployee(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Employee, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees where email=$1`, email)
	return scanEmployee(row)
}

func (s *PGStore) FindByCode(ctx context.Context, code string) (*Employee, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+employeeColumns+` from employees where code=$1`, code)
	return scanEmployee(row)
}

func (s *PGStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update employees set password_hash=$2, updated_at=now() where id=$1`, id, passwordHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEmployee(row *sql.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(
		&e.ID, &e.Name, &e.Email, &e.PasswordHash, &e.Role, &e.Department,
		&e.Code, &e.Active, &e.BiometricConsent, &e.FaceEnrolled,
		&e.FingerprintEnrolled, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
