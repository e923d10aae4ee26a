package punch

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pontual.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store against time_punches plus the single-row
// punch_sequence table. Locking the sequence row serializes every
// commit, which gives both the gap-free NSR guarantee and a race-free
// duplicate window check.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const punchColumns = `id, employee_id, punch_time, punch_type, method,
	latitude, longitude, face_similarity, nsr, hash, ip, user_agent`

func (s *PGStore) Commit(ctx context.Context, p *Punch, window time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx,
		`select last_nsr from punch_sequence where id=1 for update`).Scan(&last); err != nil {
		return err
	}

	if window > 0 {
		var dup bool
		err := tx.QueryRowContext(ctx, `
			select exists(
				select 1 from time_punches
				where employee_id=$1 and punch_time > $2 and punch_time <= $3)`,
			p.EmployeeID, p.Time.Add(-window), p.Time).Scan(&dup)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateWindow
		}
	}

	p.NSR = last + 1
	p.Hash = ComputeHash(p.EmployeeID, p.Type, p.Time, p.NSR)
	if p.ID == "" {
		p.ID = ids.New()
	}

	if _, err := tx.ExecContext(ctx,
		`update punch_sequence set last_nsr=$1 where id=1`, p.NSR); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into time_punches(id, employee_id, punch_time, punch_type, method,
			latitude, longitude, face_similarity, nsr, hash, ip, user_agent)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.EmployeeID, p.Time, p.Type, p.Method,
		p.Latitude, p.Longitude, p.FaceSimilarity, p.NSR, p.Hash,
		p.IP, p.UserAgent,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) Find(ctx context.Context, id string) (*Punch, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+punchColumns+` from time_punches where id=$1`, id)
	p, err := scanPunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PGStore) ListForDay(ctx context.Context, employeeID int64, at time.Time) ([]*Punch, error) {
	day := at.UTC().Truncate(24 * time.Hour)
	rows, err := s.db.QueryContext(ctx, `
		select `+punchColumns+` from time_punches
		where employee_id=$1 and punch_time >= $2 and punch_time < $3
		order by punch_time asc`,
		employeeID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Punch
	for rows.Next() {
		p, err := scanPunch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) LastNSR(ctx context.Context) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx,
		`select last_nsr from punch_sequence where id=1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return last, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPunch(row rowScanner) (*Punch, error) {
	var p Punch
	err := row.Scan(
		&p.ID, &p.EmployeeID, &p.Time, &p.Type, &p.Method,
		&p.Latitude, &p.Longitude, &p.FaceSimilarity, &p.NSR, &p.Hash,
		&p.IP, &p.UserAgent,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
