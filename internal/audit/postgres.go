package audit

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ Store = (*PGStore)(nil)

// PGStore appends entries to the audit_log table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log(id, occurred_at, employee_id, action, resource,
			resource_id, outcome, detail, ip_address, user_agent, request_id)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		entry.ID, entry.OccurredAt, entry.EmployeeID, entry.Action,
		entry.Resource, entry.ResourceID, entry.Outcome, entry.Detail,
		entry.IP, entry.UserAgent, entry.RequestID,
	)
	return err
}
