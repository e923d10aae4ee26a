package facial

import (
	"context"
	"database/sql"
)

var _ TemplateStore = (*PGTemplateStore)(nil)

// PGTemplateStore reads enrolled fingerprint templates, restricted to
// active employees.
type PGTemplateStore struct {
	db *sql.DB
}

func NewPGTemplateStore(db *sql.DB) *PGTemplateStore {
	return &PGTemplateStore{db: db}
}

func (s *PGTemplateStore) ActiveTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		select t.employee_id, t.template
		from biometric_templates t
		join employees e on e.id = t.employee_id
		where e.active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.EmployeeID, &t.Data); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
