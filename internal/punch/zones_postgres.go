package punch

import (
	"context"
	"database/sql"
)

var _ ZoneStore = (*PGZoneStore)(nil)

// PGZoneStore reads geofence zones from the geofences table.
type PGZoneStore struct {
	db *sql.DB
}

func NewPGZoneStore(db *sql.DB) *PGZoneStore {
	return &PGZoneStore{db: db}
}

func (s *PGZoneStore) Zones(ctx context.Context) ([]*Zone, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, latitude, longitude, radius_m, active from geofences`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Zone
	for rows.Next() {
		var z Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.Latitude, &z.Longitude, &z.RadiusM, &z.Active); err != nil {
			return nil, err
		}
		out = append(out, &z)
	}
	return out, rows.Err()
}

// StaticZones is a fixed in-memory ZoneStore for deployments without
// Postgres.
type StaticZones []*Zone

func (s StaticZones) Zones(ctx context.Context) ([]*Zone, error) {
	return s, nil
}
