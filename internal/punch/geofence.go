package punch

import (
	"context"
	"math"
)

// Zone is one circular geofence: punches may be required to originate
// from within at least one active zone.
type Zone struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
	RadiusM   float64
	Active    bool
}

// ZoneStore lists the configured geofence zones. Read-only to this
// package; zone CRUD lives with the admin surface.
type ZoneStore interface {
	Zones(ctx context.Context) ([]*Zone, error)
}

const earthRadiusM = 6371000

// haversineM returns the great-circle distance between two points in
// meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceM returns the distance from the point to the zone center in
// meters.
func (z *Zone) DistanceM(lat, lon float64) float64 {
	return haversineM(z.Latitude, z.Longitude, lat, lon)
}

// Contains reports whether the point falls inside the zone's radius.
func (z *Zone) Contains(lat, lon float64) bool {
	return z.DistanceM(lat, lon) <= z.RadiusM
}

// WithinAny reports whether the point is inside at least one active
// zone. An empty zone list never matches.
func WithinAny(zones []*Zone, lat, lon float64) bool {
	for _, z := range zones {
		if z.Active && z.Contains(lat, lon) {
			return true
		}
	}
	return false
}
