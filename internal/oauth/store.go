package oauth

import (
	"context"
	"errors"
	"time"
)

// Token is one persisted access/refresh pair. Raw token values are never
// stored; only their SHA-256 hashes. Rows are retained after revocation
// for the audit trail.
type Token struct {
	ID                string
	EmployeeID        int64
	AccessHash        string
	RefreshHash       string
	DeviceFingerprint string
	Scopes            []string
	IssuedAt          time.Time
	AccessExpiresAt   time.Time
	RefreshExpiresAt  time.Time
	LastUsedAt        *time.Time
	Revoked           bool
	RevokedAt         *time.Time
}

var (
	ErrTokenNotFound = errors.New("oauth: token not found")
	ErrTokenRevoked  = errors.New("oauth: token revoked")
)

// Store persists OAuth token rows. Implementations must make Rotate
// atomic: marking the old row revoked and inserting the replacement must
// not interleave with a concurrent RevokeAll, otherwise a refresh racing
// a revoke-all could leave a live token behind.
type Store interface {
	Create(ctx context.Context, tok *Token) error
	FindByAccessHash(ctx context.Context, hash string) (*Token, error)
	FindByRefreshHash(ctx context.Context, hash string) (*Token, error)
	// Rotate revokes the row identified by oldID and inserts next in one
	// critical section. Returns ErrTokenRevoked when the old row was
	// already revoked (e.g. by a concurrent revoke-all).
	Rotate(ctx context.Context, oldID string, next *Token) error
	MarkRevoked(ctx context.Context, id string) error
	// RevokeAll revokes every non-revoked row of the employee, optionally
	// sparing one device fingerprint, and reports how many were revoked.
	RevokeAll(ctx context.Context, employeeID int64, exceptDevice string) (int, error)
	ListActive(ctx context.Context, employeeID int64, now time.Time) ([]*Token, error)
	Touch(ctx context.Context, id string, at time.Time) error
}
