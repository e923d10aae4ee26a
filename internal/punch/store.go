package punch

import (
	"context"
	"time"
)

// Store persists punches and owns the NSR sequence. Commit is the
// single mutating entry point: implementations must run the duplicate
// window check, the NSR assignment, and the insert in one critical
// section so two concurrent punches for the same employee cannot both
// pass the window check, and no two punches ever share an NSR.
type Store interface {
	// Commit assigns the next NSR, fills p.NSR and p.Hash, and persists
	// the record. Returns ErrDuplicateWindow when the employee already
	// has a punch within the trailing window.
	Commit(ctx context.Context, p *Punch, window time.Duration) error
	// Find returns one punch by id, or ErrNotFound.
	Find(ctx context.Context, id string) (*Punch, error)
	// ListForDay returns the employee's punches for the civil day that
	// contains at, in chronological order.
	ListForDay(ctx context.Context, employeeID int64, at time.Time) ([]*Punch, error)
	// LastNSR reports the highest NSR assigned so far, 0 when none.
	LastNSR(ctx context.Context) (int64, error)
}
