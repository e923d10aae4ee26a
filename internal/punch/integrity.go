package punch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"pontual.org/internal/obs"
)

const (
	hashTimeLayout         = "2006-01-02 15:04:05"
	defaultDuplicateWindow = 60 * time.Second
)

// ComputeHash produces the integrity hash over a punch's immutable
// fields. Field order and formatting are fixed: the same logical record
// always hashes identically, and any mutation to employee, type, time
// or NSR changes the result.
func ComputeHash(employeeID int64, punchType Type, punchTime time.Time, nsr int64) string {
	canonical := fmt.Sprintf("%d|%s|%s|%d",
		employeeID, punchType, punchTime.UTC().Format(hashTimeLayout), nsr)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Engine assigns NSRs and computes/verifies integrity hashes. It is the
// only component touching the legal-record guarantee; everything else
// goes through it.
type Engine struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

// WithDuplicateWindow overrides the duplicate suppression window.
func WithDuplicateWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithEngineClock overrides the time source (tests).
func WithEngineClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs the integrity engine.
func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		window: defaultDuplicateWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register stamps the punch time when absent, then commits. The store
// assigns the NSR and fills the hash inside its critical section, so
// concurrent registrations cannot reuse a sequence number or slip past
// the duplicate window together.
func (e *Engine) Register(ctx context.Context, p *Punch) error {
	if !p.Type.Valid() {
		return ErrInvalidType
	}
	if p.Time.IsZero() {
		p.Time = e.now().UTC()
	} else {
		p.Time = p.Time.UTC()
	}
	if err := e.store.Commit(ctx, p, e.window); err != nil {
		return err
	}
	obs.SetLastNSR(p.NSR)
	return nil
}

// Verify loads the punch and recomputes its hash. A mismatch is
// ErrIntegrity, distinct from ErrNotFound: tampering is surfaced, never
// silently corrected.
func (e *Engine) Verify(ctx context.Context, id string) (*Punch, error) {
	p, err := e.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	expect := ComputeHash(p.EmployeeID, p.Type, p.Time, p.NSR)
	if expect != p.Hash {
		return p, ErrIntegrity
	}
	return p, nil
}
