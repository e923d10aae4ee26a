package punch

import (
	"context"
	"sort"
	"sync"
	"time"

	"pontual.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. The single mutex makes Commit the
// atomic critical section the sequencing contract requires.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Punch
	byEmp   map[int64][]*Punch
	lastNSR int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Punch),
		byEmp: make(map[int64][]*Punch),
	}
}

func (s *MemoryStore) Commit(ctx context.Context, p *Punch, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if window > 0 {
		cutoff := p.Time.Add(-window)
		for _, prev := range s.byEmp[p.EmployeeID] {
			if prev.Time.After(cutoff) && !prev.Time.After(p.Time) {
				return ErrDuplicateWindow
			}
		}
	}

	s.lastNSR++
	p.NSR = s.lastNSR
	p.Hash = ComputeHash(p.EmployeeID, p.Type, p.Time, p.NSR)
	if p.ID == "" {
		p.ID = ids.New()
	}

	cp := *p
	s.byID[cp.ID] = &cp
	s.byEmp[cp.EmployeeID] = append(s.byEmp[cp.EmployeeID], &cp)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, id string) (*Punch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListForDay(ctx context.Context, employeeID int64, at time.Time) ([]*Punch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := at.UTC().Format("2006-01-02")
	var out []*Punch
	for _, p := range s.byEmp[employeeID] {
		if p.Time.UTC().Format("2006-01-02") == day {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (s *MemoryStore) LastNSR(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastNSR, nil
}

// Tamper rewrites the stored punch type without rehashing. Test helper
// for the verification path.
func (s *MemoryStore) Tamper(id string, newType Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		p.Type = newType
	}
}
