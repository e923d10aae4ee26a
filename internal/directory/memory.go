package directory

import (
	"context"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store used in tests and single-node deployments
// without Postgres.
type Memory struct {
	mu        sync.RWMutex
	byID      map[int64]*Employee
	idByEmail map[string]int64
	idByCode  map[string]int64
}

func NewMemory(employees ...*Employee) *Memory {
	m := &Memory{
		byID:      make(map[int64]*Employee),
		idByEmail: make(map[string]int64),
		idByCode:  make(map[string]int64),
	}
	for _, e := range employees {
		m.Put(e)
	}
	return m
}

// Put inserts or replaces an employee record.
func (m *Memory) Put(e *Employee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.byID[cp.ID] = &cp
	if cp.Email != "" {
		m.idByEmail[cp.Email] = cp.ID
	}
	if cp.Code != "" {
		m.idByCode[cp.Code] = cp.ID
	}
}

func (m *Memory) Find(ctx context.Context, id int64) (*Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (*Employee, error) {
	m.mu.RLock()
	id, ok := m.idByEmail[email]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Find(ctx, id)
}

func (m *Memory) FindByCode(ctx context.Context, code string) (*Employee, error) {
	m.mu.RLock()
	id, ok := m.idByCode[code]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Find(ctx, id)
}

func (m *Memory) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	e.PasswordHash = passwordHash
	return nil
}
