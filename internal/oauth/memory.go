package oauth

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. One mutex covers every operation, which
// also gives Rotate and RevokeAll the required atomicity.
type Memory struct {
	mu     sync.Mutex
	byID   map[string]*Token
	access map[string]string // access hash -> id
	refr   map[string]string // refresh hash -> id
}

func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[string]*Token),
		access: make(map[string]string),
		refr:   make(map[string]string),
	}
}

func (m *Memory) Create(ctx context.Context, tok *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(tok)
	return nil
}

func (m *Memory) insertLocked(tok *Token) {
	cp := *tok
	m.byID[cp.ID] = &cp
	m.access[cp.AccessHash] = cp.ID
	m.refr[cp.RefreshHash] = cp.ID
}

func (m *Memory) FindByAccessHash(ctx context.Context, hash string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.access[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *Memory) FindByRefreshHash(ctx context.Context, hash string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.refr[hash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *Memory) Rotate(ctx context.Context, oldID string, next *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.byID[oldID]
	if !ok {
		return ErrTokenNotFound
	}
	if old.Revoked {
		return ErrTokenRevoked
	}
	now := time.Now().UTC()
	old.Revoked = true
	old.RevokedAt = &now
	m.insertLocked(next)
	return nil
}

func (m *Memory) MarkRevoked(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.byID[id]
	if !ok {
		return ErrTokenNotFound
	}
	if !tok.Revoked {
		now := time.Now().UTC()
		tok.Revoked = true
		tok.RevokedAt = &now
	}
	return nil
}

func (m *Memory) RevokeAll(ctx context.Context, employeeID int64, exceptDevice string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	count := 0
	for _, tok := range m.byID {
		if tok.EmployeeID != employeeID || tok.Revoked {
			continue
		}
		if exceptDevice != "" && tok.DeviceFingerprint == exceptDevice {
			continue
		}
		tok.Revoked = true
		tok.RevokedAt = &now
		count++
	}
	return count, nil
}

func (m *Memory) ListActive(ctx context.Context, employeeID int64, now time.Time) ([]*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Token
	for _, tok := range m.byID {
		if tok.EmployeeID != employeeID || tok.Revoked || now.After(tok.AccessExpiresAt) {
			continue
		}
		cp := *tok
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (m *Memory) Touch(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.byID[id]
	if !ok {
		return ErrTokenNotFound
	}
	tok.LastUsedAt = &at
	return nil
}
