package jobstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store backed by a mutex-guarded map. It is the
// default for single-node deployments and the store used by tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

// Create persists a new record.
func (m *Memory) Create(ctx context.Context, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return errEmptyID()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.ID]; ok {
		return ErrExists
	}
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	m.records[rec.ID] = &cp
	return nil
}

// Get returns a snapshot of the record.
func (m *Memory) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Update applies mutate under the store lock, enforcing terminal-state
// immutability.
func (m *Memory) Update(ctx context.Context, id string, mutate func(*Record) error) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status.Terminal() {
		return nil, ErrTerminal
	}

	cp := *rec
	if err := mutate(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now().UTC()
	m.records[id] = &cp

	out := cp
	return &out, nil
}
