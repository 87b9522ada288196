package registry

import (
	"context"
	"sync"
	"time"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// Memory is an in-process Store backed by a map, guarded by a single mutex.
// It is single-process only: concurrent orchestrator instances must use
// Postgres instead (§4.1). Intended for local development and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*sandbox.Record
}

// NewMemory creates an empty in-memory Registry Store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*sandbox.Record)}
}

func (m *Memory) Save(_ context.Context, record *sandbox.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.SandboxID]; exists {
		return sandbox.Wrap(sandbox.KindConflict, "sandbox_id already exists", nil)
	}
	m.records[record.SandboxID] = record.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*sandbox.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, sandbox.New(sandbox.KindNotFound, "sandbox not found")
	}
	return r.Clone(), nil
}

func (m *Memory) List(_ context.Context, userID string) ([]*sandbox.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*sandbox.Record, 0, len(m.records))
	for _, r := range m.records {
		if userID != "" && r.UserID != userID {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func (m *Memory) Update(_ context.Context, id string, patch sandbox.Patch) (*sandbox.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return nil, sandbox.New(sandbox.KindNotFound, "sandbox not found")
	}
	patch.Apply(r)
	r.UpdatedAt = time.Now().UTC()
	return r.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return sandbox.New(sandbox.KindNotFound, "sandbox not found")
	}
	delete(m.records, id)
	return nil
}

func (m *Memory) ListExpired(_ context.Context, now time.Time) ([]*sandbox.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*sandbox.Record
	for _, r := range m.records {
		if (r.Status == sandbox.StatusReady || r.Status == sandbox.StatusRunning) && r.Expired(now) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
