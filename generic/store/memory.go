// Package store provides in-process RemoteStore implementations.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/warp/report-sync/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	order       []string // ids in insertion order
	reports     map[string]generic.Report
	idempotency map[string]string // key -> id
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		reports:     make(map[string]generic.Report),
		idempotency: make(map[string]string),
		now:         time.Now,
	}
}

// WithClock replaces the clock used for ids and timestamps.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// List returns every report of typ in insertion order.
func (m *Memory) List(_ context.Context, typ string) ([]generic.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	typ = strings.TrimSpace(typ)
	result := []generic.Report{}
	for _, id := range m.order {
		if r := m.reports[id]; r.Type == typ {
			result = append(result, r.Clone())
		}
	}
	return result, nil
}

// Get returns one report by id.
func (m *Memory) Get(_ context.Context, id string) (generic.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return generic.Report{}, generic.ErrNotFound
	}
	return r.Clone(), nil
}

// Create appends a report and assigns it a UUIDv7 id.
func (m *Memory) Create(_ context.Context, r generic.Report) (generic.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.IdempotencyKey != "" {
		if existing, dup := m.idempotency[r.IdempotencyKey]; dup {
			return generic.Report{}, &generic.ConflictError{
				Type:           r.Type,
				IdempotencyKey: r.IdempotencyKey,
				Message:        fmt.Sprintf("already stored as %s", existing),
			}
		}
	}

	now := m.now().UTC()
	id, err := generic.NewID(now)
	if err != nil {
		return generic.Report{}, err
	}
	stored := r.Clone()
	stored.ID = id
	stored.Type = strings.TrimSpace(r.Type)
	stored.CreatedAt = now.Format(generic.TimestampLayout)
	stored.UpdatedAt = now.Format(generic.TimestampLayout)
	if stored.Payload == nil {
		stored.Payload = generic.Document{}
	}

	m.reports[id] = stored
	m.order = append(m.order, id)
	if r.IdempotencyKey != "" {
		m.idempotency[r.IdempotencyKey] = id
	}
	return stored.Clone(), nil
}

// Update overwrites payload, branch and reporter of an existing report.
func (m *Memory) Update(_ context.Context, id string, r generic.Report) (generic.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.reports[id]
	if !ok {
		return generic.Report{}, generic.ErrNotFound
	}
	stored.Payload = r.Payload.Clone()
	stored.Branch = r.Branch
	stored.Reporter = r.Reporter
	stored.UpdatedAt = m.now().UTC().Format(generic.TimestampLayout)
	m.reports[id] = stored
	return stored.Clone(), nil
}

// Delete removes a report. The idempotency key is released with it.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.reports[id]
	if !ok {
		return generic.ErrNotFound
	}
	delete(m.reports, id)
	if stored.IdempotencyKey != "" {
		delete(m.idempotency, stored.IdempotencyKey)
	}
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Reset drops everything.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.reports = make(map[string]generic.Report)
	m.idempotency = make(map[string]string)
	return nil
}

// Types returns the number of stored reports per type.
func (m *Memory) Types(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for _, r := range m.reports {
		out[r.Type]++
	}
	return out, nil
}
