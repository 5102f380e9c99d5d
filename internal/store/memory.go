package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rezonia/nfe-entry/internal/model"
)

// Memory is an in-process Store
type Memory struct {
	mu        sync.RWMutex
	entries   map[string]model.Entry
	keys      map[string]string
	suppliers map[string]model.Supplier
	now       func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[string]model.Entry),
		keys:      make(map[string]string),
		suppliers: make(map[string]model.Supplier),
		now:       time.Now,
	}
}

// SaveEntry implements Store
func (m *Memory) SaveEntry(ctx context.Context, sub model.Submission) (model.Entry, error) {
	if err := ctx.Err(); err != nil {
		return model.Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sub.InvoiceKey != "" {
		if _, ok := m.keys[sub.InvoiceKey]; ok {
			return model.Entry{}, ErrDuplicateKey
		}
	}

	e := model.Entry{
		ID:         uuid.NewString(),
		Submission: sub,
		CreatedAt:  m.now().UTC(),
	}
	m.entries[e.ID] = e
	if sub.InvoiceKey != "" {
		m.keys[sub.InvoiceKey] = e.ID
	}
	return e, nil
}

// GetEntry implements Store
func (m *Memory) GetEntry(ctx context.Context, id string) (model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return model.Entry{}, ErrNotFound
	}
	return e, nil
}

// ListEntries implements Store
func (m *Memory) ListEntries(ctx context.Context, limit int) ([]model.Entry, error) {
	m.mu.RLock()
	out := make([]model.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveSupplier implements Store
func (m *Memory) SaveSupplier(ctx context.Context, s model.Supplier) (model.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.suppliers[s.Document]; ok && s.ID == "" {
		s.ID = existing.ID
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.suppliers[s.Document] = s
	return s, nil
}

// FindSupplierByDocument implements Store
func (m *Memory) FindSupplierByDocument(ctx context.Context, document string) (model.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.suppliers[document]
	if !ok || document == "" {
		return model.Supplier{}, ErrNotFound
	}
	return s, nil
}

// Close implements Store
func (m *Memory) Close() {}
