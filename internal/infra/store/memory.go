package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/muser/internal/domain/challenge"
)

// Memory is a process-local store for development and tests.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]*challenge.Row // key: type:genre
	byID map[string]string         // row id -> key
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rows: make(map[string]*challenge.Row),
		byID: make(map[string]string),
	}
}

func memoryKey(typ challenge.Type, genre string) string {
	return string(typ) + ":" + genre
}

// GetRow returns a copy of the row.
func (m *Memory) GetRow(_ context.Context, typ challenge.Type, genre string) (*challenge.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[memoryKey(typ, genre)]
	if !ok {
		return nil, errors.Wrapf(ErrRowNotFound, "type=%s genre=%s", typ, genre)
	}
	return row.Clone(), nil
}

// UpdateRow applies an update to the row with the given id.
func (m *Memory) UpdateRow(_ context.Context, id string, u challenge.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.byID[id]
	if !ok {
		return errors.Wrapf(ErrRowNotFound, "id=%s", id)
	}
	m.rows[key].Apply(u)
	return nil
}

// CreateRow inserts a copy of the row.
func (m *Memory) CreateRow(_ context.Context, row *challenge.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(row.Type, row.Genre)
	if _, ok := m.rows[key]; ok {
		return errors.Wrapf(ErrRowExists, "type=%s genre=%s", row.Type, row.Genre)
	}
	m.rows[key] = row.Clone()
	m.byID[row.ID] = key
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
