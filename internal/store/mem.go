package store

import (
	"fmt"
	"sync"
)

// memStore is the in-memory Store backend, used for unit tests and the
// InMemory DB mode. It enforces the same all-or-nothing WriteBatch semantics
// as the file-backed implementation.
type memStore struct {
	mu      sync.RWMutex
	columns map[string]map[string][]byte
}

func newMemStore(columns []string) *memStore {
	m := &memStore{columns: make(map[string]map[string][]byte, len(columns))}
	for _, c := range columns {
		m.columns[c] = make(map[string][]byte)
	}
	return m
}

func (m *memStore) column(name string) (map[string][]byte, error) {
	cf, ok := m.columns[name]
	if !ok {
		return nil, fmt.Errorf("store: unknown column %q", name)
	}
	return cf, nil
}

func (m *memStore) Get(column string, key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cf, err := m.column(column)
	if err != nil {
		return nil, false, err
	}
	v, ok := cf[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *memStore) Put(column string, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cf, err := m.column(column)
	if err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	cf[string(key)] = v
	return nil
}

func (m *memStore) Delete(column string, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cf, err := m.column(column)
	if err != nil {
		return err
	}
	delete(cf, string(key))
	return nil
}

func (m *memStore) IterColumn(column string, fn func(key, value []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cf, err := m.column(column)
	if err != nil {
		return err
	}
	for k, v := range cf {
		if err := fn([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch applies ops atomically: every op is validated against its
// column before any mutation takes effect, so a malformed batch never
// partially applies.
func (m *memStore) WriteBatch(ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if _, err := m.column(op.Column); err != nil {
			return err
		}
	}
	for _, op := range ops {
		cf := m.columns[op.Column]
		if op.Delete {
			delete(cf, string(op.Key))
			continue
		}
		v := make([]byte, len(op.Value))
		copy(v, op.Value)
		cf[string(op.Key)] = v
	}
	return nil
}

func (m *memStore) Close() error { return nil }
