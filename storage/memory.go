package storage

import (
	"bytes"
	"sort"
	"sync"
)

// Memory is a Storage kept entirely in process memory. Namespaces
// without a storage path run on it, as do tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Read returns the value of key, or (nil, nil) when absent.
func (m *Memory) Read(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Write applies a batch.
func (m *Memory) Write(updates *UpdatesCollection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range updates.puts {
		m.data[string(p.key)] = p.value
	}
	for _, k := range updates.deletes {
		delete(m.data, string(k))
	}
	return nil
}

// Iterate walks keys with the prefix in ascending order.
func (m *Memory) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	for _, k := range keys {
		m.mu.RLock()
		v, ok := m.data[k]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
