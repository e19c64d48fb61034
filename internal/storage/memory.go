package storage

import (
	"context"
	"sort"
	"sync"
)

type memoryBackend struct {
	mu      sync.RWMutex
	values  map[string][]byte
	streams map[string][][]byte
}

// NewMemory creates a concurrency-safe in-memory backend useful for tests and
// single-process development.
func NewMemory() Backend {
	return &memoryBackend{
		values:  make(map[string][]byte),
		streams: make(map[string][][]byte),
	}
}

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *memoryBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = clone(value)
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memoryBackend) Append(_ context.Context, stream string, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[stream] = append(m.streams[stream], clone(record))
	return nil
}

func (m *memoryBackend) Records(_ context.Context, stream string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.streams[stream]
	out := make([][]byte, len(records))
	for i, r := range records {
		out[i] = clone(r)
	}
	return out, nil
}

func (m *memoryBackend) Streams(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.streams))
	for name, records := range m.streams {
		if len(records) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
