package kv

import (
	"context"
	"sort"
	"sync"

	"storefront/internal/domain"
)

// Memory is a process-local Backend.
type Memory struct {
	mu      sync.Mutex
	entries map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, session, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[session][key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(raw), nil
}

func (m *Memory) Save(_ context.Context, session, key string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(session, key, raw)
	return nil
}

func (m *Memory) Remove(_ context.Context, session, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(session, key)
	return nil
}

func (m *Memory) Modify(_ context.Context, session, key string, fn func(raw []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current []byte
	if raw, ok := m.entries[session][key]; ok {
		current = clone(raw)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		m.remove(session, key)
		return nil
	}
	m.put(session, key, next)
	return nil
}

func (m *Memory) Sessions(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for session, values := range m.entries {
		if _, ok := values[key]; ok {
			out = append(out, session)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) put(session, key string, raw []byte) {
	values, ok := m.entries[session]
	if !ok {
		values = make(map[string][]byte)
		m.entries[session] = values
	}
	values[key] = clone(raw)
}

func (m *Memory) remove(session, key string) {
	values, ok := m.entries[session]
	if !ok {
		return
	}
	delete(values, key)
	if len(values) == 0 {
		delete(m.entries, session)
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
