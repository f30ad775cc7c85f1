package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps entries in process memory. Contents are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	hub     *hub
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		hub:     newHub("store.memory"),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Value = append([]byte(nil), e.Value...)
	return e, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) (Entry, error) {
	m.mu.Lock()
	e := Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Version:   m.entries[key].Version + 1,
		UpdatedAt: m.now(),
	}
	m.entries[key] = e
	m.mu.Unlock()

	m.hub.publish(e)
	return e, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()

	if ok {
		m.hub.publish(Entry{Key: key, Version: e.Version, UpdatedAt: m.now(), Deleted: true})
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, prefix string) (<-chan Entry, error) {
	return m.hub.subscribe(ctx, prefix), nil
}

func (m *Memory) Close() error {
	m.hub.close()
	return nil
}
