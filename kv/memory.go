package kv

import "sync"

// Memory is an in-memory Store for tests and ephemeral sessions.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
	notifier

	// FailWrites makes Set and Remove return this error, for failover tests.
	FailWrites error
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	if m.FailWrites != nil {
		err := m.FailWrites
		m.mu.Unlock()
		return err
	}
	old := m.data[key]
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	m.notify(Change{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	if m.FailWrites != nil {
		err := m.FailWrites
		m.mu.Unlock()
		return err
	}
	old, ok := m.data[key]
	delete(m.data, key)
	m.mu.Unlock()
	if ok {
		m.notify(Change{Key: key, OldValue: old})
	}
	return nil
}

func (m *Memory) Subscribe(fn func(Change)) func() {
	return m.subscribe(fn)
}

func (m *Memory) Close() error { return nil }
