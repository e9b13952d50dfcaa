package tokenstore

import (
	"context"
	"maps"
	"sync"
)

// MemoryBackend keeps values in process memory. Several Stores sharing one
// MemoryBackend behave like browser tabs sharing localStorage.
//
// Events are delivered synchronously, after the batch is applied and in
// subscription order.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
	subs   subscribers
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.values), nil
}

func (m *MemoryBackend) Apply(ctx context.Context, set map[string]string, del []string, origin string) error {
	return m.ApplyIf(ctx, nil, set, del, origin)
}

func (m *MemoryBackend) ApplyIf(ctx context.Context, want, set map[string]string, del []string, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if !satisfies(m.values, want) {
		m.mu.Unlock()
		return ErrPreconditionFailed
	}
	next := applyTo(m.values, set, del)
	keys := changedKeys(m.values, next)
	m.values = next
	fns := m.subs.snapshot()
	m.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}
	ev := Event{Origin: origin, Keys: keys}
	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

func (m *MemoryBackend) Subscribe(fn func(Event)) (func(), error) {
	m.mu.Lock()
	id := m.subs.add(fn)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.subs.remove(id)
			m.mu.Unlock()
		})
	}, nil
}

// Set writes a raw value, bypassing the Store. Tests use it to plant
// corrupted data.
func (m *MemoryBackend) Set(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
}

func (m *MemoryBackend) Close() error { return nil }
