// Package inflight rejects a second concurrent operation on the same key.
// The Redis guard spans every instance; the memory guard covers one process.
package inflight

import (
	"context"
	"errors"
	"sync"
)

var ErrHeld = errors.New("inflight: key already held")

type Guard interface {
	// Acquire claims key or fails with ErrHeld. The returned release is safe
	// to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: map[string]struct{}{}}
}

func (m *Memory) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, ErrHeld
	}
	m.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}
