// Package memory is an in-process record store. It backs tests and single-node
// development setups; data does not survive a restart.
package memory

import (
	"context"
	"sync"

	"staffdesk/internal/platform/recordstore"
)

type Store struct {
	mu            sync.RWMutex
	root          any
	hub           *recordstore.Hub
	transactional bool
}

type Option func(*Store)

// WithoutTransactions makes the store report itself as non-transactional, so
// callers take their insert-verify-delete path.
func WithoutTransactions() Option {
	return func(s *Store) {
		s.transactional = false
	}
}

func New(opts ...Option) *Store {
	s := &Store{hub: recordstore.NewHub(), transactional: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Transactional() bool {
	return s.transactional
}

func (s *Store) Read(ctx context.Context, path string) (recordstore.Node, error) {
	if err := recordstore.Validate(path); err != nil {
		return recordstore.Node{}, err
	}
	value, err := s.read(ctx, path)
	if err != nil {
		return recordstore.Node{}, err
	}
	return recordstore.NewNode(path, value), nil
}

func (s *Store) read(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return recordstore.Clone(recordstore.Lookup(s.root, path)), nil
}

func (s *Store) Subscribe(ctx context.Context, path string, fn recordstore.Listener) (recordstore.Unsubscribe, error) {
	return s.hub.Add(ctx, path, fn, s.read)
}

func (s *Store) Update(ctx context.Context, updates recordstore.Updates) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := updates.Normalize()
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return nil
	}

	s.mu.Lock()
	for path, value := range normalized {
		s.root = recordstore.SetPath(s.root, path, value)
	}
	s.mu.Unlock()

	s.hub.Notify(context.WithoutCancel(ctx), updates.Paths(), s.read)
	return nil
}

func (s *Store) Push(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := recordstore.Validate(path); err != nil {
		return "", err
	}
	return recordstore.NewPushKey()
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}
