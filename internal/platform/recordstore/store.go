// Package recordstore is the contract the staff core uses to talk to the
// tree-structured record database: point reads, child listeners, multi-path
// updates and push keys. Drivers live in the memory, sqlite and postgres
// subpackages.
package recordstore

import (
	"context"
	"errors"
)

var (
	ErrInvalidPath     = errors.New("recordstore: invalid path")
	ErrOverlappingPath = errors.New("recordstore: update paths overlap")
	ErrClosed          = errors.New("recordstore: store closed")
)

// Updates maps a slash separated path to the value written there. A nil value
// deletes the path and everything below it.
type Updates map[string]any

// Listener receives events for one subscription, in commit order.
type Listener func(Event)

// Unsubscribe stops a subscription. Safe to call more than once.
type Unsubscribe func()

type Store interface {
	Read(ctx context.Context, path string) (Node, error)
	Subscribe(ctx context.Context, path string, fn Listener) (Unsubscribe, error)
	// Update applies every entry of updates. Transactional drivers apply them
	// as one unit; see IsTransactional.
	Update(ctx context.Context, updates Updates) error
	Push(ctx context.Context, path string) (string, error)
}

// IsTransactional reports whether s applies a multi-path Update all at once.
// Stores that do not declare it are treated as non-transactional.
func IsTransactional(s Store) bool {
	t, ok := s.(interface{ Transactional() bool })
	return ok && t.Transactional()
}

// Paths returns the cleaned paths of u in sorted order.
func (u Updates) Paths() []string {
	out := make([]string, 0, len(u))
	for p := range u {
		out = append(out, Clean(p))
	}
	sortStrings(out)
	return out
}

// Normalize validates every path, rejects overlapping paths and converts
// values into plain JSON trees.
func (u Updates) Normalize() (map[string]any, error) {
	out := make(map[string]any, len(u))
	for raw, value := range u {
		p := Clean(raw)
		if err := Validate(p); err != nil {
			return nil, err
		}
		if _, dup := out[p]; dup {
			return nil, ErrOverlappingPath
		}
		norm, err := normalize(value)
		if err != nil {
			return nil, err
		}
		out[p] = norm
	}
	paths := make([]string, 0, len(out))
	for p := range out {
		paths = append(paths, p)
	}
	for i := range paths {
		for j := range paths {
			if i != j && IsAncestor(paths[i], paths[j]) {
				return nil, ErrOverlappingPath
			}
		}
	}
	return out, nil
}
