package recordstore

import (
	"context"
	"log/slog"
	"reflect"
	"sort"
	"sync"
)

type EventType string

const (
	ChildAdded   EventType = "child_added"
	ChildChanged EventType = "child_changed"
	ChildRemoved EventType = "child_removed"
	ValueChanged EventType = "value"
)

// Event is one change seen by a subscription. For child events Node is the
// child (its previous value for ChildRemoved); for ValueChanged it is the
// subscribed node itself.
type Event struct {
	Type EventType `json:"type"`
	Path string    `json:"path"`
	Key  string    `json:"key"`
	Node Node      `json:"-"`
}

// ReadFunc loads the committed value at path.
type ReadFunc func(ctx context.Context, path string) (any, error)

// Hub fans committed changes out to subscriptions. Drivers call Notify after
// every commit; the hub re-reads each affected subscription and diffs it
// against what that subscription saw last, so listeners observe converged
// state even when notifications race.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: map[uint64]*subscription{}}
}

type subscription struct {
	id     uint64
	path   string
	fn     Listener
	last   any
	mu     sync.Mutex
	queue  []Event
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Add registers fn on path, delivering ChildAdded for existing children and
// then a ValueChanged event. Cancelling ctx unsubscribes.
func (h *Hub) Add(ctx context.Context, path string, fn Listener, read ReadFunc) (Unsubscribe, error) {
	path = Clean(path)
	if err := Validate(path); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	current, err := read(ctx, path)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	h.nextID++
	sub := &subscription{
		id:     h.nextID,
		path:   path,
		fn:     fn,
		last:   current,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	h.subs[sub.id] = sub
	initial := make([]Event, 0, 4)
	for _, child := range NewNode(path, Clone(current)).Children() {
		initial = append(initial, Event{Type: ChildAdded, Path: child.Path, Key: child.Key(), Node: child})
	}
	initial = append(initial, valueEvent(path, current))
	sub.enqueue(initial)
	h.mu.Unlock()

	go sub.run()

	unsubscribe := func() {
		h.mu.Lock()
		delete(h.subs, sub.id)
		h.mu.Unlock()
		sub.stop()
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				unsubscribe()
			case <-sub.done:
			}
		}()
	}
	return unsubscribe, nil
}

// Notify re-evaluates every subscription overlapping one of the changed paths.
func (h *Hub) Notify(ctx context.Context, changed []string, read ReadFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if !touches(sub.path, changed) {
			continue
		}
		current, err := read(ctx, sub.path)
		if err != nil {
			slog.Warn("recordstore listener refresh failed", "path", sub.path, "err", err)
			continue
		}
		events := diffChildren(sub.path, sub.last, current)
		if len(events) == 0 && reflect.DeepEqual(sub.last, current) {
			continue
		}
		sub.last = current
		sub.enqueue(append(events, valueEvent(sub.path, current)))
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = map[uint64]*subscription{}
	h.closed = true
	h.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
}

func touches(subPath string, changed []string) bool {
	for _, p := range changed {
		if Overlaps(subPath, p) {
			return true
		}
	}
	return false
}

func valueEvent(path string, value any) Event {
	node := NewNode(path, Clone(value))
	return Event{Type: ValueChanged, Path: node.Path, Key: node.Key(), Node: node}
}

func diffChildren(path string, before, after any) []Event {
	prev, _ := before.(map[string]any)
	cur, _ := after.(map[string]any)

	keys := make([]string, 0, len(prev)+len(cur))
	seen := map[string]struct{}{}
	for k := range prev {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	for k := range cur {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var removed, added, changed []Event
	for _, k := range keys {
		p, hadPrev := prev[k]
		c, hasCur := cur[k]
		childPath := Join(path, k)
		switch {
		case hadPrev && !hasCur:
			removed = append(removed, Event{Type: ChildRemoved, Path: childPath, Key: k, Node: NewNode(childPath, Clone(p))})
		case !hadPrev && hasCur:
			added = append(added, Event{Type: ChildAdded, Path: childPath, Key: k, Node: NewNode(childPath, Clone(c))})
		case !reflect.DeepEqual(p, c):
			changed = append(changed, Event{Type: ChildChanged, Path: childPath, Key: k, Node: NewNode(childPath, Clone(c))})
		}
	}
	out := make([]Event, 0, len(removed)+len(added)+len(changed))
	out = append(out, removed...)
	out = append(out, added...)
	return append(out, changed...)
}

func (s *subscription) enqueue(events []Event) {
	s.mu.Lock()
	s.queue = append(s.queue, events...)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			s.mu.Lock()
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				select {
				case <-s.done:
					return
				default:
				}
				s.fn(ev)
			}
		}
	}
}
