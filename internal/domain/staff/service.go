package staff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"staffdesk/internal/domain/auth"
	"staffdesk/internal/platform/inflight"
	"staffdesk/internal/platform/recordstore"
)

// Observer receives lifecycle measurements. The metrics package implements it.
type Observer interface {
	TransitionFinished(kind EventType, outcome string, elapsed time.Duration)
	LockViolations(collection string, count int)
}

type noopObserver struct{}

func (noopObserver) TransitionFinished(EventType, string, time.Duration) {}
func (noopObserver) LockViolations(string, int)                          {}

// TransitionHook runs after a transition commits. Hooks must not block.
type TransitionHook func(ctx context.Context, t Transition)

type Service struct {
	store    recordstore.Store
	cipher   FieldCipher
	guard    inflight.Guard
	observer Observer
	hooks    []TransitionHook
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Service)

func WithCipher(c FieldCipher) Option { return func(s *Service) { s.cipher = c } }

func WithGuard(g inflight.Guard) Option { return func(s *Service) { s.guard = g } }

func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

func WithHooks(hooks ...TransitionHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, hooks...) }
}

// WithTransitionTimeout bounds a whole transition. Zero means the caller's
// context is the only limit.
func WithTransitionTimeout(d time.Duration) Option { return func(s *Service) { s.timeout = d } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store recordstore.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		guard:    inflight.NewMemory(),
		observer: noopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddHook registers a hook after construction; used while wiring jobs that
// themselves depend on the service.
func (s *Service) AddHook(hook TransitionHook) {
	s.hooks = append(s.hooks, hook)
}

func (s *Service) Store() recordstore.Store { return s.store }

func (s *Service) Get(ctx context.Context, actor auth.Actor, id string) (View, error) {
	if !actor.Can(auth.PermStaffRead) {
		return View{}, ErrForbidden
	}
	rec, loc, err := s.locate(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.view(actor, rec, loc), nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, loc Location) ([]Summary, error) {
	if !actor.Can(auth.PermStaffRead) {
		return nil, ErrForbidden
	}
	root := loc.Root()
	node, err := s.store.Read(ctx, root)
	if err != nil {
		return nil, &StoreError{Op: "read", Paths: []string{root}, Err: err}
	}
	children := node.Children()
	out := make([]Summary, 0, len(children))
	for _, child := range children {
		rec, err := decodeRecord(child)
		if err != nil {
			slog.Warn("staff record decode failed", "path", child.Path, "err", err)
			continue
		}
		out = append(out, summarize(rec, loc))
	}
	return out, nil
}

// Lifecycle returns the record's audit log in commit order.
func (s *Service) Lifecycle(ctx context.Context, actor auth.Actor, id string) ([]KeyedEvent, Location, error) {
	if !actor.Can(auth.PermStaffRead) {
		return nil, "", ErrForbidden
	}
	rec, loc, err := s.locate(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return OrderedEvents(rec), loc, nil
}

// OrderedEvents returns the record's lifecycle events sorted by push key.
func OrderedEvents(rec Record) []KeyedEvent {
	keys := make([]string, 0, len(rec.LifecycleAudit))
	for k := range rec.LifecycleAudit {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]KeyedEvent, 0, len(keys))
	for _, k := range keys {
		out = append(out, KeyedEvent{Key: k, LifecycleEvent: rec.LifecycleAudit[k]})
	}
	return out
}

// Create writes a new record at the Active location. Records normally come
// from an external onboarding flow; this exists for seeding and tests.
func (s *Service) Create(ctx context.Context, actor auth.Actor, rec Record) (string, error) {
	if !actor.Can(auth.PermStaffWrite) {
		return "", ErrForbidden
	}
	rec = rec.clone()
	rec.LifecycleAudit = nil
	rec.LastRemoval = nil
	rec.LastReturn = nil
	for i := range rec.Payments {
		rec.Payments[i].Locked = false
	}
	for i := range rec.WorkDetails {
		rec.WorkDetails[i].Locked = false
	}
	if res, section := ValidateAll(rec, s.now()); !res.OK {
		return "", &ValidationError{Section: section, Result: res}
	}

	root := LocationActive.Root()
	id, err := s.store.Push(ctx, root)
	if err != nil {
		return "", &StoreError{Op: "push", Paths: []string{root}, Err: err}
	}
	rec.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	rec.UpdatedBy = actor.ID
	doc, err := persisted(rec, s.cipher)
	if err != nil {
		return "", err
	}
	path := LocationActive.Path(id)
	if err := s.store.Update(ctx, recordstore.Updates{path: doc}); err != nil {
		return "", &StoreError{Op: "write", Paths: []string{path}, Err: err}
	}
	return id, nil
}

// Save updates a record in place at its current location. Locked payment and
// work rows are kept as stored; refused edits come back as violations.
// section is the tab the editor was on and wins as the tab to report when it
// fails itself.
func (s *Service) Save(ctx context.Context, actor auth.Actor, id string, incoming Record, section Section) (SaveResult, error) {
	if !actor.Can(auth.PermStaffWrite) {
		return SaveResult{}, ErrForbidden
	}
	if section != "" {
		if _, ok := ParseSection(string(section)); !ok {
			return SaveResult{}, &PreconditionError{Field: "section", Reason: fmt.Sprintf("%q is not a known section", section)}
		}
	}

	release, err := s.acquire(ctx, id)
	if err != nil {
		return SaveResult{}, err
	}
	defer release()

	stored, loc, err := s.locate(ctx, id)
	if err != nil {
		return SaveResult{}, err
	}

	merged := incoming.clone()
	merged.ID = id
	merged.LifecycleAudit = stored.LifecycleAudit
	merged.LastRemoval = stored.LastRemoval
	merged.LastReturn = stored.LastReturn
	if !actor.Can(auth.PermSensitiveUnlock) {
		keepSensitive(&merged, stored)
	}
	keepUnknown(&merged, stored)

	var paymentViolations, workViolations []LockViolation
	merged.Payments, paymentViolations = MergeLines(CollectionPayments, stored.Payments, incoming.Payments)
	merged.WorkDetails, workViolations = MergeLines(CollectionWorkDetails, stored.WorkDetails, incoming.WorkDetails)
	violations := append(paymentViolations, workViolations...)
	for _, v := range violations {
		slog.Warn("locked row edit refused", "staffId", id, "collection", v.Collection, "row", v.Row, "field", v.Field, "actorId", actor.ID)
	}
	if len(paymentViolations) > 0 {
		s.observer.LockViolations(CollectionPayments, len(paymentViolations))
	}
	if len(workViolations) > 0 {
		s.observer.LockViolations(CollectionWorkDetails, len(workViolations))
	}

	now := s.now()
	if res, first := ValidateAll(merged, now); !res.OK {
		tab := first
		if section != "" && !ValidateSection(merged, section, now).OK {
			tab = section
		}
		return SaveResult{}, &ValidationError{Section: tab, Result: res}
	}

	merged.UpdatedAt = now.UTC().Format(time.RFC3339)
	merged.UpdatedBy = actor.ID
	doc, err := persisted(merged, s.cipher)
	if err != nil {
		return SaveResult{}, err
	}
	path := loc.Path(id)
	if err := s.store.Update(ctx, recordstore.Updates{path: doc}); err != nil {
		return SaveResult{}, &StoreError{Op: "write", Paths: []string{path}, Err: err}
	}
	return SaveResult{View: s.view(actor, merged, loc), Violations: violations}, nil
}

// Draft prepares an unsaved edit for validation the way Save would see it.
// Rows locked in the stored record stay locked and are skipped; every other
// submitted row is checked. An unknown id is validated as a new record.
func (s *Service) Draft(ctx context.Context, actor auth.Actor, id string, incoming Record) (Record, error) {
	if !actor.Can(auth.PermStaffRead) {
		return Record{}, ErrForbidden
	}
	stored, _, err := s.locate(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}
	draft := incoming.clone()
	draft.Payments, _ = MergeLines(CollectionPayments, stored.Payments, incoming.Payments)
	draft.WorkDetails, _ = MergeLines(CollectionWorkDetails, stored.WorkDetails, incoming.WorkDetails)
	return draft, nil
}

// Duplicates lists ids present in both locations, left behind by a
// non-atomic move that failed halfway.
func (s *Service) Duplicates(ctx context.Context) ([]string, error) {
	active, err := s.store.Read(ctx, LocationActive.Root())
	if err != nil {
		return nil, &StoreError{Op: "read", Paths: []string{LocationActive.Root()}, Err: err}
	}
	exited, err := s.store.Read(ctx, LocationExited.Root())
	if err != nil {
		return nil, &StoreError{Op: "read", Paths: []string{LocationExited.Root()}, Err: err}
	}
	var out []string
	for _, child := range active.Children() {
		if exited.Child(child.Key()).Exists() {
			out = append(out, child.Key())
		}
	}
	return out, nil
}

// Resolve deletes the copy of a duplicated record that is not kept.
func (s *Service) Resolve(ctx context.Context, actor auth.Actor, id string, keep Location) error {
	if !actor.Can(auth.PermStaffReconcile) {
		return ErrForbidden
	}
	if !keep.Valid() {
		return &PreconditionError{Field: "keep", Reason: "must be active or exited"}
	}
	if err := recordstore.ValidateKey(id); err != nil {
		return ErrNotFound
	}
	release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	for _, loc := range []Location{LocationActive, LocationExited} {
		node, err := s.store.Read(ctx, loc.Path(id))
		if err != nil {
			return &StoreError{Op: "read", Paths: []string{loc.Path(id)}, Err: err}
		}
		if !node.Exists() {
			return ErrNotDuplicated
		}
	}
	drop := keep.Other().Path(id)
	if err := s.store.Update(ctx, recordstore.Updates{drop: nil}); err != nil {
		return &StoreError{Op: "write", Paths: []string{drop}, Err: err}
	}
	slog.Info("duplicate staff record resolved", "staffId", id, "kept", keep, "actorId", actor.ID)
	return nil
}

// Change is a list-level notification for one record.
type Change struct {
	Type     recordstore.EventType `json:"type"`
	ID       string                `json:"id"`
	Location Location              `json:"location"`
	Summary  *Summary              `json:"summary,omitempty"`
}

// Watch streams child changes of one location as summaries.
func (s *Service) Watch(ctx context.Context, actor auth.Actor, loc Location, fn func(Change)) (recordstore.Unsubscribe, error) {
	if !actor.Can(auth.PermStaffRead) {
		return nil, ErrForbidden
	}
	return s.store.Subscribe(ctx, loc.Root(), func(ev recordstore.Event) {
		if ev.Type == recordstore.ValueChanged {
			return
		}
		change := Change{Type: ev.Type, ID: ev.Key, Location: loc}
		if ev.Type != recordstore.ChildRemoved {
			rec, err := decodeRecord(ev.Node)
			if err != nil {
				slog.Warn("staff change decode failed", "path", ev.Path, "err", err)
				return
			}
			summary := summarize(rec, loc)
			change.Summary = &summary
		}
		fn(change)
	})
}

func (s *Service) acquire(ctx context.Context, id string) (func(), error) {
	release, err := s.guard.Acquire(ctx, id)
	if errors.Is(err, inflight.ErrHeld) {
		return nil, ErrTransitionInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("in-flight guard: %w", err)
	}
	return release, nil
}

func (s *Service) locate(ctx context.Context, id string) (Record, Location, error) {
	if err := recordstore.ValidateKey(id); err != nil {
		return Record{}, "", ErrNotFound
	}
	for _, loc := range []Location{LocationActive, LocationExited} {
		path := loc.Path(id)
		node, err := s.store.Read(ctx, path)
		if err != nil {
			return Record{}, "", &StoreError{Op: "read", Paths: []string{path}, Err: err}
		}
		if !node.Exists() {
			continue
		}
		rec, err := decodeRecord(node)
		if err != nil {
			return Record{}, "", err
		}
		if err := unseal(&rec, s.cipher); err != nil {
			return Record{}, "", err
		}
		return rec, loc, nil
	}
	return Record{}, "", ErrNotFound
}

func (s *Service) view(actor auth.Actor, rec Record, loc Location) View {
	rec = OpenForEdit(rec)
	masked := !actor.Can(auth.PermSensitiveUnlock)
	if masked {
		maskSensitive(&rec)
	}
	return View{Record: rec, Location: loc, SensitiveMasked: masked}
}
