package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"staffdesk/internal/domain/audit"
	"staffdesk/internal/domain/auth"
	"staffdesk/internal/platform/recordstore"
	"staffdesk/internal/platform/requestctx"
)

const (
	outcomeCommitted  = "committed"
	outcomeRejected   = "rejected"
	outcomeFailed     = "failed"
	outcomeReconcile  = "reconcile"
	outcomeTimedOut   = "timeout"
	outcomeInProgress = "in_flight"
)

// RequestRemoval moves an Active record to Exited.
func (s *Service) RequestRemoval(ctx context.Context, actor auth.Actor, id, reasonType, comment string) (Transition, error) {
	return s.transition(ctx, actor, id, EventRemoval, reasonType, comment)
}

// RequestReturn moves an Exited record back to Active.
func (s *Service) RequestReturn(ctx context.Context, actor auth.Actor, id, reasonType, comment string) (Transition, error) {
	return s.transition(ctx, actor, id, EventReturn, reasonType, comment)
}

func permissionFor(kind EventType) string {
	if kind == EventRemoval {
		return auth.PermStaffExit
	}
	return auth.PermStaffReturn
}

// checkPreconditions runs before anything touches the store.
func checkPreconditions(kind EventType, reasonType, comment string) (string, string, error) {
	if strings.TrimSpace(reasonType) == "" {
		return "", "", &PreconditionError{Field: "reasonType", Reason: "a reason must be selected"}
	}
	reason, ok := CanonicalReason(kind, reasonType)
	if !ok {
		return "", "", &PreconditionError{
			Field:  "reasonType",
			Reason: fmt.Sprintf("must be one of %s", strings.Join(reasonsFor(kind), ", ")),
		}
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return "", "", &PreconditionError{Field: "comment", Reason: "a comment is required"}
	}
	return reason, comment, nil
}

type moveResult struct {
	transition Transition
	err        error
}

func (s *Service) transition(ctx context.Context, actor auth.Actor, id string, kind EventType, reasonType, comment string) (Transition, error) {
	started := s.now()
	if !actor.Can(permissionFor(kind)) {
		return Transition{}, ErrForbidden
	}
	reason, comment, err := checkPreconditions(kind, reasonType, comment)
	if err != nil {
		s.observer.TransitionFinished(kind, outcomeRejected, 0)
		return Transition{}, err
	}

	release, err := s.acquire(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTransitionInFlight) {
			s.observer.TransitionFinished(kind, outcomeInProgress, 0)
		}
		return Transition{}, err
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	// The guard stays held until the move itself returns, even when the
	// caller has already been told it timed out. claimed decides who owns the
	// result: if the caller gave up first, a move that still commits runs the
	// hooks from here.
	var claimed atomic.Bool
	done := make(chan moveResult, 1)
	go func() {
		defer release()
		t, err := s.move(runCtx, actor, id, kind, reason, comment)
		if claimed.CompareAndSwap(false, true) {
			done <- moveResult{transition: t, err: err}
			return
		}
		if err == nil {
			requestctx.Logger(ctx).Warn("staff transition committed after caller gave up", "staffId", id, "type", kind, "eventKey", t.EventKey)
			s.runHooks(ctx, t)
		}
	}()

	var res moveResult
	select {
	case res = <-done:
	case <-runCtx.Done():
		if claimed.CompareAndSwap(false, true) {
			res.err = runCtx.Err()
		} else {
			res = <-done
		}
	}
	if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
		res.err = fmt.Errorf("%w: %s", ErrTransitionTimeout, id)
	}

	elapsed := s.now().Sub(started)
	if res.err != nil {
		outcome := outcomeFailed
		var validation *ValidationError
		var reconcile *ReconcileError
		switch {
		case errors.As(res.err, &validation), errors.Is(res.err, ErrWrongLocation), errors.Is(res.err, ErrNotFound):
			outcome = outcomeRejected
		case errors.As(res.err, &reconcile):
			outcome = outcomeReconcile
		case errors.Is(res.err, ErrTransitionTimeout):
			outcome = outcomeTimedOut
		}
		s.observer.TransitionFinished(kind, outcome, elapsed)
		requestctx.Logger(ctx).Warn("staff transition failed", "staffId", id, "type", kind, "outcome", outcome, "err", res.err)
		return Transition{}, res.err
	}

	s.observer.TransitionFinished(kind, outcomeCommitted, elapsed)
	requestctx.Logger(ctx).Info("staff transition committed", "staffId", id, "type", kind, "reasonType", reason, "eventKey", res.transition.EventKey, "actorId", actor.ID)
	s.runHooks(ctx, res.transition)
	return res.transition, nil
}

func (s *Service) runHooks(ctx context.Context, t Transition) {
	hookCtx := context.WithoutCancel(ctx)
	for _, hook := range s.hooks {
		hook(hookCtx, t)
	}
}

func (s *Service) move(ctx context.Context, actor auth.Actor, id string, kind EventType, reason, comment string) (Transition, error) {
	from := LocationActive
	if kind == EventReturn {
		from = LocationExited
	}
	to := from.Other()
	src, dst := from.Path(id), to.Path(id)

	if err := recordstore.ValidateKey(id); err != nil {
		return Transition{}, ErrNotFound
	}
	node, err := s.store.Read(ctx, src)
	if err != nil {
		return Transition{}, &StoreError{Op: "read", Paths: []string{src}, Err: err}
	}
	if !node.Exists() {
		other, err := s.store.Read(ctx, dst)
		if err != nil {
			return Transition{}, &StoreError{Op: "read", Paths: []string{dst}, Err: err}
		}
		if other.Exists() {
			return Transition{}, fmt.Errorf("%w: %s is %s", ErrWrongLocation, id, to)
		}
		return Transition{}, ErrNotFound
	}

	rec, err := decodeRecord(node)
	if err != nil {
		return Transition{}, err
	}
	if err := unseal(&rec, s.cipher); err != nil {
		return Transition{}, err
	}
	rec.Payments = DeriveLocks(rec.Payments)
	rec.WorkDetails = DeriveLocks(rec.WorkDetails)
	now := s.now()
	if res, section := ValidateAll(rec, now); !res.OK {
		return Transition{}, &ValidationError{Section: section, Result: res}
	}

	key, err := s.store.Push(ctx, audit.FeedPath)
	if err != nil {
		return Transition{}, &StoreError{Op: "push", Paths: []string{audit.FeedPath}, Err: err}
	}
	stamp := now.UTC().Format(time.RFC3339)
	event := LifecycleEvent{
		Type:       kind,
		ReasonType: reason,
		Comment:    comment,
		Actor:      ActorRef{ID: actor.ID, DisplayName: actor.DisplayName, Role: actor.Role},
		Timestamp:  stamp,
	}
	audits := make(map[string]LifecycleEvent, len(rec.LifecycleAudit)+1)
	for k, v := range rec.LifecycleAudit {
		audits[k] = v
	}
	audits[key] = event
	rec.LifecycleAudit = audits
	info := &TransitionInfo{EventKey: key, ReasonType: reason, Comment: comment, By: actor.DisplayName, At: stamp}
	if kind == EventRemoval {
		rec.LastRemoval = info
	} else {
		rec.LastReturn = info
	}
	rec.UpdatedAt = stamp
	rec.UpdatedBy = actor.ID

	doc, err := persisted(rec, s.cipher)
	if err != nil {
		return Transition{}, err
	}
	entry := audit.Entry{
		StaffID:    id,
		IDNo:       rec.IDNo,
		Name:       rec.FullName(),
		Type:       string(kind),
		ReasonType: reason,
		Comment:    comment,
		Actor:      audit.Actor{ID: actor.ID, DisplayName: actor.DisplayName, Role: actor.Role},
		Timestamp:  stamp,
		From:       string(from),
		To:         string(to),
	}

	if recordstore.IsTransactional(s.store) {
		updates := recordstore.Updates{src: nil, dst: doc, audit.Path(key): entry.Persisted()}
		if err := s.store.Update(ctx, updates); err != nil {
			return Transition{}, &StoreError{Op: "move", Paths: updates.Paths(), Err: err}
		}
	} else if err := s.moveStepwise(ctx, src, dst, doc, key, entry); err != nil {
		return Transition{}, err
	}

	doc.ID = id
	return Transition{StaffID: id, EventKey: key, Event: event, From: from, To: to, Record: doc}, nil
}

// moveStepwise is used when the store cannot apply a multi-path update as
// one unit. The destination is written and confirmed before the source is
// removed, so a failure can leave a duplicate but never lose the record.
func (s *Service) moveStepwise(ctx context.Context, src, dst string, doc Record, key string, entry audit.Entry) error {
	if err := s.store.Update(ctx, recordstore.Updates{dst: doc}); err != nil {
		return &StoreError{Op: "write", Paths: []string{dst}, Err: err}
	}
	check, err := s.store.Read(ctx, dst)
	if err != nil {
		return &ReconcileError{Stage: StageVerify, Source: src, Destination: dst, Err: err}
	}
	if !check.Exists() {
		return &ReconcileError{Stage: StageVerify, Source: src, Destination: dst, Err: errors.New("destination missing after write")}
	}
	feed := audit.Path(key)
	if err := s.store.Update(ctx, recordstore.Updates{feed: entry.Persisted()}); err != nil {
		requestctx.Logger(ctx).Warn("lifecycle feed write failed", "path", feed, "err", err)
	}
	if err := s.store.Update(ctx, recordstore.Updates{src: nil}); err != nil {
		return &ReconcileError{Stage: StageDeleteSource, Source: src, Destination: dst, Err: err}
	}
	return nil
}
