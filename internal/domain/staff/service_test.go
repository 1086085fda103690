package staff

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"staffdesk/internal/domain/auth"
	"staffdesk/internal/platform/crypto"
	"staffdesk/internal/platform/recordstore"
	"staffdesk/internal/platform/recordstore/memory"
)

func adminActor() auth.Actor {
	return auth.UserContext{UserID: "a1", DisplayName: "Admin One", RoleName: auth.RoleAdmin}.Actor()
}

func TestLockedPaymentSurvivesSave(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	obs := &observed{}
	svc := newTestService(t, store, WithObserver(obs))
	rec := asha()
	rec.Payments = []PaymentEntry{filledPayment("500")}
	id := seedRecord(t, svc, rec)

	view, err := svc.Get(ctx, adminActor(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !view.Record.Payments[0].Locked || len(view.Record.WorkDetails) != 1 {
		t.Fatalf("expected locked payment and a blank work row: %+v", view.Record)
	}

	edited := view.Record
	edited.Payments[0].Amount = "600"
	edited.Payments = append(edited.Payments, filledPayment("700"))
	res, err := svc.Save(ctx, adminActor(), id, edited, SectionPayment)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Field != "amount" {
		t.Fatalf("expected amount violation, got %+v", res.Violations)
	}
	if obs.locks != 1 {
		t.Fatalf("expected one lock violation observed, got %d", obs.locks)
	}

	view, err = svc.Get(ctx, adminActor(), id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := view.Record.Payments
	if len(got) != 2 || got[0].Amount != "500" || got[1].Amount != "700" || !got[1].Locked {
		t.Fatalf("unexpected payments after reload: %+v", got)
	}
	node, _ := store.Read(ctx, LocationActive.Path(id)+"/payments/0/locked")
	if node.Exists() {
		t.Fatal("lock flag must not be persisted")
	}
}

func TestSaveReportsTab(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memory.New())
	id := seedRecord(t, svc, asha())

	bad := asha()
	bad.PresentAddress.Pincode = "12"
	bad.Payments = []PaymentEntry{filledPayment("9999999")}

	_, err := svc.Save(ctx, adminActor(), id, bad, SectionPayment)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Section != SectionPayment || len(verr.Result.Issues) != 2 {
		t.Fatalf("expected payment tab with both issues, got %v", err)
	}
	_, err = svc.Save(ctx, adminActor(), id, bad, SectionBasic)
	if !errors.As(err, &verr) || verr.Section != SectionAddress {
		t.Fatalf("expected first failing tab, got %v", err)
	}
	_, err = svc.Save(ctx, adminActor(), id, bad, Section("bank"))
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected unknown section to be rejected, got %v", err)
	}
	viewer := auth.UserContext{UserID: "v", RoleName: auth.RoleViewer}.Actor()
	if _, err := svc.Save(ctx, viewer, id, asha(), ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSaveKeepsServerOwnedFields(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestService(t, store)
	id := seedRecord(t, svc, asha())
	if _, err := svc.RequestRemoval(ctx, auth.SystemActor(), id, "Resign", "moving"); err != nil {
		t.Fatalf("removal: %v", err)
	}

	incoming := asha()
	incoming.Designation = "Supervisor"
	incoming.LifecycleAudit = map[string]LifecycleEvent{"forged": {Type: EventReturn}}
	res, err := svc.Save(ctx, adminActor(), id, incoming, "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Location != LocationExited || res.Record.Designation != "Supervisor" {
		t.Fatalf("unexpected save result: %+v", res.View)
	}
	if _, forged := res.Record.LifecycleAudit["forged"]; forged || len(res.Record.LifecycleAudit) != 1 {
		t.Fatalf("lifecycle audit was overwritten: %+v", res.Record.LifecycleAudit)
	}
	if res.Record.LastRemoval == nil || res.Record.UpdatedBy != "a1" {
		t.Fatalf("server fields missing: %+v", res.Record)
	}
	if exists(t, store, LocationActive.Path(id)) {
		t.Fatal("save must not write to the other location")
	}
}

func TestSensitiveFieldsSealedAndMasked(t *testing.T) {
	ctx := context.Background()
	cipher, err := crypto.New("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	store := memory.New()
	svc := newTestService(t, store, WithCipher(cipher))
	rec := asha()
	rec.AadhaarNo = "123412341234"
	rec.Salary = "15000"
	rec.Bank.AccountNumber = "0011223344"
	id := seedRecord(t, svc, rec)

	raw, err := store.Read(ctx, LocationActive.Path(id)+"/aadhaarNo")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v, _ := raw.Value().(string); !strings.HasPrefix(v, crypto.SealedPrefix) {
		t.Fatalf("expected sealed value at rest, got %v", raw.Value())
	}

	view, err := svc.Get(ctx, adminActor(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !view.SensitiveMasked || view.Record.AadhaarNo != "" || view.Record.Salary != "" {
		t.Fatalf("expected masked view, got %+v", view)
	}
	view.Record.Designation = "Guard"
	if _, err := svc.Save(ctx, adminActor(), id, view.Record, SectionBasic); err != nil {
		t.Fatalf("save: %v", err)
	}

	full, err := svc.Get(ctx, auth.SystemActor(), id)
	if err != nil {
		t.Fatalf("get full: %v", err)
	}
	if full.SensitiveMasked || full.Record.AadhaarNo != "123412341234" || full.Record.Bank.AccountNumber != "0011223344" {
		t.Fatalf("sensitive fields lost on masked save: %+v", full.Record)
	}
	if full.Record.Designation != "Guard" {
		t.Fatalf("save did not apply: %+v", full.Record)
	}

	plain := newTestService(t, store)
	if _, err := plain.Get(ctx, auth.SystemActor(), id); !errors.Is(err, crypto.ErrNotConfigured) {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, memory.New())
	if _, err := svc.Create(ctx, auth.SystemActor(), Record{MobileNo: "1"}); err == nil {
		t.Fatal("expected invalid record to be rejected")
	}
	a := seedRecord(t, svc, asha())
	b := seedRecord(t, svc, Record{IDNo: "E200", FirstName: "Ravi", LastName: "Kumar"})
	if _, err := svc.RequestRemoval(ctx, auth.SystemActor(), b, "Resign", "x"); err != nil {
		t.Fatalf("removal: %v", err)
	}

	active, err := svc.List(ctx, adminActor(), LocationActive)
	if err != nil || len(active) != 1 || active[0].ID != a || active[0].Name != "Asha" {
		t.Fatalf("unexpected active list: %+v %v", active, err)
	}
	exited, err := svc.List(ctx, adminActor(), LocationExited)
	if err != nil || len(exited) != 1 || exited[0].Name != "Ravi Kumar" || exited[0].LastRemoval == nil {
		t.Fatalf("unexpected exited list: %+v %v", exited, err)
	}
	if _, err := svc.List(ctx, auth.Actor{}, LocationActive); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestWatchStreamsChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService(t, memory.New())
	changes := make(chan Change, 16)
	unsubscribe, err := svc.Watch(ctx, adminActor(), LocationActive, func(c Change) { changes <- c })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer unsubscribe()

	id := seedRecord(t, svc, asha())
	next := func() Change {
		t.Helper()
		select {
		case c := <-changes:
			return c
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for change")
		}
		return Change{}
	}
	added := next()
	if added.Type != recordstore.ChildAdded || added.ID != id || added.Summary == nil || added.Summary.IDNo != "E100" {
		t.Fatalf("unexpected change: %+v", added)
	}
	if _, err := svc.RequestRemoval(ctx, auth.SystemActor(), id, "Resign", "x"); err != nil {
		t.Fatalf("removal: %v", err)
	}
	removed := next()
	if removed.Type != recordstore.ChildRemoved || removed.ID != id || removed.Summary != nil {
		t.Fatalf("unexpected change: %+v", removed)
	}
}
