package auth

import (
	"context"
	"errors"
	"testing"

	"staffdesk/internal/platform/recordstore/memory"
)

func TestEnsureOperatorAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewStore(memory.New()))

	id, created, err := svc.EnsureOperator(ctx, "admin@example.com", "pa55word", "Admin", RoleSuperAdmin)
	if err != nil || !created || id == "" {
		t.Fatalf("ensure operator: id=%q created=%v err=%v", id, created, err)
	}
	again, created, err := svc.EnsureOperator(ctx, "ADMIN@example.com", "other", "", RoleViewer)
	if err != nil || created || again != id {
		t.Fatalf("expected existing operator, got id=%q created=%v err=%v", again, created, err)
	}

	op, err := svc.Authenticate(ctx, "admin@example.com", "pa55word")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if op.ID != id || op.Role != RoleSuperAdmin {
		t.Fatalf("unexpected operator: %+v", op)
	}
	stored, err := svc.Store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.LastLogin == "" {
		t.Fatal("expected last login to be recorded")
	}

	if _, err := svc.Authenticate(ctx, "admin@example.com", "nope"); !errors.Is(err, ErrInvalidLogin) {
		t.Fatalf("expected invalid login, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "missing@example.com", "pa55word"); !errors.Is(err, ErrInvalidLogin) {
		t.Fatalf("expected invalid login for unknown email, got %v", err)
	}
}

func TestEnsureOperatorSkipsBlankAndRejectsUnknownRole(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewStore(memory.New()))
	if _, created, err := svc.EnsureOperator(ctx, "", "", "", RoleAdmin); err != nil || created {
		t.Fatalf("blank seed should be skipped, got created=%v err=%v", created, err)
	}
	if _, _, err := svc.EnsureOperator(ctx, "a@example.com", "x", "", "Root"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
}
