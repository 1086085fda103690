package audithandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"staffdesk/internal/domain/audit"
	"staffdesk/internal/domain/auth"
	"staffdesk/internal/platform/recordstore"
	"staffdesk/internal/platform/recordstore/memory"
	"staffdesk/internal/transport/http/middleware"
)

func newRouter(t *testing.T, role string) http.Handler {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	entries := []audit.Entry{
		{Key: "k1", StaffID: "s1", Type: "Removal", ReasonType: "Resign", Timestamp: "2024-03-01T10:00:00Z"},
		{Key: "k2", StaffID: "s1", Type: "Return", ReasonType: "Re-Join", Timestamp: "2024-03-05T18:30:00Z"},
		{Key: "k3", StaffID: "s2", Type: "Removal", ReasonType: "Absconder", Timestamp: "2024-03-09T08:00:00Z"},
	}
	updates := recordstore.Updates{}
	for _, e := range entries {
		updates[audit.Path(e.Key)] = e.Persisted()
	}
	if err := store.Update(context.Background(), updates); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", RoleName: role})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(audit.New(store)).RegisterRoutes(r)
	return r
}

func list(t *testing.T, h http.Handler, query string) (*httptest.ResponseRecorder, []audit.Entry) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/lifecycle"+query, nil))
	var body struct {
		Data []audit.Entry `json:"data"`
	}
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return rec, body.Data
}

func TestListLifecycleFilters(t *testing.T) {
	h := newRouter(t, auth.RoleAdmin)

	rec, entries := list(t, h, "?limit=2")
	if rec.Code != http.StatusOK || len(entries) != 2 || entries[0].Key != "k3" {
		t.Fatalf("unexpected first page: %d %+v", rec.Code, entries)
	}
	if rec.Header().Get("X-Total-Count") != "3" || rec.Header().Get("X-Next-Offset") != "2" {
		t.Fatalf("unexpected paging headers: %v", rec.Header())
	}

	_, entries = list(t, h, "?type=removal&staffId=s1")
	if len(entries) != 1 || entries[0].Key != "k1" {
		t.Fatalf("expected case-insensitive type filter, got %+v", entries)
	}

	_, entries = list(t, h, "?from=2024-03-02&to=2024-03-05")
	if len(entries) != 1 || entries[0].Key != "k2" {
		t.Fatalf("expected the whole to-day to be included, got %+v", entries)
	}
}

func TestListLifecycleRejectsBadQuery(t *testing.T) {
	h := newRouter(t, auth.RoleAdmin)
	tests := []string{
		"?type=Transfer",
		"?from=03/02/2024",
		"?from=2024-03-09&to=2024-03-01",
		"?staffId=a.b",
	}
	for _, query := range tests {
		rec, _ := list(t, h, query)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rec.Code)
		}
	}
}

func TestListLifecycleRequiresAuditPermission(t *testing.T) {
	rec, _ := list(t, newRouter(t, auth.RoleOperator), "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d", rec.Code)
	}
}
