package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"staffdesk/internal/domain/auth"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func loginRequest(email, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"`+email+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remote
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitKeysByActorBeforeIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())
	userCtx := WithUser(context.Background(), auth.UserContext{UserID: "user-1"})

	first := httptest.NewRequest(http.MethodPost, "/api/v1/staff/s1/removal", nil).WithContext(userCtx)
	first.RemoteAddr = "198.51.100.11:2222"
	if rec := serve(limited, first); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/staff/s2/return", nil).WithContext(userCtx)
	second.RemoteAddr = "198.51.100.12:3333"
	if rec := serve(limited, second); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected same actor from another address to be throttled, got %d", rec.Code)
	}
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	if rec := serve(limited, loginRequest("a@example.com", "203.0.113.10:4444")); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	if rec := serve(limited, loginRequest("b@example.com", "203.0.113.10:5555")); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request from the same ip to be throttled, got %d", rec.Code)
	}

	forwarded := loginRequest("c@example.com", "10.0.0.1:1")
	forwarded.Header.Set("X-Forwarded-For", "198.51.100.99, 10.0.0.1")
	if rec := serve(limited, forwarded); rec.Code != http.StatusNoContent {
		t.Fatalf("expected forwarded client to get its own window, got %d", rec.Code)
	}
}

func TestRateLimitWindowResetsAndSweeps(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	rl := newRateLimiter(1, time.Minute, clientIPKey, WithClock(clock.Now))
	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.enforce(w, r) {
			w.WriteHeader(http.StatusNoContent)
		}
	})

	if rec := serve(limited, loginRequest("a@example.com", "192.0.2.20:1111")); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	serve(limited, loginRequest("a@example.com", "192.0.2.21:1111"))
	rec := serve(limited, loginRequest("a@example.com", "192.0.2.20:1111"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected retry headers: %v", rec.Header())
	}

	clock.Advance(61 * time.Second)
	if rec := serve(limited, loginRequest("a@example.com", "192.0.2.20:1111")); rec.Code != http.StatusNoContent {
		t.Fatalf("expected request after the window to pass, got %d", rec.Code)
	}
	if got := rl.tracked(); got != 1 {
		t.Fatalf("expected expired windows to be swept, tracking %d", got)
	}
}

func TestSensitiveMutationRateLimitScope(t *testing.T) {
	limited := SensitiveMutationRateLimit(4, time.Minute)(noContent())

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/staff", nil)
		req.RemoteAddr = "198.51.100.40:8888"
		if rec := serve(limited, req); rec.Code != http.StatusNoContent {
			t.Fatalf("expected read request %d to bypass sensitive limits, got %d", i+1, rec.Code)
		}
	}

	userCtx := WithUser(context.Background(), auth.UserContext{UserID: "admin-1"})
	paths := []string{"/api/v1/staff/s1/removal", "/api/v1/reconciliation/s1", "/api/v1/staff/s1/return"}
	for i, path := range paths {
		req := httptest.NewRequest(http.MethodPost, path, nil).WithContext(userCtx)
		rec := serve(limited, req)
		if i < 2 && rec.Code != http.StatusNoContent {
			t.Fatalf("expected sensitive request %d to pass, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected third sensitive request to be throttled, got %d", rec.Code)
		}
	}
}

func TestSensitiveLoginLimitedPerEmail(t *testing.T) {
	limited := SensitiveMutationRateLimit(4, time.Minute)(noContent())

	if rec := serve(limited, loginRequest("admin@example.com", "192.0.2.1:1")); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first login to pass, got %d", rec.Code)
	}
	rec := serve(limited, loginRequest("ADMIN@example.com", "192.0.2.2:1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second login for the same email to be throttled, got %d", rec.Code)
	}
}

func TestLoginEmailKeyRestoresBody(t *testing.T) {
	req := loginRequest(" Admin@Example.com ", "192.0.2.1:1")
	if key := loginEmailKey(req); key != "email:admin@example.com" {
		t.Fatalf("unexpected key %q", key)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(req.Body); err != nil || buf.Len() == 0 {
		t.Fatalf("expected body to be readable again, got %q (%v)", buf.String(), err)
	}
}

func TestSensitiveRateScope(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   sensitiveScope
	}{
		{http.MethodPost, "/api/v1/auth/login", scopeLogin},
		{http.MethodPost, "/api/v1/staff/abc/removal", scopeActor},
		{http.MethodPost, "/api/v1/staff/abc/return", scopeActor},
		{http.MethodPost, "/api/v1/reconciliation/abc", scopeActor},
		{http.MethodPost, "/api/v1/jobs/reconcile/run", scopeActor},
		{http.MethodGet, "/api/v1/staff/abc/removal", scopeNone},
		{http.MethodPost, "/api/v1/staff//removal", scopeNone},
		{http.MethodPut, "/api/v1/staff/abc", scopeNone},
		{http.MethodPost, "/api/v1/staff/abc/removal/extra", scopeNone},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if got := sensitiveRateScope(req); got != tt.want {
			t.Fatalf("%s %s: got scope %d, want %d", tt.method, tt.path, got, tt.want)
		}
	}
}
