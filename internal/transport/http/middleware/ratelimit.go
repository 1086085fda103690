package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"staffdesk/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

func WithClock(now func() time.Time) RateLimitOption {
	return func(rl *rateLimiter) {
		if now != nil {
			rl.now = now
		}
	}
}

type rateWindow struct {
	hits    int
	resetAt time.Time
}

// rateLimiter is a fixed-window counter per key. Expired windows are swept
// at most once per period.
type rateLimiter struct {
	mu        sync.Mutex
	limit     int
	period    time.Duration
	keyFn     RateLimitKeyFunc
	now       func() time.Time
	windows   map[string]*rateWindow
	lastSweep time.Time
}

func newRateLimiter(limit int, period time.Duration, keyFn RateLimitKeyFunc, opts ...RateLimitOption) *rateLimiter {
	rl := &rateLimiter{
		limit:   limit,
		period:  period,
		keyFn:   keyFn,
		now:     time.Now,
		windows: map[string]*rateWindow{},
	}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.keyFn == nil {
		rl.keyFn = actorOrIPKey
	}
	return rl
}

func RateLimit(limit int, period time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, period, actorOrIPKey, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SensitiveMutationRateLimit applies tighter limits to login attempts and to
// the mutations listed in sensitiveRoutes. Login is limited per client IP
// and per submitted email; the rest per actor.
func SensitiveMutationRateLimit(baseLimit int, period time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	loginLimit := max(baseLimit/4, 1)
	actorLimit := max(baseLimit/2, 1)
	loginByIP := newRateLimiter(loginLimit, period, clientIPKey, opts...)
	loginByEmail := newRateLimiter(loginLimit, period, loginEmailKey, opts...)
	byActor := newRateLimiter(actorLimit, period, actorOrIPKey, opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch sensitiveRateScope(r) {
			case scopeLogin:
				if !loginByIP.enforce(w, r) || !loginByEmail.enforce(w, r) {
					return
				}
			case scopeActor:
				if !byActor.enforce(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *rateLimiter) allow(key string) (remaining int, resetIn time.Duration, ok bool) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.period {
		for k, win := range rl.windows {
			if !now.Before(win.resetAt) {
				delete(rl.windows, k)
			}
		}
		rl.lastSweep = now
	}

	win := rl.windows[key]
	if win == nil || !now.Before(win.resetAt) {
		win = &rateWindow{resetAt: now.Add(rl.period)}
		rl.windows[key] = win
	}
	win.hits++
	return rl.limit - win.hits, win.resetAt.Sub(now), win.hits <= rl.limit
}

func (rl *rateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.limit <= 0 {
		return true
	}
	key := rl.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	remaining, resetIn, ok := rl.allow(key)
	reset := ceilSeconds(resetIn)

	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	headers.Set("X-RateLimit-Reset", strconv.Itoa(reset))
	if ok {
		return true
	}

	headers.Set("Retry-After", strconv.Itoa(max(reset, 1)))
	slog.Warn("rate limit exceeded", "key", key, "method", r.Method, "path", r.URL.Path, "limit", rl.limit)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return clientIPKey(r)
}

// clientIPKey trusts the first X-Forwarded-For hop; the server is expected
// to sit behind a proxy that overwrites it.
func clientIPKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}

// loginEmailKey peeks at the login payload and restores the body for the
// handler. It returns "" when no email can be read.
func loginEmailKey(r *http.Request) string {
	if r.Body == nil || !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" {
		return ""
	}
	return "email:" + email
}

type sensitiveScope int

const (
	scopeNone sensitiveScope = iota
	scopeLogin
	scopeActor
)

// sensitiveRoutes are matched against the path below /api/v1. A "*" segment
// matches exactly one non-empty segment.
var sensitiveRoutes = []struct {
	method  string
	pattern string
	scope   sensitiveScope
}{
	{http.MethodPost, "/auth/login", scopeLogin},
	{http.MethodPost, "/staff/*/removal", scopeActor},
	{http.MethodPost, "/staff/*/return", scopeActor},
	{http.MethodPost, "/reconciliation/*", scopeActor},
	{http.MethodPost, "/jobs/reconcile/run", scopeActor},
}

func sensitiveRateScope(r *http.Request) sensitiveScope {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	for _, route := range sensitiveRoutes {
		if r.Method == route.method && matchSegments(route.pattern, path) {
			return route.scope
		}
	}
	return scopeNone
}

func matchSegments(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, segment := range want {
		if segment == "*" {
			if got[i] == "" {
				return false
			}
			continue
		}
		if segment != got[i] {
			return false
		}
	}
	return true
}
