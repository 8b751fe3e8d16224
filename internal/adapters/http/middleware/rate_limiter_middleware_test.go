package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vklemos/alicerce/internal/core/domain"
)

type stubLimiter struct {
	decision     domain.RateDecision
	tierDecision domain.TierDecision
	lastScopeKey string
	lastGroup    domain.RouteGroup
	lastUserID   string
}

func (s *stubLimiter) Enforce(_ context.Context, scopeKey string, _ int64, _ time.Duration) domain.RateDecision {
	s.lastScopeKey = scopeKey
	return s.decision
}

func (s *stubLimiter) EnforceTier(_ context.Context, group domain.RouteGroup, _ domain.Tier, userID string) domain.TierDecision {
	s.lastGroup = group
	s.lastUserID = userID
	return s.tierDecision
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterMiddlewareAllows(t *testing.T) {
	limiter := &stubLimiter{decision: domain.RateDecision{Allowed: true, Current: 1}}
	handler := NewRateLimiterMiddleware(limiter, "webhooks", 10, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	req.RemoteAddr = "203.0.113.7:4321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if limiter.lastScopeKey != "rl:webhooks:203.0.113.7" {
		t.Errorf("scope key = %q", limiter.lastScopeKey)
	}
}

func TestRateLimiterMiddlewareRejects(t *testing.T) {
	limiter := &stubLimiter{decision: domain.RateDecision{Allowed: false, RetryAfter: 90 * time.Second}}
	handler := NewRateLimiterMiddleware(limiter, "webhooks", 10, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "90" {
		t.Errorf("Retry-After = %q, want \"90\"", got)
	}
	if rec.Body.String() != rateLimitExceededMessage {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRateLimiterMiddlewarePrefersForwardedFor(t *testing.T) {
	limiter := &stubLimiter{decision: domain.RateDecision{Allowed: true}}
	handler := NewRateLimiterMiddleware(limiter, "webhooks", 10, time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if limiter.lastScopeKey != "rl:webhooks:198.51.100.9" {
		t.Errorf("scope key = %q, want first forwarded address", limiter.lastScopeKey)
	}
}

func identifyFixed(userID string, tier domain.Tier) Identify {
	return func(*http.Request) (string, domain.Tier) { return userID, tier }
}

func TestTierMiddlewareSetsHeaders(t *testing.T) {
	limiter := &stubLimiter{tierDecision: domain.TierDecision{
		RateDecision: domain.RateDecision{Allowed: true, Current: 2},
		Limit:        20,
		Remaining:    18,
		ResetAfter:   45 * time.Second,
	}}
	handler := NewTierRateLimiterMiddleware(limiter, domain.RouteMessages, identifyFixed("user-1", domain.TierFree))(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "20" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "18" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != "45" {
		t.Errorf("X-RateLimit-Reset = %q", got)
	}
	if limiter.lastGroup != domain.RouteMessages || limiter.lastUserID != "user-1" {
		t.Errorf("EnforceTier called with %s/%s", limiter.lastGroup, limiter.lastUserID)
	}
}

func TestTierMiddlewareRejects(t *testing.T) {
	limiter := &stubLimiter{tierDecision: domain.TierDecision{
		RateDecision: domain.RateDecision{Allowed: false, RetryAfter: time.Second},
		Limit:        20,
		Remaining:    0,
		ResetAfter:   500 * time.Millisecond,
	}}
	handler := NewTierRateLimiterMiddleware(limiter, domain.RouteMessages, identifyFixed("user-1", domain.TierFree))(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want \"1\"", got)
	}
}

func TestCeilSeconds(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int64
	}{
		{0, 0},
		{-time.Second, 0},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tc := range cases {
		if got := ceilSeconds(tc.in); got != tc.want {
			t.Errorf("ceilSeconds(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
