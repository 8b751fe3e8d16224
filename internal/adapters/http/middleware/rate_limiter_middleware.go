// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
)

const rateLimitExceededMessage = "you have reached the maximum number of requests or actions allowed within a certain time frame"

// Identify resolve o usuário e o plano de uma requisição. A autenticação em si
// é colaborador externo; aqui só consumimos o resultado.
type Identify func(r *http.Request) (userID string, tier domain.Tier)

// NewRateLimiterMiddleware aplica o limite plano por (classe de rota, IP) nas
// rotas públicas e de webhook.
func NewRateLimiterMiddleware(limiter ports.RateLimiter, routeClass string, limit int64, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			scopeKey := fmt.Sprintf("rl:%s:%s", routeClass, extractIP(r))
			decision := limiter.Enforce(r.Context(), scopeKey, limit, window)
			if !decision.Allowed {
				writeTooManyRequests(w, decision.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewTierRateLimiterMiddleware aplica o limite do plano por grupo de rotas e
// escreve os cabeçalhos padrão de rate limit.
func NewTierRateLimiterMiddleware(limiter ports.RateLimiter, group domain.RouteGroup, identify Identify) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || identify == nil {
				next.ServeHTTP(w, r)
				return
			}

			userID, tier := identify(r)
			decision := limiter.EnforceTier(r.Context(), group, tier, userID)

			if decision.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", ceilSeconds(decision.ResetAfter)))
			}

			if !decision.Allowed {
				writeTooManyRequests(w, decision.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if xRealIP != "" {
		return xRealIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}

	return host
}

func writeTooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", ceilSeconds(retryAfter)))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(rateLimitExceededMessage))
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
