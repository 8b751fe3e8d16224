// Package services implementa a lógica central do substrato: rate limiting,
// idempotência, medição de uso, fila de prioridades e contadores de métricas.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
)

// RateLimiterService implementa o limitador de janela fixa, nas variantes
// plana (rota + IP) e por plano (grupo de rota, plano, usuário).
type RateLimiterService struct {
	kv      ports.KeyValue
	mem     ports.FallbackStore
	policy  domain.PolicyTable
	metrics ports.MetricsRecorder
	log     *slog.Logger

	fallbackOnce sync.Once
}

// NewRateLimiterService cria uma nova instância do serviço.
func NewRateLimiterService(kv ports.KeyValue, mem ports.FallbackStore, policy domain.PolicyTable, metrics ports.MetricsRecorder, log *slog.Logger) (*RateLimiterService, error) {
	if kv == nil || mem == nil {
		return nil, fmt.Errorf("key-value backend and fallback store are required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = ports.NoopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &RateLimiterService{kv: kv, mem: mem, policy: policy, metrics: metrics, log: log}, nil
}

// Enforce incrementa o contador da janela fixa e decide. O TTL da chave só é
// definido quando ausente, para a janela nunca se estender a cada acerto.
// Falha de infraestrutura nunca rejeita a requisição: a decisão degrada para o
// armazenamento local.
func (s *RateLimiterService) Enforce(ctx context.Context, scopeKey string, limit int64, window time.Duration) domain.RateDecision {
	dec, _ := s.enforce(ctx, scopeKey, limit, window)
	return dec
}

func (s *RateLimiterService) enforce(ctx context.Context, scopeKey string, limit int64, window time.Duration) (domain.RateDecision, time.Duration) {
	if s.kv.Enabled() {
		results, err := s.kv.Pipeline(ctx, []ports.Command{
			ports.IncrBy(scopeKey, 1),
			ports.ExpireNX(scopeKey, window),
			ports.PTTL(scopeKey),
		})
		if err == nil {
			reset := results[2].TTL
			if reset <= 0 {
				reset = window
			}
			return s.decide(results[0].Int, limit, reset, true), reset
		}
		s.warnFallback(err)
	}

	current, resetAt := s.mem.IncrWindow(scopeKey, window)
	reset := time.Until(resetAt)
	return s.decide(current, limit, reset, false), reset
}

func (s *RateLimiterService) decide(current, limit int64, reset time.Duration, remote bool) domain.RateDecision {
	dec := domain.RateDecision{
		Allowed:    current <= limit,
		Current:    current,
		UsedRemote: remote,
	}
	if !dec.Allowed {
		if reset < time.Second {
			reset = time.Second
		}
		dec.RetryAfter = reset
		s.metrics.Increment("ratelimit_denied", 1)
	}
	return dec
}

// EnforceTier aplica o limite do par (grupo de rota, plano) para o usuário e
// devolve também os campos dos cabeçalhos padrão de rate limit.
func (s *RateLimiterService) EnforceTier(ctx context.Context, group domain.RouteGroup, tier domain.Tier, userID string) domain.TierDecision {
	limit, window, ok := s.policy.RouteLimit(group, tier)
	if !ok {
		// Política ausente libera a requisição; limites são regra de negócio,
		// não proteção de infraestrutura.
		s.log.Warn("rate limit policy missing", "route_group", group, "tier", tier)
		return domain.TierDecision{RateDecision: domain.RateDecision{Allowed: true}}
	}

	scopeKey := fmt.Sprintf("rl:%s:%s:%s", group, tier, userID)
	dec, reset := s.enforce(ctx, scopeKey, limit, window)

	remaining := limit - dec.Current
	if remaining < 0 {
		remaining = 0
	}
	if reset < 0 {
		reset = 0
	}

	return domain.TierDecision{
		RateDecision: dec,
		Limit:        limit,
		Remaining:    remaining,
		ResetAfter:   reset,
	}
}

func (s *RateLimiterService) warnFallback(err error) {
	s.fallbackOnce.Do(func() {
		s.log.Warn("rate limiter falling back to in-process store", "error", err)
	})
	s.metrics.Increment("backend_fallback", 1)
}
