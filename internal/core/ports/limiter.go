package ports

import (
	"context"
	"time"

	"github.com/vklemos/alicerce/internal/core/domain"
)

// RateLimiter é o contrato consumido pelos middlewares HTTP.
type RateLimiter interface {
	Enforce(ctx context.Context, scopeKey string, limit int64, window time.Duration) domain.RateDecision
	EnforceTier(ctx context.Context, group domain.RouteGroup, tier domain.Tier, userID string) domain.TierDecision
}

// EventClaimer é o contrato de dedup consumido pelos handlers de webhook.
type EventClaimer interface {
	Claim(ctx context.Context, namespace, eventID string, ttl time.Duration) domain.ClaimResult
}

// UsageMeter é o contrato consumido pelas rotas com cobrança por uso.
// EnforceOrFail deve rodar antes da unidade de trabalho; Increment apenas
// depois do sucesso, para que falha a jusante não consuma cota.
type UsageMeter interface {
	EnforceOrFail(ctx context.Context, userID string, tier domain.Tier, metric domain.Metric) error
	Increment(ctx context.Context, userID string, metric domain.Metric, amount int64) (int64, error)
	Read(ctx context.Context, userID string) (domain.UsageSnapshot, error)
}

// JobQueue é o contrato consumido pelo gatilho de drenagem e pelos produtores.
type JobQueue interface {
	Enqueue(ctx context.Context, tier domain.Tier, job domain.Job) (bool, error)
	Drain(ctx context.Context, limit int) (domain.DrainReport, error)
}
