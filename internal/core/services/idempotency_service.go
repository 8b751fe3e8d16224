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

const (
	// DefaultClaimTTL cobre a janela de redelivery dos provedores de webhook.
	DefaultClaimTTL = 24 * time.Hour

	// JobClaimTTL é mais longo: dedup de jobs precisa sobreviver a drenagens
	// lentas e retentativas.
	JobClaimTTL = 72 * time.Hour
)

// IdempotencyService implementa reivindicações "primeiro escritor vence" com
// TTL, usadas para dedup de webhooks/eventos e de jobs da fila.
type IdempotencyService struct {
	kv  ports.KeyValue
	mem ports.FallbackStore
	log *slog.Logger

	fallbackOnce sync.Once
}

// NewIdempotencyService cria uma nova instância do serviço.
func NewIdempotencyService(kv ports.KeyValue, mem ports.FallbackStore, log *slog.Logger) (*IdempotencyService, error) {
	if kv == nil || mem == nil {
		return nil, fmt.Errorf("key-value backend and fallback store are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &IdempotencyService{kv: kv, mem: mem, log: log}, nil
}

// Claim tenta reivindicar (namespace, eventID) com um único SETNX+TTL.
// Accepted é verdadeiro apenas para a chamada que criou a chave; todas as
// repetições antes do TTL devolvem false. Com o backend indisponível a
// reivindicação cai no mapa local: o dedup passa a valer só nesta instância
// durante a interrupção.
func (s *IdempotencyService) Claim(ctx context.Context, namespace, eventID string, ttl time.Duration) domain.ClaimResult {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	key := claimKey(namespace, eventID)

	if s.kv.Enabled() {
		accepted, err := s.kv.SetNX(ctx, key, "1", ttl)
		if err == nil {
			return domain.ClaimResult{Accepted: accepted, UsedRemote: true}
		}
		s.fallbackOnce.Do(func() {
			s.log.Warn("idempotency claims falling back to in-process store", "error", err)
		})
	}

	return domain.ClaimResult{Accepted: s.mem.SetNX(key, ttl)}
}

func claimKey(namespace, eventID string) string {
	return "idem:" + namespace + ":" + eventID
}
