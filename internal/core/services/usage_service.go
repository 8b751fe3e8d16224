package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
)

const (
	// monthCounterTTL cobre o mês corrente com folga; dayCounterTTL idem para
	// o dia. A expiração da chave é o que zera o período.
	monthCounterTTL = 35 * 24 * time.Hour
	dayCounterTTL   = 48 * time.Hour
)

// UsageService mantém os contadores de uso por (período, usuário, métrica).
// Cada métrica é rastreada simultaneamente no mês e no dia; a tabela de
// políticas decide qual período é autoritativo para a checagem de direito.
type UsageService struct {
	kv     ports.KeyValue
	mem    ports.FallbackStore
	policy domain.PolicyTable
	log    *slog.Logger
	now    func() time.Time

	fallbackOnce sync.Once
}

// NewUsageService cria uma nova instância do serviço.
func NewUsageService(kv ports.KeyValue, mem ports.FallbackStore, policy domain.PolicyTable, log *slog.Logger) (*UsageService, error) {
	if kv == nil || mem == nil {
		return nil, fmt.Errorf("key-value backend and fallback store are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &UsageService{kv: kv, mem: mem, policy: policy, log: log, now: time.Now}, nil
}

func usageKey(periodKey, userID string, metric domain.Metric) string {
	return fmt.Sprintf("usage:%s:%s:%s", periodKey, userID, metric)
}

func (s *UsageService) keys(userID string, metric domain.Metric) (monthKey, dayKey string) {
	now := s.now()
	return usageKey(domain.MonthKey(now), userID, metric),
		usageKey(domain.DayKey(now), userID, metric)
}

// Increment soma amount aos contadores mensal e diário da métrica em um único
// lote atômico e devolve o total do período autoritativo. Deve ser chamado
// apenas depois da unidade de trabalho concluir com sucesso.
func (s *UsageService) Increment(ctx context.Context, userID string, metric domain.Metric, amount int64) (int64, error) {
	monthKey, dayKey := s.keys(userID, metric)

	if s.kv.Enabled() {
		results, err := s.kv.Pipeline(ctx, []ports.Command{
			ports.IncrBy(monthKey, amount),
			ports.ExpireNX(monthKey, monthCounterTTL),
			ports.IncrBy(dayKey, amount),
			ports.ExpireNX(dayKey, dayCounterTTL),
		})
		if err == nil {
			if s.authoritativePeriod(metric) == domain.PeriodDay {
				return results[2].Int, nil
			}
			return results[0].Int, nil
		}
		s.warnFallback(err)
	}

	monthTotal := s.mem.IncrBy(monthKey, amount, monthCounterTTL)
	dayTotal := s.mem.IncrBy(dayKey, amount, dayCounterTTL)
	if s.authoritativePeriod(metric) == domain.PeriodDay {
		return dayTotal, nil
	}
	return monthTotal, nil
}

// Read devolve os dois contadores de cada métrica conhecida do usuário.
func (s *UsageService) Read(ctx context.Context, userID string) (domain.UsageSnapshot, error) {
	metrics := domain.Metrics()
	snapshot := domain.UsageSnapshot{
		UserID: userID,
		Totals: make(map[domain.Metric]domain.UsageTotals, len(metrics)),
	}

	if s.kv.Enabled() {
		cmds := make([]ports.Command, 0, len(metrics)*2)
		for _, metric := range metrics {
			monthKey, dayKey := s.keys(userID, metric)
			cmds = append(cmds, ports.Get(monthKey), ports.Get(dayKey))
		}
		results, err := s.kv.Pipeline(ctx, cmds)
		if err == nil {
			for i, metric := range metrics {
				snapshot.Totals[metric] = domain.UsageTotals{
					Month: parseCounter(results[i*2]),
					Day:   parseCounter(results[i*2+1]),
				}
			}
			return snapshot, nil
		}
		s.warnFallback(err)
	}

	for _, metric := range metrics {
		monthKey, dayKey := s.keys(userID, metric)
		month, _ := s.mem.Get(monthKey)
		day, _ := s.mem.Get(dayKey)
		snapshot.Totals[metric] = domain.UsageTotals{Month: month, Day: day}
	}
	return snapshot, nil
}

// EnforceOrFail valida o direito de uso antes da unidade de trabalho. Devolve
// UsageLimitExceededError quando o uso pré-incremento já atinge o limite do
// plano no período autoritativo da métrica.
func (s *UsageService) EnforceOrFail(ctx context.Context, userID string, tier domain.Tier, metric domain.Metric) error {
	period, limit, ok := s.policy.Entitlement(metric, tier)
	if !ok || limit <= 0 {
		return nil
	}

	monthKey, dayKey := s.keys(userID, metric)
	key := monthKey
	if period == domain.PeriodDay {
		key = dayKey
	}

	used := s.readCounter(ctx, key)
	if used >= limit {
		return &domain.UsageLimitExceededError{Metric: metric, Used: used, Limit: limit}
	}
	return nil
}

func (s *UsageService) readCounter(ctx context.Context, key string) int64 {
	if s.kv.Enabled() {
		value, found, err := s.kv.Get(ctx, key)
		if err == nil {
			if !found {
				return 0
			}
			n, parseErr := strconv.ParseInt(value, 10, 64)
			if parseErr != nil {
				s.log.Warn("usage counter holds non-numeric value", "key", key, "value", value)
				return 0
			}
			return n
		}
		s.warnFallback(err)
	}

	value, _ := s.mem.Get(key)
	return value
}

func (s *UsageService) authoritativePeriod(metric domain.Metric) domain.Period {
	if mp, ok := s.policy.Metrics[metric]; ok {
		return mp.Period
	}
	return domain.PeriodMonth
}

func parseCounter(r ports.Result) int64 {
	if !r.Found {
		return 0
	}
	n, err := strconv.ParseInt(r.Str, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (s *UsageService) warnFallback(err error) {
	s.fallbackOnce.Do(func() {
		s.log.Warn("usage meter falling back to in-process store", "error", err)
	})
}
