package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
)

const (
	hourBucketTTL = 25 * time.Hour
	dayBucketTTL  = 8 * 24 * time.Hour

	metricsWorkers     = 4
	metricsWriteBudget = 2 * time.Second
)

// MetricsService mantém contadores horários e diários de observabilidade.
// Increment é melhor-esforço e nunca bloqueia o caminho da requisição: o
// incremento roda em um grupo de trabalho limitado e erros são apenas logados.
type MetricsService struct {
	kv  ports.KeyValue
	mem ports.FallbackStore
	log *slog.Logger
	now func() time.Time

	group *errgroup.Group

	fallbackOnce sync.Once
}

var _ ports.MetricsRecorder = (*MetricsService)(nil)

// NewMetricsService cria uma nova instância do serviço.
func NewMetricsService(kv ports.KeyValue, mem ports.FallbackStore, log *slog.Logger) (*MetricsService, error) {
	if kv == nil || mem == nil {
		return nil, fmt.Errorf("key-value backend and fallback store are required")
	}
	if log == nil {
		log = slog.Default()
	}
	group := new(errgroup.Group)
	group.SetLimit(metricsWorkers)
	return &MetricsService{kv: kv, mem: mem, log: log, now: time.Now, group: group}, nil
}

func hourBucketKey(t time.Time, name string) string {
	return "metrics:h:" + domain.HourKey(t) + ":" + name
}

func dayBucketKey(t time.Time, name string) string {
	return "metrics:d:" + domain.DayKey(t) + ":" + name
}

// Increment soma amount nos buckets horário e diário da métrica, em segundo
// plano. Chamadores nunca esperam nem observam erros de infraestrutura: com os
// trabalhadores saturados a amostra é descartada, não enfileirada.
func (s *MetricsService) Increment(name string, amount int64) {
	if name == "" || amount == 0 {
		return
	}
	submitted := s.group.TryGo(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), metricsWriteBudget)
		defer cancel()
		s.record(ctx, name, amount)
		return nil
	})
	if !submitted {
		s.log.Debug("metrics increment dropped", "name", name, "amount", amount)
	}
}

func (s *MetricsService) record(ctx context.Context, name string, amount int64) {
	now := s.now()
	hourKey := hourBucketKey(now, name)
	dayKey := dayBucketKey(now, name)

	if s.kv.Enabled() {
		_, err := s.kv.Pipeline(ctx, []ports.Command{
			ports.IncrBy(hourKey, amount),
			ports.ExpireNX(hourKey, hourBucketTTL),
			ports.IncrBy(dayKey, amount),
			ports.ExpireNX(dayKey, dayBucketTTL),
		})
		if err == nil {
			return
		}
		s.warnFallback(err)
	}

	s.mem.IncrBy(hourKey, amount, hourBucketTTL)
	s.mem.IncrBy(dayKey, amount, dayBucketTTL)
}

// ReadWindow soma os últimos hours buckets horários da métrica. É uma
// aproximação de janela deslizante com granularidade de uma hora, suficiente
// para dashboards.
func (s *MetricsService) ReadWindow(ctx context.Context, name string, hours int) (int64, error) {
	if hours <= 0 {
		hours = 1
	}
	now := s.now()

	keys := make([]string, 0, hours)
	for i := 0; i < hours; i++ {
		keys = append(keys, hourBucketKey(now.Add(-time.Duration(i)*time.Hour), name))
	}

	if s.kv.Enabled() {
		cmds := make([]ports.Command, 0, len(keys))
		for _, key := range keys {
			cmds = append(cmds, ports.Get(key))
		}
		results, err := s.kv.Pipeline(ctx, cmds)
		if err == nil {
			var total int64
			for _, r := range results {
				if !r.Found {
					continue
				}
				if n, perr := strconv.ParseInt(r.Str, 10, 64); perr == nil {
					total += n
				}
			}
			return total, nil
		}
		s.warnFallback(err)
	}

	var total int64
	for _, key := range keys {
		if n, ok := s.mem.Get(key); ok {
			total += n
		}
	}
	return total, nil
}

func (s *MetricsService) warnFallback(err error) {
	s.fallbackOnce.Do(func() {
		s.log.Warn("metrics counters falling back to in-process store", "error", err)
	})
}

// Close espera os incrementos em voo terminarem.
func (s *MetricsService) Close() error {
	return s.group.Wait()
}
