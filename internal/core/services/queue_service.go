package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
)

const (
	// DefaultMaxRetries é o orçamento de retentativas quando o produtor não
	// define um.
	DefaultMaxRetries = 3

	maxBackoff = 300 * time.Second
	minBackoff = 2 * time.Second
)

// Handler processa um job de um tipo específico. O processamento em si é um
// colaborador externo; a fila só cuida de sequenciamento, retentativas e
// dead-letter.
type Handler func(ctx context.Context, job domain.Job) error

// QueueService mantém as quatro filas ordenadas por prioridade, o registro de
// retentativas e a lista de dead-letter.
type QueueService struct {
	store    ports.QueueStore
	fallback ports.QueueStore
	claims   *IdempotencyService
	metrics  ports.MetricsRecorder
	log      *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[domain.JobType]Handler

	fallbackOnce sync.Once
}

// NewQueueService cria uma nova instância do serviço. fallback recebe os jobs
// que não puderam ser gravados no store primário.
func NewQueueService(store, fallback ports.QueueStore, claims *IdempotencyService, metrics ports.MetricsRecorder, log *slog.Logger) (*QueueService, error) {
	if store == nil {
		return nil, fmt.Errorf("queue store is required")
	}
	if claims == nil {
		return nil, fmt.Errorf("idempotency service is required")
	}
	if metrics == nil {
		metrics = ports.NoopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &QueueService{
		store:    store,
		fallback: fallback,
		claims:   claims,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
		handlers: make(map[domain.JobType]Handler),
	}, nil
}

// Register associa o handler ao tipo de job.
func (s *QueueService) Register(jobType domain.JobType, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = handler
}

func (s *QueueService) handler(jobType domain.JobType) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[jobType]
	return h, ok
}

// Enqueue serializa e grava o job na fila do plano do produtor. Com
// IdempotencyKey presente, a reivindicação perdida significa "já enfileirado"
// e devolve queued=false sem erro.
func (s *QueueService) Enqueue(ctx context.Context, tier domain.Tier, job domain.Job) (bool, error) {
	if job.Type == "" {
		return false, fmt.Errorf("job type is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = DefaultMaxRetries
	}

	if job.IdempotencyKey != "" {
		result := s.claims.Claim(ctx, "jobs", job.IdempotencyKey, JobClaimTTL)
		if !result.Accepted {
			return false, nil
		}
	}

	payload, err := domain.EncodeJob(job)
	if err != nil {
		return false, err
	}

	queue := domain.QueueForTier(tier)
	if err := s.push(ctx, queue, payload); err != nil {
		return false, err
	}

	s.metrics.Increment("jobs_enqueued", 1)
	return true, nil
}

func (s *QueueService) push(ctx context.Context, queue domain.QueueName, payload []byte) error {
	err := s.store.Push(ctx, queue, payload)
	if err == nil {
		return nil
	}
	if s.fallback == nil {
		return err
	}
	s.warnFallback(err)
	return s.fallback.Push(ctx, queue, payload)
}

func (s *QueueService) pop(ctx context.Context, queue domain.QueueName) ([]byte, bool) {
	payload, found, err := s.store.Pop(ctx, queue)
	if err != nil {
		s.warnFallback(err)
	} else if found {
		return payload, true
	}

	if s.fallback == nil {
		return nil, false
	}
	payload, found, err = s.fallback.Pop(ctx, queue)
	if err != nil || !found {
		return nil, false
	}
	return payload, true
}

// Drain percorre as filas até processar limit jobs ou esgotar uma passada
// completa. Cada passada visita as filas da maior para a menor prioridade e
// retira no máximo um job de cada, para que as filas de baixo continuem
// progredindo sob carga sustentada nas de cima.
func (s *QueueService) Drain(ctx context.Context, limit int) (domain.DrainReport, error) {
	report := domain.DrainReport{PerQueue: make(map[domain.QueueName]int)}
	if limit <= 0 {
		return report, nil
	}

	for report.Processed+report.Failed < limit {
		progressed := false
		for _, queue := range domain.QueuesByPriority() {
			if report.Processed+report.Failed >= limit {
				break
			}
			payload, found := s.pop(ctx, queue)
			if !found {
				continue
			}
			progressed = true
			s.processOne(ctx, queue, payload, &report)
		}
		if !progressed {
			break
		}
	}

	return report, nil
}

func (s *QueueService) processOne(ctx context.Context, queue domain.QueueName, payload []byte, report *domain.DrainReport) {
	report.PerQueue[queue]++

	job, err := domain.DecodeJob(payload)
	if err != nil {
		s.log.Error("undecodable job moved to dead-letter", "queue", queue, "error", err)
		s.deadLetterRaw(ctx, payload)
		report.Failed++
		report.DeadLettered++
		return
	}

	handler, ok := s.handler(job.Type)
	if !ok {
		s.log.Error("no handler registered for job type", "type", job.Type, "job_id", job.ID)
		s.deadLetter(ctx, job, fmt.Sprintf("no handler for type %s", job.Type), report)
		report.Failed++
		return
	}

	if err := s.invoke(ctx, handler, job); err != nil {
		report.Failed++
		s.retryOrBury(ctx, queue, job, err, report)
		return
	}

	report.Processed++
	s.metrics.Increment("jobs_processed", 1)
}

// invoke isola o handler: erro ou pânico vira decisão de retentativa, nunca
// queda do loop de drenagem.
func (s *QueueService) invoke(ctx context.Context, handler Handler, job domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (s *QueueService) retryOrBury(ctx context.Context, queue domain.QueueName, job domain.Job, cause error, report *domain.DrainReport) {
	s.metrics.Increment("jobs_failed", 1)

	if job.Retries+1 > job.MaxRetries {
		s.log.Warn("job exhausted retries", "job_id", job.ID, "type", job.Type, "retries", job.Retries, "error", cause)
		s.deadLetter(ctx, job, cause.Error(), report)
		return
	}

	backoff := backoffFor(job.Retries)
	entry := domain.RetryEntry{
		JobID:         job.ID,
		Queue:         queue,
		Retries:       job.Retries + 1,
		NextAttemptAt: s.now().UTC().Add(backoff),
		LastError:     cause.Error(),
	}
	if err := s.recordRetry(ctx, entry); err != nil {
		s.log.Warn("failed to record retry entry", "job_id", job.ID, "error", err)
	}

	job.Retries++
	payload, err := domain.EncodeJob(job)
	if err != nil {
		s.log.Error("failed to re-encode job for retry", "job_id", job.ID, "error", err)
		s.deadLetter(ctx, job, err.Error(), report)
		return
	}
	if err := s.push(ctx, queue, payload); err != nil {
		s.log.Error("failed to re-enqueue job", "job_id", job.ID, "error", err)
	}
}

func (s *QueueService) recordRetry(ctx context.Context, entry domain.RetryEntry) error {
	err := s.store.RecordRetry(ctx, entry)
	if err == nil || s.fallback == nil {
		return err
	}
	s.warnFallback(err)
	return s.fallback.RecordRetry(ctx, entry)
}

func (s *QueueService) deadLetter(ctx context.Context, job domain.Job, lastErr string, report *domain.DrainReport) {
	payload, err := domain.EncodeDeadLetter(job, lastErr, s.now())
	if err != nil {
		s.log.Error("failed to encode dead letter", "job_id", job.ID, "error", err)
		return
	}
	s.deadLetterRaw(ctx, payload)
	report.DeadLettered++
}

func (s *QueueService) deadLetterRaw(ctx context.Context, payload []byte) {
	s.metrics.Increment("jobs_dead_lettered", 1)
	if err := s.store.PushDead(ctx, payload); err != nil {
		s.warnFallback(err)
		if s.fallback != nil {
			if ferr := s.fallback.PushDead(ctx, payload); ferr == nil {
				return
			}
		}
		s.log.Error("failed to push dead letter", "error", err)
	}
}

// backoffFor devolve min(300s, max(2s, 2^retries segundos)).
func backoffFor(retries int) time.Duration {
	if retries < 1 {
		return minBackoff
	}
	if retries > 8 {
		return maxBackoff
	}
	backoff := time.Duration(1<<uint(retries)) * time.Second
	if backoff < minBackoff {
		return minBackoff
	}
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

func (s *QueueService) warnFallback(err error) {
	s.fallbackOnce.Do(func() {
		s.log.Warn("queue falling back to in-process store", "error", err)
	})
}
