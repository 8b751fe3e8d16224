package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueueName identifica uma das filas ordenadas por prioridade.
type QueueName string

const (
	QueueVIP      QueueName = "vip"
	QueuePriority QueueName = "priority"
	QueueStandard QueueName = "standard"
	QueueLow      QueueName = "low"
	QueueDead     QueueName = "dead_letter"
)

// QueuesByPriority lista as filas da maior para a menor prioridade.
func QueuesByPriority() []QueueName {
	return []QueueName{QueueVIP, QueuePriority, QueueStandard, QueueLow}
}

// QueueForTier escolhe a fila de destino conforme o plano do chamador.
func QueueForTier(t Tier) QueueName {
	switch t {
	case TierAgentGFull:
		return QueueVIP
	case TierPremium:
		return QueuePriority
	case TierBasic:
		return QueueStandard
	default:
		return QueueLow
	}
}

// JobType discrimina o payload de um job.
type JobType string

const (
	JobWebhookDispatch JobType = "webhook_dispatch"
	JobMediaProcess    JobType = "media_process"
	JobNotification    JobType = "notification"
)

// JobPayload é a união selada dos payloads conhecidos. O loop de drenagem
// despacha por tipo com switch exaustivo, nunca por acesso não tipado.
type JobPayload interface {
	jobType() JobType
}

type WebhookDispatchPayload struct {
	Endpoint string          `json:"endpoint"`
	EventID  string          `json:"event_id"`
	Body     json.RawMessage `json:"body,omitempty"`
}

func (WebhookDispatchPayload) jobType() JobType { return JobWebhookDispatch }

type MediaProcessPayload struct {
	MediaID   string `json:"media_id"`
	Operation string `json:"operation"`
}

func (MediaProcessPayload) jobType() JobType { return JobMediaProcess }

type NotificationPayload struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Message string `json:"message"`
}

func (NotificationPayload) jobType() JobType { return JobNotification }

// Job é o envelope serializado nas filas. O subsistema de fila é o único dono
// do envelope do enfileiramento até o estado terminal; apenas Retries muda
// entre tentativas.
type Job struct {
	ID             string
	Type           JobType
	Source         string
	CreatedAt      time.Time
	Retries        int
	MaxRetries     int
	IdempotencyKey string
	Payload        JobPayload
}

type jobEnvelope struct {
	ID             string          `json:"id"`
	Type           JobType         `json:"type"`
	Source         string          `json:"source,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Retries        int             `json:"retries"`
	MaxRetries     int             `json:"max_retries"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// EncodeJob serializa o envelope para armazenamento na fila.
func EncodeJob(j Job) ([]byte, error) {
	env := jobEnvelope{
		ID:             j.ID,
		Type:           j.Type,
		Source:         j.Source,
		CreatedAt:      j.CreatedAt,
		Retries:        j.Retries,
		MaxRetries:     j.MaxRetries,
		IdempotencyKey: j.IdempotencyKey,
	}

	if j.Payload != nil {
		if j.Payload.jobType() != j.Type {
			return nil, fmt.Errorf("job %s: payload type %s does not match job type %s", j.ID, j.Payload.jobType(), j.Type)
		}
		raw, err := json.Marshal(j.Payload)
		if err != nil {
			return nil, fmt.Errorf("job %s: marshal payload: %w", j.ID, err)
		}
		env.Payload = raw
	}

	return json.Marshal(env)
}

// DecodeJob reconstrói o envelope e o payload tipado correspondente.
func DecodeJob(data []byte) (Job, error) {
	var env jobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Job{}, fmt.Errorf("decode job envelope: %w", err)
	}

	job := Job{
		ID:             env.ID,
		Type:           env.Type,
		Source:         env.Source,
		CreatedAt:      env.CreatedAt,
		Retries:        env.Retries,
		MaxRetries:     env.MaxRetries,
		IdempotencyKey: env.IdempotencyKey,
	}

	if len(env.Payload) == 0 {
		return job, nil
	}

	var payload JobPayload
	switch env.Type {
	case JobWebhookDispatch:
		payload = &WebhookDispatchPayload{}
	case JobMediaProcess:
		payload = &MediaProcessPayload{}
	case JobNotification:
		payload = &NotificationPayload{}
	default:
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJobType, env.Type)
	}

	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return Job{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}

	switch p := payload.(type) {
	case *WebhookDispatchPayload:
		job.Payload = *p
	case *MediaProcessPayload:
		job.Payload = *p
	case *NotificationPayload:
		job.Payload = *p
	}

	return job, nil
}

// RetryEntry registra uma retentativa agendada, apenas para inspeção.
type RetryEntry struct {
	JobID         string    `json:"job_id"`
	Queue         QueueName `json:"queue"`
	Retries       int       `json:"retries"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastError     string    `json:"last_error"`
}

// DeadLetter é o registro terminal de um job que esgotou as retentativas.
type DeadLetter struct {
	Job       jobEnvelope `json:"job"`
	LastError string      `json:"last_error"`
	FailedAt  time.Time   `json:"failed_at"`
}

// EncodeDeadLetter serializa o job com o erro final para a lista de dead-letter.
func EncodeDeadLetter(j Job, lastErr string, failedAt time.Time) ([]byte, error) {
	data, err := EncodeJob(j)
	if err != nil {
		return nil, err
	}
	var env jobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return json.Marshal(DeadLetter{Job: env, LastError: lastErr, FailedAt: failedAt.UTC()})
}

// DrainReport resume uma passada de drenagem das filas.
type DrainReport struct {
	Processed    int               `json:"processed"`
	Failed       int               `json:"failed"`
	DeadLettered int               `json:"dead_lettered"`
	PerQueue     map[QueueName]int `json:"per_queue"`
}
