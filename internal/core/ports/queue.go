package ports

import (
	"context"

	"github.com/vklemos/alicerce/internal/core/domain"
)

// QueueStore abstrai as listas ordenadas que sustentam a fila de prioridades:
// quatro filas de trabalho, o registro de retentativas agendadas e a lista de
// dead-letter.
type QueueStore interface {
	Push(ctx context.Context, queue domain.QueueName, payload []byte) error

	// Pop remove e devolve o job mais antigo da fila; found=false quando vazia.
	Pop(ctx context.Context, queue domain.QueueName) (payload []byte, found bool, err error)

	Length(ctx context.Context, queue domain.QueueName) (int64, error)

	PushDead(ctx context.Context, payload []byte) error

	// RecordRetry registra a retentativa agendada apenas para inspeção; o job
	// em si volta para a fila de origem.
	RecordRetry(ctx context.Context, entry domain.RetryEntry) error
}

// MetricsRecorder é o contrato mínimo de contadores de observabilidade.
// Increment nunca bloqueia o caminho da requisição.
type MetricsRecorder interface {
	Increment(name string, amount int64)
}

// NoopRecorder descarta os incrementos. Evita checagens de nil no caminho quente.
type NoopRecorder struct{}

func (NoopRecorder) Increment(string, int64) {}
