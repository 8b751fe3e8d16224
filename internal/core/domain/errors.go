package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBackendUnavailable indica que o backend remoto esgotou o orçamento
	// de retentativas. Nunca chega ao chamador final: o serviço degrada para
	// o armazenamento local.
	ErrBackendUnavailable = errors.New("key-value backend unavailable")

	ErrUnknownJobType = errors.New("unknown job type")
)

// BackendMisconfiguredError é devolvido apenas em modo estrito quando as
// configurações de conexão estão ausentes.
type BackendMisconfiguredError struct {
	Missing []string
}

func (e *BackendMisconfiguredError) Error() string {
	return fmt.Sprintf("key-value backend misconfigured: missing %s", strings.Join(e.Missing, ", "))
}

func IsBackendMisconfigured(err error) bool {
	var target *BackendMisconfiguredError
	return errors.As(err, &target)
}

// UsageLimitExceededError indica que o uso pré-incremento já atingiu o limite
// do plano para a métrica. Mapeia para HTTP 402 na borda.
type UsageLimitExceededError struct {
	Metric Metric
	Used   int64
	Limit  int64
}

func (e *UsageLimitExceededError) Error() string {
	return fmt.Sprintf("usage limit exceeded for %s: %d/%d", e.Metric, e.Used, e.Limit)
}

func IsUsageLimitExceeded(err error) bool {
	var target *UsageLimitExceededError
	return errors.As(err, &target)
}
