package ports

import "time"

// FallbackStore é o contrato do armazenamento local de emergência. Espelha o
// subconjunto semântico de KeyValue que cada consumidor precisa, com
// sincronização no processo no lugar da atomicidade do backend remoto.
type FallbackStore interface {
	// IncrWindow incrementa um contador de janela fixa e devolve a contagem
	// e o fim da janela corrente.
	IncrWindow(key string, window time.Duration) (int64, time.Time)

	// SetNX registra a chave apenas se ausente ou expirada.
	SetNX(key string, ttl time.Duration) bool

	// IncrBy incrementa um contador cujo TTL é fixado na criação.
	IncrBy(key string, delta int64, ttl time.Duration) int64

	// Get lê um contador; entradas expiradas contam como ausentes.
	Get(key string) (int64, bool)
}
