// Package memory disponibiliza o armazenamento local usado quando o backend
// remoto está desabilitado ou indisponível. Implementa o mesmo contrato
// semântico (incremento atômico, gravação se ausente) com exclusão mútua no
// processo. Durante uma indisponibilidade a consistência é apenas local à
// instância; isso é degradação aceita, não erro.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
)

// sweepBudget limita quantas entradas expiradas cada escrita remove, para que
// o custo da limpeza fique constante sob tráfego sustentado.
const sweepBudget = 32

type windowCounter struct {
	count   int64
	resetAt time.Time
}

type ttlCounter struct {
	value     int64
	expiresAt time.Time
}

// Store guarda contadores com janela, reivindicações de idempotência,
// contadores com TTL e as listas da fila, todos protegidos por mutex.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	windows  map[string]*windowCounter
	claims   map[string]time.Time
	counters map[string]*ttlCounter
	queues   map[domain.QueueName][][]byte
	retries  []domain.RetryEntry
	dead     [][]byte
}

var _ ports.QueueStore = (*Store)(nil)

// New cria um Store vazio.
func New() *Store {
	return &Store{
		now:      time.Now,
		windows:  make(map[string]*windowCounter),
		claims:   make(map[string]time.Time),
		counters: make(map[string]*ttlCounter),
		queues:   make(map[domain.QueueName][][]byte),
	}
}

// IncrWindow incrementa o contador de janela fixa e devolve a contagem e o fim
// da janela corrente. Uma janela expirada é reiniciada implicitamente.
func (s *Store) IncrWindow(key string, window time.Duration) (int64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	w, ok := s.windows[key]
	if !ok || !w.resetAt.After(now) {
		w = &windowCounter{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt
}

// SetNX registra a reivindicação apenas se ausente ou expirada. Devolve true
// somente para a chamada que criou a entrada.
func (s *Store) SetNX(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if expiresAt, ok := s.claims[key]; ok && expiresAt.After(now) {
		return false
	}
	s.claims[key] = now.Add(ttl)
	return true
}

// IncrBy incrementa um contador com TTL fixo definido na criação.
func (s *Store) IncrBy(key string, delta int64, ttl time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	c, ok := s.counters[key]
	if !ok || !c.expiresAt.After(now) {
		c = &ttlCounter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
	}
	c.value += delta
	return c.value
}

// Get lê um contador com TTL; entradas expiradas contam como ausentes.
func (s *Store) Get(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !c.expiresAt.After(s.now()) {
		return 0, false
	}
	return c.value, true
}

// sweepLocked remove até sweepBudget entradas expiradas. Deve ser chamado com
// o mutex adquirido.
func (s *Store) sweepLocked(now time.Time) {
	budget := sweepBudget
	for key, w := range s.windows {
		if budget == 0 {
			return
		}
		if !w.resetAt.After(now) {
			delete(s.windows, key)
			budget--
		}
	}
	for key, expiresAt := range s.claims {
		if budget == 0 {
			return
		}
		if !expiresAt.After(now) {
			delete(s.claims, key)
			budget--
		}
	}
	for key, c := range s.counters {
		if budget == 0 {
			return
		}
		if !c.expiresAt.After(now) {
			delete(s.counters, key)
			budget--
		}
	}
}

func (s *Store) Push(_ context.Context, queue domain.QueueName, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[queue] = append(s.queues[queue], payload)
	return nil
}

func (s *Store) Pop(_ context.Context, queue domain.QueueName) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.queues[queue]
	if len(items) == 0 {
		return nil, false, nil
	}
	payload := items[0]
	s.queues[queue] = items[1:]
	return payload, true, nil
}

func (s *Store) Length(_ context.Context, queue domain.QueueName) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.queues[queue])), nil
}

func (s *Store) PushDead(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, payload)
	return nil
}

func (s *Store) RecordRetry(_ context.Context, entry domain.RetryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries = append(s.retries, entry)
	return nil
}

// DeadLetters devolve uma cópia da lista de dead-letter para inspeção.
func (s *Store) DeadLetters() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.dead))
	copy(out, s.dead)
	return out
}

// RetryEntries devolve uma cópia do registro de retentativas.
func (s *Store) RetryEntries() []domain.RetryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RetryEntry, len(s.retries))
	copy(out, s.retries)
	return out
}
