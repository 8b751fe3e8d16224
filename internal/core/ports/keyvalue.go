// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"
)

// Op identifica um comando dentro de um lote pipelined.
type Op string

const (
	OpGet      Op = "get"
	OpIncrBy   Op = "incrby"
	OpSetNX    Op = "setnx"
	OpExpireNX Op = "expirenx"
	OpPTTL     Op = "pttl"
)

// Command é um comando do lote. Apenas os campos relevantes para a operação
// precisam ser preenchidos.
type Command struct {
	Op    Op
	Key   string
	Value string
	Delta int64
	TTL   time.Duration
}

func Get(key string) Command { return Command{Op: OpGet, Key: key} }

func IncrBy(key string, delta int64) Command {
	return Command{Op: OpIncrBy, Key: key, Delta: delta}
}

func SetNX(key, value string, ttl time.Duration) Command {
	return Command{Op: OpSetNX, Key: key, Value: value, TTL: ttl}
}

func ExpireNX(key string, ttl time.Duration) Command {
	return Command{Op: OpExpireNX, Key: key, TTL: ttl}
}

func PTTL(key string) Command { return Command{Op: OpPTTL, Key: key} }

// Result é o resultado posicional de um comando do lote.
type Result struct {
	Int   int64
	Str   string
	Ok    bool
	TTL   time.Duration
	Found bool
}

// KeyValue abstrai o armazenamento chave-valor atômico remoto. Toda chamada
// carrega um orçamento limitado de retentativas; após esgotá-lo a implementação
// devolve erro (nunca sucesso silencioso).
type KeyValue interface {
	// Enabled informa se o backend está configurado. Quando falso, todas as
	// operações devolvem ErrBackendUnavailable imediatamente e os serviços
	// usam o armazenamento local.
	Enabled() bool

	Get(ctx context.Context, key string) (value string, found bool, err error)

	// SetNX grava a chave apenas se ausente, com TTL. Devolve true somente
	// para a chamada que criou a chave.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Expire aplica TTL à chave. Com onlyIfNoTTL, só aplica quando a chave
	// ainda não tem expiração (semântica EXPIRE NX).
	Expire(ctx context.Context, key string, ttl time.Duration, onlyIfNoTTL bool) (bool, error)

	// Pipeline executa o lote como uma única transação atômica, preservando a
	// ordem e devolvendo um resultado por comando.
	Pipeline(ctx context.Context, cmds []Command) ([]Result, error)

	Ping(ctx context.Context) error
}
