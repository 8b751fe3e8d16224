// Package redis disponibiliza a implementação do backend chave-valor e das
// listas da fila baseada em Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
)

const (
	// SettingAddr e SettingPassword são as duas configurações nomeadas que
	// habilitam o backend. A ausência de qualquer uma desabilita o backend
	// (modo leniente) ou gera BackendMisconfiguredError (modo estrito).
	SettingAddr     = "REDIS_ADDR"
	SettingPassword = "REDIS_PASSWORD"

	maxRetries = 2
	retryStep  = 120 * time.Millisecond

	retrySetKey = "queue:retries"
	retrySetTTL = 7 * 24 * time.Hour
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// Strict faz a construção falhar quando as configurações estão ausentes,
	// em vez de devolver um backend desabilitado.
	Strict bool
}

// Backend implementa ports.KeyValue e ports.QueueStore sobre um cliente Redis.
// Um Backend sem cliente está desabilitado: toda operação devolve
// domain.ErrBackendUnavailable imediatamente.
type Backend struct {
	client *redis.Client
}

var (
	_ ports.KeyValue   = (*Backend)(nil)
	_ ports.QueueStore = (*Backend)(nil)
)

// New resolve a configuração e cria o backend. Configuração ausente não é erro
// em modo leniente: o backend nasce desabilitado e os serviços degradam para o
// armazenamento local.
func New(cfg Config) (*Backend, error) {
	var missing []string
	if cfg.Addr == "" {
		missing = append(missing, SettingAddr)
	}
	if cfg.Password == "" {
		missing = append(missing, SettingPassword)
	}
	if len(missing) > 0 {
		if cfg.Strict {
			return nil, &domain.BackendMisconfiguredError{Missing: missing}
		}
		return &Backend{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Backend{client: client}, nil
}

func (b *Backend) Enabled() bool {
	return b.client != nil
}

func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// withRetry executa fn com até maxRetries retentativas e atraso linear
// (retryStep × tentativa). Cancelamento de contexto não é retentado.
func (b *Backend) withRetry(ctx context.Context, fn func() error) error {
	if b.client == nil {
		return domain.ErrBackendUnavailable
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * retryStep):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, lastErr)
}

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	err := b.withRetry(ctx, func() error {
		v, err := b.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (b *Backend) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var set bool
	err := b.withRetry(ctx, func() error {
		v, err := b.client.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			return err
		}
		set = v
		return nil
	})
	return set, err
}

func (b *Backend) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	var value int64
	err := b.withRetry(ctx, func() error {
		v, err := b.client.IncrBy(ctx, key, delta).Result()
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

func (b *Backend) Expire(ctx context.Context, key string, ttl time.Duration, onlyIfNoTTL bool) (bool, error) {
	var applied bool
	err := b.withRetry(ctx, func() error {
		var cmd *redis.BoolCmd
		if onlyIfNoTTL {
			cmd = b.client.ExpireNX(ctx, key, ttl)
		} else {
			cmd = b.client.Expire(ctx, key, ttl)
		}
		v, err := cmd.Result()
		if err != nil {
			return err
		}
		applied = v
		return nil
	})
	return applied, err
}

// Pipeline executa o lote como transação MULTI/EXEC: ordem preservada e falha
// de transporte tudo-ou-nada, um resultado por comando.
func (b *Backend) Pipeline(ctx context.Context, cmds []ports.Command) ([]ports.Result, error) {
	var results []ports.Result
	err := b.withRetry(ctx, func() error {
		pipe := b.client.TxPipeline()
		queued := make([]redis.Cmder, 0, len(cmds))
		for _, cmd := range cmds {
			switch cmd.Op {
			case ports.OpGet:
				queued = append(queued, pipe.Get(ctx, cmd.Key))
			case ports.OpIncrBy:
				queued = append(queued, pipe.IncrBy(ctx, cmd.Key, cmd.Delta))
			case ports.OpSetNX:
				queued = append(queued, pipe.SetNX(ctx, cmd.Key, cmd.Value, cmd.TTL))
			case ports.OpExpireNX:
				queued = append(queued, pipe.ExpireNX(ctx, cmd.Key, cmd.TTL))
			case ports.OpPTTL:
				queued = append(queued, pipe.PTTL(ctx, cmd.Key))
			default:
				return fmt.Errorf("unsupported pipeline op: %s", cmd.Op)
			}
		}

		// GET de chave ausente devolve redis.Nil pelo Exec; não é falha do lote.
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		results = results[:0]
		for _, cmder := range queued {
			res, err := decodeCmd(cmder)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func decodeCmd(cmder redis.Cmder) (ports.Result, error) {
	switch c := cmder.(type) {
	case *redis.StringCmd:
		v, err := c.Result()
		if errors.Is(err, redis.Nil) {
			return ports.Result{}, nil
		}
		if err != nil {
			return ports.Result{}, err
		}
		return ports.Result{Str: v, Found: true}, nil
	case *redis.IntCmd:
		v, err := c.Result()
		if err != nil {
			return ports.Result{}, err
		}
		return ports.Result{Int: v, Found: true}, nil
	case *redis.BoolCmd:
		v, err := c.Result()
		if err != nil {
			return ports.Result{}, err
		}
		return ports.Result{Ok: v, Found: true}, nil
	case *redis.DurationCmd:
		v, err := c.Result()
		if err != nil {
			return ports.Result{}, err
		}
		if v < 0 {
			// -1 sem TTL, -2 chave ausente.
			return ports.Result{}, nil
		}
		return ports.Result{TTL: v, Found: true}, nil
	default:
		return ports.Result{}, fmt.Errorf("unsupported pipeline result type %T", cmder)
	}
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.withRetry(ctx, func() error {
		return b.client.Ping(ctx).Err()
	})
}

func queueKey(queue domain.QueueName) string {
	return "queue:" + string(queue)
}

func (b *Backend) Push(ctx context.Context, queue domain.QueueName, payload []byte) error {
	return b.withRetry(ctx, func() error {
		return b.client.RPush(ctx, queueKey(queue), payload).Err()
	})
}

func (b *Backend) Pop(ctx context.Context, queue domain.QueueName) ([]byte, bool, error) {
	var payload []byte
	var found bool
	err := b.withRetry(ctx, func() error {
		v, err := b.client.LPop(ctx, queueKey(queue)).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		payload, found = v, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payload, found, nil
}

func (b *Backend) Length(ctx context.Context, queue domain.QueueName) (int64, error) {
	var length int64
	err := b.withRetry(ctx, func() error {
		v, err := b.client.LLen(ctx, queueKey(queue)).Result()
		if err != nil {
			return err
		}
		length = v
		return nil
	})
	return length, err
}

func (b *Backend) PushDead(ctx context.Context, payload []byte) error {
	return b.withRetry(ctx, func() error {
		return b.client.RPush(ctx, queueKey(domain.QueueDead), payload).Err()
	})
}

func (b *Backend) RecordRetry(ctx context.Context, entry domain.RetryEntry) error {
	member, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal retry entry: %w", err)
	}
	return b.withRetry(ctx, func() error {
		pipe := b.client.TxPipeline()
		pipe.ZAdd(ctx, retrySetKey, redis.Z{
			Score:  float64(entry.NextAttemptAt.Unix()),
			Member: member,
		})
		pipe.Expire(ctx, retrySetKey, retrySetTTL)
		_, err := pipe.Exec(ctx)
		return err
	})
}
