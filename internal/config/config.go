// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/vklemos/alicerce/internal/core/domain"
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Queue  QueueConfig
	Policy domain.PolicyTable
}

type ServerConfig struct {
	Port string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Strict faz a ausência de REDIS_ADDR/REDIS_PASSWORD virar erro de
	// inicialização em vez de backend desabilitado.
	Strict bool
}

type QueueConfig struct {
	DrainBatch int
}

// Load lê o .env (quando presente) e resolve a configuração uma única vez por
// processo.
func Load() (Config, error) {
	_ = godotenv.Load()

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	strict, err := strconv.ParseBool(getEnv("BACKEND_STRICT", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid BACKEND_STRICT: %w", err)
	}

	drainBatch, err := strconv.Atoi(getEnv("QUEUE_DRAIN_BATCH", "25"))
	if err != nil || drainBatch <= 0 {
		return Config{}, fmt.Errorf("invalid QUEUE_DRAIN_BATCH: %q", getEnv("QUEUE_DRAIN_BATCH", "25"))
	}

	policy, err := LoadPolicy(os.Getenv("POLICY_FILE"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server: ServerConfig{Port: getEnv("SERVER_PORT", "8080")},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
			Strict:   strict,
		},
		Queue:  QueueConfig{DrainBatch: drainBatch},
		Policy: policy,
	}, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
