package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpHandlers "github.com/vklemos/alicerce/internal/adapters/http/handlers"
	httpMiddleware "github.com/vklemos/alicerce/internal/adapters/http/middleware"
	"github.com/vklemos/alicerce/internal/adapters/storage/memory"
	redisbackend "github.com/vklemos/alicerce/internal/adapters/storage/redis"
	"github.com/vklemos/alicerce/internal/config"
	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
	"github.com/vklemos/alicerce/internal/core/services"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	backend, err := redisbackend.New(redisbackend.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Strict:   cfg.Redis.Strict,
	})
	if err != nil {
		log.Error("failed to init key-value backend", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("failed to close backend", "error", err)
		}
	}()

	if !backend.Enabled() {
		log.Warn("key-value backend disabled; running with in-process store only")
	}

	mem := memory.New()

	metrics, err := services.NewMetricsService(backend, mem, log)
	if err != nil {
		log.Error("failed to create metrics service", "error", err)
		os.Exit(1)
	}
	defer func() { _ = metrics.Close() }()

	limiter, err := services.NewRateLimiterService(backend, mem, cfg.Policy, metrics, log)
	if err != nil {
		log.Error("failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	claimer, err := services.NewIdempotencyService(backend, mem, log)
	if err != nil {
		log.Error("failed to create idempotency service", "error", err)
		os.Exit(1)
	}

	meter, err := services.NewUsageService(backend, mem, cfg.Policy, log)
	if err != nil {
		log.Error("failed to create usage meter", "error", err)
		os.Exit(1)
	}

	queue, err := services.NewQueueService(backend, mem, claimer, metrics, log)
	if err != nil {
		log.Error("failed to create queue", "error", err)
		os.Exit(1)
	}
	registerJobHandlers(queue, metrics, log)

	r := chi.NewRouter()

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(httpMiddleware.NewRateLimiterMiddleware(limiter, "webhooks", 120, time.Minute))
		r.Post("/{source}", httpHandlers.NewWebhookHandler(claimer, queue, identifyFromHeaders))
	})

	r.Route("/v1/messages", func(r chi.Router) {
		r.Use(httpMiddleware.NewTierRateLimiterMiddleware(limiter, domain.RouteMessages, httpMiddleware.Identify(identifyFromHeaders)))
		r.Post("/", httpHandlers.NewSendMessageHandler(meter, queue, identifyFromHeaders, log))
	})

	r.Route("/v1/usage", func(r chi.Router) {
		r.Use(httpMiddleware.NewTierRateLimiterMiddleware(limiter, domain.RouteAccount, httpMiddleware.Identify(identifyFromHeaders)))
		r.Get("/", httpHandlers.NewUsageHandler(meter, identifyFromHeaders))
	})

	r.Post("/internal/queue/drain", httpHandlers.NewDrainHandler(queue, cfg.Queue.DrainBatch))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	log.Info("server listening", "port", cfg.Server.Port, "backend_enabled", backend.Enabled())

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
	}
}

// identifyFromHeaders consome a identidade resolvida pelo gateway de
// autenticação upstream. Plano desconhecido cai no free.
func identifyFromHeaders(r *http.Request) (string, domain.Tier) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	tier := domain.Tier(strings.TrimSpace(strings.ToLower(r.Header.Get("X-User-Tier"))))
	switch tier {
	case domain.TierBasic, domain.TierPremium, domain.TierAgentGFull:
		return userID, tier
	default:
		return userID, domain.TierFree
	}
}

// registerJobHandlers liga os tipos de job aos processadores. Os
// processadores reais são colaboradores externos; os daqui só registram a
// passagem para fins de contagem.
func registerJobHandlers(queue *services.QueueService, metrics ports.MetricsRecorder, log *slog.Logger) {
	queue.Register(domain.JobWebhookDispatch, func(ctx context.Context, job domain.Job) error {
		payload, ok := job.Payload.(domain.WebhookDispatchPayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
		}
		log.Info("dispatching webhook event", "job_id", job.ID, "source", job.Source, "event_id", payload.EventID)
		metrics.Increment("webhook_events_dispatched", 1)
		return nil
	})

	queue.Register(domain.JobMediaProcess, func(ctx context.Context, job domain.Job) error {
		payload, ok := job.Payload.(domain.MediaProcessPayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
		}
		log.Info("processing media", "job_id", job.ID, "media_id", payload.MediaID, "operation", payload.Operation)
		return nil
	})

	queue.Register(domain.JobNotification, func(ctx context.Context, job domain.Job) error {
		payload, ok := job.Payload.(domain.NotificationPayload)
		if !ok {
			return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
		}
		log.Info("delivering notification", "job_id", job.ID, "user_id", payload.UserID, "channel", payload.Channel)
		metrics.Increment("notifications_delivered", 1)
		return nil
	})
}
