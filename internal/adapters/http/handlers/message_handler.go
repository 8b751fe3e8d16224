package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
)

type sendMessageRequest struct {
	Channel        string `json:"channel"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// NewSendMessageHandler é a rota com cobrança por uso: valida o direito antes
// da unidade de trabalho (402 quando excedido) e só incrementa o contador
// depois do enfileiramento bem-sucedido.
func NewSendMessageHandler(meter ports.UsageMeter, queue ports.JobQueue, identify Identify, log *slog.Logger) http.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID, tier := identify(r)
		if userID == "" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		var req sendMessageRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := meter.EnforceOrFail(r.Context(), userID, tier, domain.MetricMessages); err != nil {
			var limitErr *domain.UsageLimitExceededError
			if errors.As(err, &limitErr) {
				writeJSON(w, http.StatusPaymentRequired, map[string]any{
					"error":  "usage limit exceeded",
					"metric": limitErr.Metric,
					"used":   limitErr.Used,
					"limit":  limitErr.Limit,
				})
				return
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		queued, err := queue.Enqueue(r.Context(), tier, domain.Job{
			Type:           domain.JobNotification,
			Source:         "api",
			IdempotencyKey: req.IdempotencyKey,
			Payload: domain.NotificationPayload{
				UserID:  userID,
				Channel: req.Channel,
				Message: req.Message,
			},
		})
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if queued {
			if _, err := meter.Increment(r.Context(), userID, domain.MetricMessages, 1); err != nil {
				// Falha de medição não desfaz o trabalho já aceito.
				log.Warn("failed to increment usage", "user_id", userID, "error", err)
			}
		}

		writeJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
	}
}
