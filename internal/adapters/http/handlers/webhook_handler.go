// Package handlers agrupa os handlers HTTP finos que consomem as decisões do
// núcleo.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vklemos/alicerce/internal/core/domain"
	"github.com/vklemos/alicerce/internal/core/ports"
	"github.com/vklemos/alicerce/internal/core/services"
)

const maxWebhookBody = 1 << 20

// NewWebhookHandler recebe entregas at-least-once, rejeita duplicatas via
// reivindicação de idempotência e enfileira o processamento. Duplicata não é
// erro: responde 200 com status "duplicate" para o provedor parar de reenviar.
func NewWebhookHandler(claimer ports.EventClaimer, queue ports.JobQueue, identify Identify) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		if source == "" {
			http.Error(w, "missing webhook source", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}

		eventID := domain.CanonicalEventID(strings.TrimSpace(r.Header.Get("X-Event-ID")), body)

		claim := claimer.Claim(r.Context(), source, eventID, services.DefaultClaimTTL)
		if !claim.Accepted {
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "event_id": eventID})
			return
		}

		_, tier := identify(r)
		queued, err := queue.Enqueue(r.Context(), tier, domain.Job{
			Type:   domain.JobWebhookDispatch,
			Source: source,
			Payload: domain.WebhookDispatchPayload{
				EventID: eventID,
				Body:    json.RawMessage(body),
			},
		})
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "accepted",
			"event_id": eventID,
			"queued":   queued,
		})
	}
}

// Identify resolve o usuário e o plano de uma requisição.
type Identify func(r *http.Request) (userID string, tier domain.Tier)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	return dec.Decode(dst)
}
