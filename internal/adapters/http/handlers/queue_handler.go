package handlers

import (
	"net/http"
	"strconv"

	"github.com/vklemos/alicerce/internal/core/ports"
)

// NewDrainHandler é o gatilho de drenagem das filas (endpoint interno chamado
// por cron). Devolve as contagens da passada.
func NewDrainHandler(queue ports.JobQueue, defaultBatch int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultBatch
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		report, err := queue.Drain(r.Context(), limit)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}
