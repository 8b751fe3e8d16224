package handlers

import (
	"net/http"

	"github.com/vklemos/alicerce/internal/core/ports"
)

// NewUsageHandler devolve o snapshot de uso do usuário autenticado.
func NewUsageHandler(meter ports.UsageMeter, identify Identify) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := identify(r)
		if userID == "" {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		snapshot, err := meter.Read(r.Context(), userID)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, snapshot)
	}
}
