package handlers

import (
	"net/http"
	"time"

	"github.com/nahidhasan98/netconf-relay/internal/models"
)

// HealthCheck handles liveness requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
	}

	// Add component details if requested
	if r.URL.Query().Get("detailed") == "true" {
		details := &models.HealthDetails{
			HealthResponse:        response,
			SignatureVerification: h.cfg.GitHub.VerifySignature,
			Notifiers:             h.notifiers,
		}
		if h.whatsAppStatus != nil {
			details.WhatsApp = h.whatsAppStatus()
		}
		h.writeJSON(w, details, http.StatusOK)
		return
	}

	h.writeJSON(w, &response, http.StatusOK)
}
