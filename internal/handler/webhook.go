package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/online-shop/internal/webhook"
)

type WebhookMetadata struct {
	SecretKey string `json:"secret_key"`
}

// WebhookRequest is decoded leniently: providers add fields over time and
// missing ones are reported by the reconciler.
type WebhookRequest struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Metadata WebhookMetadata `json:"metadata"`
}

type WebhookHandler struct {
	service webhook.Service
}

func NewWebhookHandler(service webhook.Service) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// RegisterRoutes mounts the unauthenticated provider callback.
func (h *WebhookHandler) RegisterRoutes(router chi.Router) {
	router.Post("/webhooks", h.handleWebhook)
}

func (h *WebhookHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var requestPayload WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&requestPayload); err != nil {
		log.Warn().Err(err).Msg("handler: failed to decode webhook body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return
	}

	paidOrder, err := h.service.Reconcile(r.Context(), webhook.Notification{
		ID:        requestPayload.ID,
		Status:    requestPayload.Status,
		SecretKey: requestPayload.Metadata.SecretKey,
	})
	if err != nil {
		respondWithServiceError(w, err, "Failed to process webhook")
		return
	}

	respondWithJSON(w, http.StatusAccepted, paidOrder)
}
