package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vasiliy-maslov/online-shop/internal/payment"
)

type PaymentPageResponse struct {
	Text string `json:"text"`
}

type PaymentHandler struct {
	service payment.Service
}

func NewPaymentHandler(service payment.Service) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Get("/order/{id}/pay", h.handleIssuePayment)
	router.Get("/payment/{payment_service_id}", h.handlePaymentPage)
}

func (h *PaymentHandler) handleIssuePayment(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	p, err := h.service.IssuePayment(r.Context(), principal, orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to issue payment")
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

// handlePaymentPage emulates the provider's page, hence 202.
func (h *PaymentHandler) handlePaymentPage(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	page, err := h.service.GetPaymentPage(r.Context(), principal, chi.URLParam(r, "payment_service_id"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to open payment page")
		return
	}

	respondWithJSON(w, http.StatusAccepted, PaymentPageResponse{Text: page.Text})
}
