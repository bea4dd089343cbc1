package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/online-shop/internal/order"
)

type ProductRef struct {
	ID uuid.UUID `json:"id" validate:"required"`
}

type OrderItemRequest struct {
	Product ProductRef `json:"product" validate:"required"`
	Amount  int        `json:"amount" validate:"required,min=1,max=32767"`
}

type CreateOrderRequest struct {
	Items         []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	AddressToSend string             `json:"address_to_send" validate:"required,max=128"`
	MobileNumber  string             `json:"mobile_number" validate:"required,max=16"`
	FirstName     string             `json:"first_name" validate:"required,max=32"`
	LastName      string             `json:"last_name" validate:"required,max=32"`
	Email         string             `json:"email" validate:"required,email,max=32"`
}

func (req CreateOrderRequest) toInput() order.CreateOrderInput {
	items := make([]order.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.ItemInput{ProductID: it.Product.ID, Amount: it.Amount})
	}
	return order.CreateOrderInput{
		Items:         items,
		AddressToSend: req.AddressToSend,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		MobileNumber:  req.MobileNumber,
	}
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes expects router to sit behind the authentication middleware.
func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/order", h.handleCreateOrder)
	router.Get("/order/{id}", h.handleGetOrder)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	var requestPayload CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	createdOrder, err := h.service.CreateOrder(r.Context(), principal, requestPayload.toInput())
	if err != nil {
		respondWithServiceError(w, err, "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, createdOrder)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrAbort(w, r)
	if !ok {
		return
	}

	orderID, ok := orderIDFromURL(w, r)
	if !ok {
		return
	}

	foundOrder, err := h.service.GetOrder(r.Context(), principal, orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, foundOrder)
}

// orderIDFromURL treats a malformed id like an unknown route.
func orderIDFromURL(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("handler: failed to parse id parameter from URL")
		respondWithError(w, http.StatusNotFound, "Not found.")
		return uuid.Nil, false
	}
	return orderID, true
}
