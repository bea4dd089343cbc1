package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/online-shop/internal/catalog"
	"github.com/vasiliy-maslov/online-shop/internal/metrics"
	"github.com/vasiliy-maslov/online-shop/internal/order"
	"github.com/vasiliy-maslov/online-shop/internal/payment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StatusSucceeded is the status the emulated provider sends for a completed payment.
const StatusSucceeded = "successed"

var (
	ErrMissingField         = errors.New("missing field")
	ErrPaymentNotSuccessful = errors.New("payment was not successful")
	ErrInvalidSecret        = errors.New("invalid secret key")
)

var tracer = otel.Tracer("github.com/vasiliy-maslov/online-shop/internal/webhook")

// Notification is the payment provider callback.
type Notification struct {
	ID        string
	Status    string
	SecretKey string
}

type Service interface {
	// Reconcile applies a successful payment notification: stock is decremented,
	// the payment is consumed and the order is marked paid, all in one
	// transaction. A replayed notification finds no payment and fails with
	// payment.ErrPaymentNotFound.
	Reconcile(ctx context.Context, n Notification) (*order.Order, error)
}

type service struct {
	store     Store
	statuses  order.StatusRegistry
	lifecycle order.Lifecycle
	metrics   *metrics.Metrics
}

func NewService(store Store, statuses order.StatusRegistry, lifecycle order.Lifecycle, m *metrics.Metrics) Service {
	return &service{
		store:     store,
		statuses:  statuses,
		lifecycle: lifecycle,
		metrics:   m,
	}
}

func (s *service) Reconcile(ctx context.Context, n Notification) (_ *order.Order, err error) {
	ctx, span := tracer.Start(ctx, "webhook.Reconcile", trace.WithAttributes(attribute.String("payment.service_id", n.ID)))
	defer func() {
		s.metrics.WebhookProcessed(resultLabel(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := validate(n); err != nil {
		return nil, err
	}

	if n.Status != StatusSucceeded {
		log.Warn().Str("payment_service_id", n.ID).Str("status", n.Status).Msg("service: webhook reports unsuccessful payment")
		return nil, ErrPaymentNotSuccessful
	}

	serviceID, err := uuid.FromString(n.ID)
	if err != nil {
		return nil, notFound(n.ID)
	}

	paid, err := s.statuses.Resolve(ctx, s.lifecycle.Paid)
	if err != nil {
		log.Error().Err(err).Str("status", s.lifecycle.Paid).Msg("service: failed to resolve paid status")
		return nil, fmt.Errorf("service: failed to resolve paid status: %w", err)
	}

	var result *order.Order
	err = s.store.WithinTx(ctx, func(r Repos) error {
		// Concurrent deliveries for the same payment queue up on this row lock.
		p, err := r.Payments.LockByServiceID(ctx, serviceID)
		if err != nil {
			if errors.Is(err, payment.ErrPaymentNotFound) {
				return notFound(n.ID)
			}
			return err
		}

		if subtle.ConstantTimeCompare([]byte(p.SecretKey.String()), []byte(n.SecretKey)) != 1 {
			log.Warn().Stringer("payment_service_id", serviceID).Stringer("order_id", p.OrderID).Msg("service: webhook secret key mismatch")
			return ErrInvalidSecret
		}

		ord, err := r.Orders.GetOrderByID(ctx, p.OrderID)
		if err != nil {
			return err
		}

		if !s.lifecycle.CanTransition(ord.Status, paid.Name) {
			log.Error().Stringer("order_id", ord.ID).Str("current_status", ord.Status).Str("new_status", paid.Name).Msg("service: order with live payment cannot be marked paid")
			return fmt.Errorf("%w: from %s to %s", order.ErrInvalidStatusTransition, ord.Status, paid.Name)
		}

		for _, item := range ord.Items {
			if err := r.Products.DecrementStock(ctx, item.ProductID, item.Amount); err != nil {
				if errors.Is(err, catalog.ErrInsufficientStock) {
					log.Warn().Stringer("order_id", ord.ID).Stringer("product_id", item.ProductID).Int("amount", item.Amount).Msg("service: stock exhausted before payment")
					return fmt.Errorf("%w: the quantity of product with ID %s is not enough to complete the order",
						catalog.ErrInsufficientStock, item.ProductID)
				}
				return err
			}
		}

		if err := r.Payments.Delete(ctx, p.ID); err != nil {
			return err
		}

		if err := r.Orders.UpdateOrderStatus(ctx, ord.ID, paid.ID); err != nil {
			return err
		}

		ord.StatusID = paid.ID
		ord.Status = paid.Name
		result = ord
		return nil
	})
	if err != nil {
		if !isClientError(err) {
			log.Error().Err(err).Str("payment_service_id", n.ID).Msg("service: failed to reconcile payment")
			return nil, fmt.Errorf("service: failed to reconcile payment: %w", err)
		}
		return nil, err
	}

	log.Info().Stringer("order_id", result.ID).Stringer("payment_service_id", serviceID).Msg("service: payment reconciled, order paid")

	return result, nil
}

func validate(n Notification) error {
	switch {
	case n.ID == "":
		return fmt.Errorf("%w: field 'id' was not provided", ErrMissingField)
	case n.Status == "":
		return fmt.Errorf("%w: field 'status' was not provided", ErrMissingField)
	case n.SecretKey == "":
		return fmt.Errorf("%w: field 'secret_key' was not provided", ErrMissingField)
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: payment with ID %s does not exist", payment.ErrPaymentNotFound, id)
}

func isClientError(err error) bool {
	return errors.Is(err, payment.ErrPaymentNotFound) ||
		errors.Is(err, ErrInvalidSecret) ||
		errors.Is(err, catalog.ErrInsufficientStock) ||
		errors.Is(err, catalog.ErrProductNotFound)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "paid"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrPaymentNotSuccessful):
		return "not_successful"
	case errors.Is(err, payment.ErrPaymentNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidSecret):
		return "invalid_secret"
	case errors.Is(err, catalog.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, catalog.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, order.ErrInvalidStatusTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
