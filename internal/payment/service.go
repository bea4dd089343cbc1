package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/online-shop/internal/auth"
	"github.com/vasiliy-maslov/online-shop/internal/lock"
	"github.com/vasiliy-maslov/online-shop/internal/metrics"
	"github.com/vasiliy-maslov/online-shop/internal/order"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/vasiliy-maslov/online-shop/internal/payment")

type Service interface {
	// IssuePayment returns the live payment of an order, creating it on the
	// first call. Repeated calls return the same tokens.
	IssuePayment(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*Payment, error)
	GetPaymentPage(ctx context.Context, principal auth.Principal, paymentServiceID string) (*Page, error)
}

type service struct {
	payments    Repository
	orders      order.Service
	locker      lock.Locker
	lifecycle   order.Lifecycle
	pageBaseURL string
	metrics     *metrics.Metrics
	newToken    func() (uuid.UUID, error)
}

func NewService(payments Repository, orders order.Service, locker lock.Locker, lifecycle order.Lifecycle, pageBaseURL string, m *metrics.Metrics) Service {
	if locker == nil {
		locker = lock.NewNoop()
	}
	return &service{
		payments:    payments,
		orders:      orders,
		locker:      locker,
		lifecycle:   lifecycle,
		pageBaseURL: pageBaseURL,
		metrics:     m,
		newToken:    uuid.NewV4,
	}
}

func (s *service) IssuePayment(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (_ *Payment, err error) {
	ctx, span := tracer.Start(ctx, "payment.IssuePayment", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ord, err := s.orders.GetOrder(ctx, principal, orderID)
	if err != nil {
		return nil, err
	}

	existing, err := s.existingPayment(ctx, orderID)
	if err != nil || existing != nil {
		return existing, err
	}

	if !s.lifecycle.AwaitingPayment(ord.Status) {
		log.Warn().Stringer("order_id", orderID).Str("status", ord.Status).Msg("service: payment requested for order that is not awaiting payment")
		return nil, ErrAlreadyPaid
	}

	release, err := s.locker.Obtain(ctx, "payment:issue:order:"+orderID.String())
	if err != nil {
		// The unique order_id constraint still prevents a second payment row.
		log.Warn().Err(err).Stringer("order_id", orderID).Msg("service: issuing payment without lock")
		release = func() {}
	}
	defer release()

	existing, err = s.existingPayment(ctx, orderID)
	if err != nil || existing != nil {
		return existing, err
	}

	p, err := s.newPayment(orderID)
	if err != nil {
		return nil, err
	}

	if err := s.payments.Create(ctx, p, s.lifecycle.Created); err != nil {
		if errors.Is(err, ErrAlreadyPaid) {
			return nil, ErrAlreadyPaid
		}
		if errors.Is(err, ErrPaymentExists) {
			existing, getErr := s.existingPayment(ctx, orderID)
			if getErr != nil {
				return nil, getErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to create payment in repository")
		return nil, fmt.Errorf("service: failed to create payment: %w", err)
	}

	s.metrics.PaymentIssued("created")
	log.Info().Stringer("order_id", orderID).Stringer("payment_service_id", p.PaymentServiceID).Msg("service: payment issued")

	return p, nil
}

// existingPayment returns (nil, nil) when the order has no live payment.
func (s *service) existingPayment(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	p, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, nil
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to look up payment for order")
		return nil, fmt.Errorf("service: failed to look up payment: %w", err)
	}

	s.metrics.PaymentIssued("existing")
	return p, nil
}

func (s *service) newPayment(orderID uuid.UUID) (*Payment, error) {
	id, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate payment id: %w", err)
	}
	serviceID, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate payment service id: %w", err)
	}
	secret, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate secret key: %w", err)
	}

	return &Payment{
		ID:               id,
		OrderID:          orderID,
		PaymentServiceID: serviceID,
		SecretKey:        secret,
		PaymentPageURL:   PageURL(s.pageBaseURL, serviceID),
	}, nil
}

func (s *service) GetPaymentPage(ctx context.Context, principal auth.Principal, paymentServiceID string) (*Page, error) {
	serviceID, err := uuid.FromString(paymentServiceID)
	if err != nil {
		return nil, s.missingPayment(principal, paymentServiceID)
	}

	p, err := s.payments.GetByServiceID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, s.missingPayment(principal, paymentServiceID)
		}
		log.Error().Err(err).Stringer("payment_service_id", serviceID).Msg("service: failed to fetch payment")
		return nil, fmt.Errorf("service: failed to fetch payment: %w", err)
	}

	if _, err := s.orders.GetOrder(ctx, principal, p.OrderID); err != nil {
		return nil, err
	}

	return &Page{
		OrderID: p.OrderID,
		Text: fmt.Sprintf("Congrats, you are on the payment page! Since we do not use any real payment service, "+
			"you should send post request to /webhooks by yourself. "+
			"Use data that you receive when you achieve /order/%s/pay endpoint for it.", p.OrderID),
	}, nil
}

// missingPayment hides the existence of payments from non-staff callers.
func (s *service) missingPayment(principal auth.Principal, paymentServiceID string) error {
	if !principal.IsStaff {
		log.Warn().Str("payment_service_id", paymentServiceID).Stringer("user_id", principal.UserID).Msg("service: access to unknown payment denied")
		return auth.ErrForbidden
	}
	return fmt.Errorf("%w: payment with ID %s does not exist", ErrPaymentNotFound, paymentServiceID)
}
