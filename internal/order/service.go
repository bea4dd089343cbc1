package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/online-shop/internal/auth"
	"github.com/vasiliy-maslov/online-shop/internal/catalog"
	"github.com/vasiliy-maslov/online-shop/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidOrder = errors.New("invalid order")

var tracer = otel.Tracer("github.com/vasiliy-maslov/online-shop/internal/order")

type Service interface {
	CreateOrder(ctx context.Context, principal auth.Principal, input CreateOrderInput) (*Order, error)
	// GetOrder returns the order if the principal owns it or is staff. A
	// non-staff caller gets auth.ErrForbidden even when the order does not exist.
	GetOrder(ctx context.Context, principal auth.Principal, id uuid.UUID) (*Order, error)
}

type service struct {
	orders    Repository
	products  catalog.Repository
	statuses  StatusRegistry
	lifecycle Lifecycle
	metrics   *metrics.Metrics
}

func NewService(orders Repository, products catalog.Repository, statuses StatusRegistry, lifecycle Lifecycle, m *metrics.Metrics) Service {
	return &service{
		orders:    orders,
		products:  products,
		statuses:  statuses,
		lifecycle: lifecycle,
		metrics:   m,
	}
}

func (s *service) CreateOrder(ctx context.Context, principal auth.Principal, input CreateOrderInput) (_ *Order, err error) {
	ctx, span := tracer.Start(ctx, "order.CreateOrder", trace.WithAttributes(attribute.Int("order.items", len(input.Items))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := validateInput(input); err != nil {
		log.Warn().Err(err).Stringer("customer_id", principal.UserID).Msg("service: rejected order input")
		return nil, err
	}

	items := make([]OrderItem, 0, len(input.Items))
	finalCost := decimal.Zero
	requested := make(map[uuid.UUID]int, len(input.Items))

	// Products are fetched one by one so that every unknown id is reported.
	for _, in := range input.Items {
		product, err := s.products.GetByID(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				log.Warn().Stringer("product_id", in.ProductID).Msg("service: order references unknown product")
				return nil, err
			}
			log.Error().Err(err).Stringer("product_id", in.ProductID).Msg("service: failed to fetch product")
			return nil, fmt.Errorf("service: failed to fetch product %s: %w", in.ProductID, err)
		}

		// Repeated lines of one product draw on the same stock.
		requested[product.ID] += in.Amount
		if requested[product.ID] > product.AmountRemaining {
			log.Warn().
				Stringer("product_id", product.ID).
				Int("requested", requested[product.ID]).
				Int("remaining", product.AmountRemaining).
				Msg("service: not enough stock for order")
			return nil, fmt.Errorf("%w: the quantity of product with ID %s is not enough to add this amount to the order",
				catalog.ErrInsufficientStock, product.ID)
		}

		finalCost = finalCost.Add(LineCost(product.Price, in.Amount))
		items = append(items, OrderItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductPrice: product.Price,
			Amount:       in.Amount,
		})
	}

	status, err := s.statuses.Resolve(ctx, s.lifecycle.Created)
	if err != nil {
		log.Error().Err(err).Str("status", s.lifecycle.Created).Msg("service: failed to resolve initial order status")
		return nil, fmt.Errorf("service: failed to resolve initial status: %w", err)
	}

	order := &Order{
		CustomerID:    uuid.NullUUID{UUID: principal.UserID, Valid: principal.UserID != uuid.Nil},
		FinalCost:     finalCost,
		StatusID:      status.ID,
		Status:        status.Name,
		AddressToSend: input.AddressToSend,
		Email:         input.Email,
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		MobileNumber:  input.MobileNumber,
		Items:         items,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	s.metrics.OrderCreated()
	span.SetAttributes(attribute.String("order.id", order.ID.String()))
	log.Info().
		Stringer("order_id", order.ID).
		Stringer("customer_id", principal.UserID).
		Str("final_cost", order.FinalCost.StringFixed(2)).
		Msg("service: order created successfully")

	return order, nil
}

func (s *service) GetOrder(ctx context.Context, principal auth.Principal, id uuid.UUID) (*Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			if !principal.IsStaff {
				log.Warn().Stringer("order_id", id).Stringer("user_id", principal.UserID).Msg("service: access to unknown order denied")
				return nil, auth.ErrForbidden
			}
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	if !principal.CanAccess(order.CustomerID) {
		log.Warn().Stringer("order_id", id).Stringer("user_id", principal.UserID).Msg("service: access to foreign order denied")
		return nil, auth.ErrForbidden
	}

	return order, nil
}

// LineCost is price times amount rounded to cents. Each line is rounded on
// its own before lines are summed.
func LineCost(price decimal.Decimal, amount int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(amount))).Round(2)
}

func validateInput(input CreateOrderInput) error {
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: field 'items' must contain at least one product", ErrInvalidOrder)
	}

	fields := []struct {
		name  string
		value string
	}{
		{"address_to_send", input.AddressToSend},
		{"mobile_number", input.MobileNumber},
		{"first_name", input.FirstName},
		{"last_name", input.LastName},
		{"email", input.Email},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: field '%s' was not provided", ErrInvalidOrder, f.name)
		}
	}

	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return fmt.Errorf("%w: product id in order item cannot be empty", ErrInvalidOrder)
		}
		if item.Amount < 1 || item.Amount > MaxItemAmount {
			return fmt.Errorf("%w: amount for product %s must be between 1 and %d", ErrInvalidOrder, item.ProductID, MaxItemAmount)
		}
	}

	return nil
}
