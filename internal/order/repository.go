package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/online-shop/internal/db"
)

var ErrOrderNotFound = errors.New("order not found")

type Repository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, statusID int) error
}

type postgresRepository struct {
	db db.Conn
}

// NewRepository accepts a pool or an open transaction.
func NewRepository(conn db.Conn) Repository {
	return &postgresRepository{db: conn}
}

// CreateOrder inserts the order row and all of its items atomically. IDs and
// the creation time are written back into order.
func (r *postgresRepository) CreateOrder(ctx context.Context, order *Order) error {
	orderID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate order ID: %w", err)
	}
	createdAt := time.Now().UTC()

	err = db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		queryOrder := `
			INSERT INTO orders (id, customer_id, final_cost, status_id, address_to_send, email, first_name, last_name, mobile_number, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		if _, err := tx.Exec(ctx, queryOrder,
			orderID,
			order.CustomerID,
			order.FinalCost.StringFixed(2),
			order.StatusID,
			order.AddressToSend,
			order.Email,
			order.FirstName,
			order.LastName,
			order.MobileNumber,
			createdAt,
		); err != nil {
			return fmt.Errorf("repository: failed to insert order: %w", err)
		}

		queryItem := `
			INSERT INTO order_items (id, order_id, product_id, amount)
			VALUES ($1, $2, $3, $4)
		`
		for i := range order.Items {
			item := &order.Items[i]

			itemID, err := uuid.NewV4()
			if err != nil {
				return fmt.Errorf("repository: failed to generate order item ID: %w", err)
			}

			if _, err := tx.Exec(ctx, queryItem, itemID, orderID, item.ProductID, item.Amount); err != nil {
				return fmt.Errorf("repository: failed to insert order item for order %s: %w", orderID, err)
			}

			item.ID = itemID
			item.OrderID = orderID
		}

		return nil
	})
	if err != nil {
		log.Warn().Err(err).Stringer("order_id_attempted", orderID).Msg("repository: create order rolled back")
		return err
	}

	order.ID = orderID
	order.CreatedAt = createdAt

	return nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	queryOrder := `
		SELECT o.id, o.customer_id, o.final_cost::text, o.status_id, s.name,
		       o.address_to_send, o.email, o.first_name, o.last_name, o.mobile_number, o.created_at
		FROM orders o
		JOIN order_statuses s ON s.id = o.status_id
		WHERE o.id = $1
	`

	var (
		order     Order
		finalCost string
	)
	err := r.db.QueryRow(ctx, queryOrder, orderID).Scan(
		&order.ID,
		&order.CustomerID,
		&finalCost,
		&order.StatusID,
		&order.Status,
		&order.AddressToSend,
		&order.Email,
		&order.FirstName,
		&order.LastName,
		&order.MobileNumber,
		&order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	if order.FinalCost, err = decimal.NewFromString(finalCost); err != nil {
		return nil, fmt.Errorf("repository: invalid final cost %q for order %s: %w", finalCost, orderID, err)
	}

	queryOrderItems := `
		SELECT i.id, i.order_id, i.product_id, p.name, p.price::text, i.amount
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY p.name, i.id
	`

	rows, err := r.db.Query(ctx, queryOrderItems, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]OrderItem, 0)
	for rows.Next() {
		var (
			item  OrderItem
			price string
		)
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&price,
			&item.Amount,
		); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %s: %w", orderID, err)
		}
		if item.ProductPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("repository: invalid price %q for product %s: %w", price, item.ProductID, err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %s: %w", orderID, err)
	}

	order.Items = items

	return &order, nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, statusID int) error {
	query := `
		UPDATE orders
		SET status_id = $1
		WHERE id = $2
	`

	cmdTag, err := r.db.Exec(ctx, query, statusID, orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Int("status_id", statusID).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("order_id", orderID).Int("status_id", statusID).Msg("repository: order not found for status update")
		return ErrOrderNotFound
	}

	return nil
}
