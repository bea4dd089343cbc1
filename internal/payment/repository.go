package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/online-shop/internal/db"
)

type Repository interface {
	// Create inserts the payment only while the order is in awaitingStatus.
	// It returns ErrAlreadyPaid when the order has moved on.
	Create(ctx context.Context, payment *Payment, awaitingStatus string) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	GetByServiceID(ctx context.Context, serviceID uuid.UUID) (*Payment, error)
	// LockByServiceID reads the payment with a row lock. It must run inside a
	// transaction.
	LockByServiceID(ctx context.Context, serviceID uuid.UUID) (*Payment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	db db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &postgresRepository{db: q}
}

const selectPayment = `
	SELECT id, order_id, payment_service_id, secret_key, payment_page_url, created_at
	FROM payments
`

func (r *postgresRepository) Create(ctx context.Context, p *Payment, awaitingStatus string) error {
	// The order row lock waits for an in-flight reconciliation and rereads the
	// status it committed.
	query := `
		WITH awaiting AS (
			SELECT o.id
			FROM orders o
			JOIN order_statuses s ON s.id = o.status_id
			WHERE o.id = $2::uuid AND s.name = $6::text
			FOR UPDATE OF o
		)
		INSERT INTO payments (id, order_id, payment_service_id, secret_key, payment_page_url)
		SELECT $1::uuid, awaiting.id, $3::uuid, $4::uuid, $5::text
		FROM awaiting
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		p.ID,
		p.OrderID,
		p.PaymentServiceID,
		p.SecretKey,
		p.PaymentPageURL,
		awaitingStatus,
	).Scan(&p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn().Stringer("order_id", p.OrderID).Str("awaiting_status", awaitingStatus).Msg("repository: order is no longer awaiting payment")
			return ErrAlreadyPaid
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			log.Warn().Stringer("order_id", p.OrderID).Str("constraint", pgErr.ConstraintName).Msg("repository: payment already exists for order")
			return ErrPaymentExists
		}
		return fmt.Errorf("repository: failed to insert payment for order %s: %w", p.OrderID, err)
	}

	return nil
}

func (r *postgresRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	return r.getOne(ctx, selectPayment+" WHERE order_id = $1", orderID)
}

func (r *postgresRepository) GetByServiceID(ctx context.Context, serviceID uuid.UUID) (*Payment, error) {
	return r.getOne(ctx, selectPayment+" WHERE payment_service_id = $1", serviceID)
}

func (r *postgresRepository) LockByServiceID(ctx context.Context, serviceID uuid.UUID) (*Payment, error) {
	return r.getOne(ctx, selectPayment+" WHERE payment_service_id = $1 FOR UPDATE", serviceID)
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete payment %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *postgresRepository) getOne(ctx context.Context, query string, arg uuid.UUID) (*Payment, error) {
	var p Payment
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.OrderID,
		&p.PaymentServiceID,
		&p.SecretKey,
		&p.PaymentPageURL,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment by %s: %w", arg, err)
	}

	return &p, nil
}
