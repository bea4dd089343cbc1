package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/online-shop/internal/db"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	// DecrementStock subtracts amount from the product's stock only if enough
	// is left, in a single statement.
	DecrementStock(ctx context.Context, id uuid.UUID, amount int) error
}

type postgresRepository struct {
	db db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &postgresRepository{db: q}
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `
		SELECT id, name, price::text, amount_remaining, created_at
		FROM products
		WHERE id = $1
	`

	var (
		p     Product
		price string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&price,
		&p.AmountRemaining,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id, err)
	}

	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("repository: invalid price %q for product %s: %w", price, id, err)
	}

	return &p, nil
}

func (r *postgresRepository) DecrementStock(ctx context.Context, id uuid.UUID, amount int) error {
	query := `
		UPDATE products
		SET amount_remaining = amount_remaining - $1
		WHERE id = $2 AND amount_remaining >= $1
	`

	cmdTag, err := r.db.Exec(ctx, query, amount, id)
	if err != nil {
		log.Error().Err(err).Stringer("product_id", id).Int("amount", amount).Msg("repository: failed to decrement stock")
		return fmt.Errorf("repository: failed to decrement stock for product %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		// Zero rows: the product is gone or its stock is too low.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: product %s", ErrInsufficientStock, id)
	}

	return nil
}
