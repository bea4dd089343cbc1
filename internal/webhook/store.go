package webhook

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/online-shop/internal/catalog"
	"github.com/vasiliy-maslov/online-shop/internal/db"
	"github.com/vasiliy-maslov/online-shop/internal/order"
	"github.com/vasiliy-maslov/online-shop/internal/payment"
)

// Repos are bound to a single transaction.
type Repos struct {
	Payments payment.Repository
	Orders   order.Repository
	Products catalog.Repository
}

// Store runs fn atomically: every write made through the given Repos is
// committed together or not at all.
type Store interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
}

type postgresStore struct {
	db db.Conn
}

func NewStore(conn db.Conn) Store {
	return &postgresStore{db: conn}
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(r Repos) error) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(Repos{
			Payments: payment.NewRepository(tx),
			Orders:   order.NewRepository(tx),
			Products: catalog.NewRepository(tx),
		})
	})
}
