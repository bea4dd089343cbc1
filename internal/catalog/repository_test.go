package catalog_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/online-shop/internal/catalog"
	"github.com/vasiliy-maslov/online-shop/internal/db/dbtest"
)

func TestRepository_GetByID(t *testing.T) {
	pg := dbtest.Open(t)
	repo := catalog.NewRepository(pg.Pool)
	ctx := context.Background()

	id := dbtest.CreateProduct(t, pg.Pool, "Shirt", "5.28", 30)

	p, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Shirt", p.Name)
	assert.True(t, decimal.RequireFromString("5.28").Equal(p.Price))
	assert.Equal(t, 30, p.AmountRemaining)

	_, err = repo.GetByID(ctx, uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestRepository_DecrementStock(t *testing.T) {
	pg := dbtest.Open(t)
	repo := catalog.NewRepository(pg.Pool)
	ctx := context.Background()

	tests := []struct {
		name      string
		stock     int
		amount    int
		wantErrIs error
		wantStock int
	}{
		{name: "partial", stock: 30, amount: 2, wantStock: 28},
		{name: "exact", stock: 3, amount: 3, wantStock: 0},
		{name: "too_many", stock: 3, amount: 4, wantErrIs: catalog.ErrInsufficientStock, wantStock: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := dbtest.CreateProduct(t, pg.Pool, "Item", "1.00", tt.stock)

			err := repo.DecrementStock(ctx, id, tt.amount)

			if tt.wantErrIs != nil {
				assert.ErrorIs(t, err, tt.wantErrIs)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStock, dbtest.ProductStock(t, pg.Pool, id))
		})
	}

	t.Run("unknown_product", func(t *testing.T) {
		err := repo.DecrementStock(ctx, uuid.Must(uuid.NewV4()), 1)
		assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	})
}
