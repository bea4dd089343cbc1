package catalog

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("not enough products in stock")
)

type Product struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Price           decimal.Decimal `json:"price" db:"price"`
	AmountRemaining int             `json:"amount_remaining" db:"amount_remaining"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
