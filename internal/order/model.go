package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// MaxItemAmount bounds a single line quantity to the int16 range.
const MaxItemAmount = 32767

type Status struct {
	ID   int    `db:"id"`
	Name string `db:"name"`
}

type OrderItem struct {
	ID           uuid.UUID       `json:"id"`
	OrderID      uuid.UUID       `json:"order_id"`
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Amount       int             `json:"amount"`
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    uuid.NullUUID   `json:"customer_id"`
	FinalCost     decimal.Decimal `json:"final_cost"`
	StatusID      int             `json:"-"`
	Status        string          `json:"status"`
	AddressToSend string          `json:"address_to_send"`
	Email         string          `json:"email"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	MobileNumber  string          `json:"mobile_number"`
	CreatedAt     time.Time       `json:"created"`
	Items         []OrderItem     `json:"items"`
}

type ItemInput struct {
	ProductID uuid.UUID
	Amount    int
}

type CreateOrderInput struct {
	Items         []ItemInput
	AddressToSend string
	Email         string
	FirstName     string
	LastName      string
	MobileNumber  string
}
