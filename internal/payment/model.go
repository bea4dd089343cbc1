package payment

import (
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrPaymentExists   = errors.New("payment for this order already exists")
	ErrAlreadyPaid     = errors.New("this order is already paid")
)

// Payment is an outstanding request for funds against an unpaid order. It is
// deleted once a successful webhook has been reconciled.
type Payment struct {
	ID               uuid.UUID `json:"id"`
	OrderID          uuid.UUID `json:"order_id"`
	PaymentServiceID uuid.UUID `json:"payment_service_id"`
	SecretKey        uuid.UUID `json:"secret_key"`
	PaymentPageURL   string    `json:"payment_page_url"`
	CreatedAt        time.Time `json:"created_at"`
}

// PageURL derives the payment page location from the payment service id.
func PageURL(baseURL string, paymentServiceID uuid.UUID) string {
	return strings.TrimRight(baseURL, "/") + "/payment/" + paymentServiceID.String()
}

// Page is what the emulated payment provider shows to the buyer.
type Page struct {
	OrderID uuid.UUID
	Text    string
}
