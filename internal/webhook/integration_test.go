package webhook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/online-shop/internal/auth"
	"github.com/vasiliy-maslov/online-shop/internal/catalog"
	"github.com/vasiliy-maslov/online-shop/internal/db"
	"github.com/vasiliy-maslov/online-shop/internal/db/dbtest"
	"github.com/vasiliy-maslov/online-shop/internal/order"
	"github.com/vasiliy-maslov/online-shop/internal/payment"
	"github.com/vasiliy-maslov/online-shop/internal/webhook"
)

type shop struct {
	pg       *db.Postgres
	orders   order.Service
	payments payment.Service
	webhooks webhook.Service
	buyer    auth.Principal
}

func newShop(t *testing.T) *shop {
	t.Helper()

	pg := dbtest.Open(t)
	statuses := order.NewStatusRegistry(pg.SQL)
	products := catalog.NewRepository(pg.Pool)

	orders := order.NewService(order.NewRepository(pg.Pool), products, statuses, lifecycle, nil)
	buyerID, _ := dbtest.CreateUser(t, pg.Pool, false)

	return &shop{
		pg:       pg,
		orders:   orders,
		payments: payment.NewService(payment.NewRepository(pg.Pool), orders, nil, lifecycle, "http://shop.test", nil),
		webhooks: webhook.NewService(webhook.NewStore(pg.Pool), statuses, lifecycle, nil),
		buyer:    auth.Principal{UserID: buyerID},
	}
}

func (s *shop) placeOrder(t *testing.T, items ...order.ItemInput) *order.Order {
	t.Helper()

	o, err := s.orders.CreateOrder(context.Background(), s.buyer, order.CreateOrderInput{
		Items:         items,
		AddressToSend: "Baker Street 221b",
		Email:         "buyer@example.com",
		FirstName:     "John",
		LastName:      "Watson",
		MobileNumber:  "+4420700000",
	})
	require.NoError(t, err)
	return o
}

func successFor(p *payment.Payment) webhook.Notification {
	return webhook.Notification{
		ID:        p.PaymentServiceID.String(),
		Status:    webhook.StatusSucceeded,
		SecretKey: p.SecretKey.String(),
	}
}

func TestIntegration_PayOrderEndToEnd(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()

	shirt := dbtest.CreateProduct(t, s.pg.Pool, "Shirt", "5.28", 30)
	socks := dbtest.CreateProduct(t, s.pg.Pool, "Socks", "6.00", 15)

	o := s.placeOrder(t,
		order.ItemInput{ProductID: shirt, Amount: 2},
		order.ItemInput{ProductID: socks, Amount: 3},
	)
	assert.True(t, decimal.RequireFromString("28.56").Equal(o.FinalCost), "final cost %s", o.FinalCost)
	assert.Equal(t, "Created", o.Status)
	assert.Equal(t, 30, dbtest.ProductStock(t, s.pg.Pool, shirt), "creating an order must not reserve stock")

	p, err := s.payments.IssuePayment(ctx, s.buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://shop.test/payment/"+p.PaymentServiceID.String(), p.PaymentPageURL)

	again, err := s.payments.IssuePayment(ctx, s.buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, p.PaymentServiceID, again.PaymentServiceID)
	assert.Equal(t, p.SecretKey, again.SecretKey)

	_, err = s.payments.IssuePayment(ctx, auth.Principal{UserID: uuid.Must(uuid.NewV4())}, o.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	pending := successFor(p)
	pending.Status = "pending"
	_, err = s.webhooks.Reconcile(ctx, pending)
	assert.ErrorIs(t, err, webhook.ErrPaymentNotSuccessful)

	paid, err := s.webhooks.Reconcile(ctx, successFor(p))
	require.NoError(t, err)
	assert.Equal(t, "Paid", paid.Status)
	assert.Equal(t, 28, dbtest.ProductStock(t, s.pg.Pool, shirt))
	assert.Equal(t, 12, dbtest.ProductStock(t, s.pg.Pool, socks))

	_, err = s.webhooks.Reconcile(ctx, successFor(p))
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound, "replay must not find the consumed payment")
	assert.Equal(t, 28, dbtest.ProductStock(t, s.pg.Pool, shirt))
	assert.Equal(t, 12, dbtest.ProductStock(t, s.pg.Pool, socks))

	_, err = s.payments.IssuePayment(ctx, s.buyer, o.ID)
	assert.ErrorIs(t, err, payment.ErrAlreadyPaid)

	stored, err := s.orders.GetOrder(ctx, s.buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paid", stored.Status)
	assert.True(t, decimal.RequireFromString("28.56").Equal(stored.FinalCost))
}

func TestIntegration_OrderExceedingStock(t *testing.T) {
	s := newShop(t)

	shirt := dbtest.CreateProduct(t, s.pg.Pool, "Shirt", "5.28", 30)

	_, err := s.orders.CreateOrder(context.Background(), s.buyer, order.CreateOrderInput{
		Items:         []order.ItemInput{{ProductID: shirt, Amount: 100}},
		AddressToSend: "Baker Street 221b",
		Email:         "buyer@example.com",
		FirstName:     "John",
		LastName:      "Watson",
		MobileNumber:  "+4420700000",
	})

	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Equal(t, 30, dbtest.ProductStock(t, s.pg.Pool, shirt))
}

func TestIntegration_StockSoldOutBeforeWebhook_RollsBack(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()

	plenty := dbtest.CreateProduct(t, s.pg.Pool, "Hat", "1.00", 50)
	scarce := dbtest.CreateProduct(t, s.pg.Pool, "Scarf", "2.50", 10)

	o := s.placeOrder(t,
		order.ItemInput{ProductID: plenty, Amount: 5},
		order.ItemInput{ProductID: scarce, Amount: 10},
	)
	p, err := s.payments.IssuePayment(ctx, s.buyer, o.ID)
	require.NoError(t, err)

	_, err = s.pg.Pool.Exec(ctx, `UPDATE products SET amount_remaining = 4 WHERE id = $1`, scarce)
	require.NoError(t, err)

	_, err = s.webhooks.Reconcile(ctx, successFor(p))
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)

	assert.Equal(t, 50, dbtest.ProductStock(t, s.pg.Pool, plenty), "first item decrement must be rolled back")
	assert.Equal(t, 4, dbtest.ProductStock(t, s.pg.Pool, scarce))

	stored, err := s.orders.GetOrder(ctx, s.buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Created", stored.Status)

	again, err := s.payments.IssuePayment(ctx, s.buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, p.PaymentServiceID, again.PaymentServiceID, "payment must survive the failed webhook")
}

func TestIntegration_ConcurrentWebhooks_DecrementOnce(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()

	shirt := dbtest.CreateProduct(t, s.pg.Pool, "Shirt", "5.28", 30)
	o := s.placeOrder(t, order.ItemInput{ProductID: shirt, Amount: 2})
	p, err := s.payments.IssuePayment(ctx, s.buyer, o.ID)
	require.NoError(t, err)

	const deliveries = 4
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.webhooks.Reconcile(ctx, successFor(p))
		}(i)
	}
	wg.Wait()

	var succeeded, notFound int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, payment.ErrPaymentNotFound):
			notFound++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, deliveries-1, notFound)
	assert.Equal(t, 28, dbtest.ProductStock(t, s.pg.Pool, shirt))
}

func TestIntegration_ConcurrentIssuance_SinglePayment(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()

	shirt := dbtest.CreateProduct(t, s.pg.Pool, "Shirt", "5.28", 30)
	o := s.placeOrder(t, order.ItemInput{ProductID: shirt, Amount: 1})

	const callers = 5
	issued := make([]*payment.Payment, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := s.payments.IssuePayment(ctx, s.buyer, o.ID)
			assert.NoError(t, err)
			issued[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range issued {
		require.NotNil(t, p)
		assert.Equal(t, issued[0].PaymentServiceID, p.PaymentServiceID)
		assert.Equal(t, issued[0].SecretKey, p.SecretKey)
	}

	var count int
	require.NoError(t, s.pg.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE order_id = $1`, o.ID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIntegration_IssuanceRacingReconciliation_NoPaymentForPaidOrder(t *testing.T) {
	s := newShop(t)
	ctx := context.Background()

	shirt := dbtest.CreateProduct(t, s.pg.Pool, "Shirt", "5.28", 30)
	o := s.placeOrder(t, order.ItemInput{ProductID: shirt, Amount: 1})
	p, err := s.payments.IssuePayment(ctx, s.buyer, o.ID)
	require.NoError(t, err)

	paid, err := order.NewStatusRegistry(s.pg.SQL).Resolve(ctx, lifecycle.Paid)
	require.NoError(t, err)

	// Hold the reconciliation open: payment consumed and order paid, not yet committed.
	tx, err := s.pg.Pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	_, err = tx.Exec(ctx, `DELETE FROM payments WHERE id = $1`, p.ID)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `UPDATE orders SET status_id = $1 WHERE id = $2`, paid.ID, o.ID)
	require.NoError(t, err)

	late := &payment.Payment{
		ID:               uuid.Must(uuid.NewV4()),
		OrderID:          o.ID,
		PaymentServiceID: uuid.Must(uuid.NewV4()),
		SecretKey:        uuid.Must(uuid.NewV4()),
		PaymentPageURL:   "http://shop.test/payment/late",
	}
	done := make(chan error, 1)
	go func() {
		done <- payment.NewRepository(s.pg.Pool).Create(ctx, late, lifecycle.Created)
	}()

	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, <-done, payment.ErrAlreadyPaid)

	var count int
	require.NoError(t, s.pg.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE order_id = $1`, o.ID).Scan(&count))
	assert.Equal(t, 0, count)

	_, err = s.payments.IssuePayment(ctx, s.buyer, o.ID)
	assert.ErrorIs(t, err, payment.ErrAlreadyPaid)
}
