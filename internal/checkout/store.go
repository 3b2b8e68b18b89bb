package checkout

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/cart"
	"github.com/noah-isme/backend-b2b/internal/customer"
	"github.com/noah-isme/backend-b2b/internal/db"
	"github.com/noah-isme/backend-b2b/internal/order"
)

// PGStore composes the customer, order and cart queries so a checkout runs in
// one transaction.
type PGStore struct {
	customers *customer.Queries
	orders    *order.Queries
	carts     *cart.PGStore
	pool      db.TxBeginner
}

// NewPGStore builds a Store over a connection pool.
func NewPGStore(pool interface {
	db.DBTX
	db.TxBeginner
}) *PGStore {
	return &PGStore{customers: customer.New(pool), orders: order.New(pool), carts: cart.Bind(pool), pool: pool}
}

func bind(conn db.DBTX) *PGStore {
	return &PGStore{customers: customer.New(conn), orders: order.New(conn), carts: cart.Bind(conn)}
}

// ReserveCredit implements Store.
func (s *PGStore) ReserveCredit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (customer.Customer, error) {
	return s.customers.ReserveCredit(ctx, customerID, amount)
}

// CreateOrder implements Store.
func (s *PGStore) CreateOrder(ctx context.Context, in order.NewOrder) (order.Order, error) {
	return s.orders.CreateOrder(ctx, in)
}

// ClearCart implements Store.
func (s *PGStore) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	return s.carts.Clear(ctx, cartID)
}

// CartStore returns the cart queries on the same connection, so a cart locked
// through it stays locked until the checkout transaction ends.
func (s *PGStore) CartStore() cart.Store {
	return s.carts
}

// InTx implements Store.
func (s *PGStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(bind(tx))
	})
}
