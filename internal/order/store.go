package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/customer"
	"github.com/noah-isme/backend-b2b/internal/db"
)

// ListParams filters order listings.
type ListParams struct {
	CustomerID *uuid.UUID
	Status     Status
	Limit      int
	Offset     int
}

// Queries holds the order SQL.
type Queries struct {
	db db.DBTX
}

// New constructs Queries.
func New(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const orderColumns = `id, order_number, customer_id, subtotal, discount_amount, tax_amount, total, paid_amount,
	payment_method::text, payment_ref, status::text, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o              Order
		method, status string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.Total,
		&o.PaidAmount, &method, &o.PaymentRef, &status, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	o.PaymentMethod = PaymentMethod(method)
	o.Status = Status(status)
	return o, err
}

// CreateOrder inserts an order and its lines.
func (q *Queries) CreateOrder(ctx context.Context, in NewOrder) (Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `INSERT INTO orders
		(order_number, customer_id, subtotal, discount_amount, tax_amount, total, paid_amount, payment_method, payment_ref, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::payment_method, $9, $10)
		RETURNING `+orderColumns,
		in.OrderNumber, in.CustomerID, in.Subtotal, in.DiscountAmount, in.TaxAmount, in.Total, in.PaidAmount,
		string(in.PaymentMethod), in.PaymentRef, in.Notes))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Order{}, common.Detailed(common.ErrConflict, "order number already exists", nil)
		}
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	for _, it := range in.Items {
		var item Item
		err := q.db.QueryRow(ctx, `INSERT INTO order_items
			(order_id, product_id, quantity, unit_price, line_total, is_free_item, source_discount_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, order_id, product_id, quantity, unit_price, line_total, is_free_item, source_discount_id`,
			o.ID, it.ProductID, it.Quantity, it.UnitPrice, it.LineTotal, it.IsFreeItem, it.SourceDiscountID).
			Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.LineTotal,
				&item.IsFreeItem, &item.SourceDiscountID)
		if err != nil {
			return Order{}, fmt.Errorf("create order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return o, nil
}

// Get loads an order with its lines.
func (q *Queries) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	rows, err := q.db.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price, line_total, is_free_item, source_discount_id
		FROM order_items WHERE order_id = $1 ORDER BY is_free_item, id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.LineTotal,
			&it.IsFreeItem, &it.SourceDiscountID); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// List returns a page of orders, newest first, and the total count.
func (q *Queries) List(ctx context.Context, p ListParams) ([]Order, int, error) {
	const filter = `($1::uuid IS NULL OR customer_id = $1) AND ($2 = '' OR status::text = $2)`
	var total int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE `+filter, p.CustomerID, string(p.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := q.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+filter+`
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`, p.CustomerID, string(p.Status), p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// UpdateStatus moves an order from one status to another. It reports false
// when the order was no longer in the expected status.
func (q *Queries) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (Order, bool, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `UPDATE orders SET status = $3::order_status, updated_at = now()
		WHERE id = $1 AND status = $2::order_status
		RETURNING `+orderColumns, id, string(from), string(to)))
	if err != nil {
		if db.IsNoRows(err) {
			return Order{}, false, nil
		}
		return Order{}, false, fmt.Errorf("update order status: %w", err)
	}
	return o, true, nil
}

// AddPayment increases paid_amount unless it would exceed the total or the
// order is cancelled. It reports false when the condition did not hold.
func (q *Queries) AddPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (Order, bool, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `UPDATE orders SET paid_amount = paid_amount + $2, updated_at = now()
		WHERE id = $1 AND status <> 'cancelled' AND paid_amount + $2 <= total
		RETURNING `+orderColumns, id, amount))
	if err != nil {
		if db.IsNoRows(err) {
			return Order{}, false, nil
		}
		return Order{}, false, fmt.Errorf("add payment: %w", err)
	}
	return o, true, nil
}

// PGStore adapts Queries to Store. Credit releases go through the customer
// queries bound to the same transaction.
type PGStore struct {
	*Queries
	credit *customer.Queries
	pool   db.TxBeginner
}

// NewPGStore builds a Store over a connection pool.
func NewPGStore(pool interface {
	db.DBTX
	db.TxBeginner
}) *PGStore {
	return &PGStore{Queries: New(pool), credit: customer.New(pool), pool: pool}
}

// ReleaseCredit returns amount to the customer's available credit.
func (s *PGStore) ReleaseCredit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) error {
	_, err := s.credit.ReleaseCredit(ctx, customerID, amount)
	return err
}

// InTx runs fn with a Store bound to one transaction.
func (s *PGStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PGStore{Queries: New(tx), credit: customer.New(tx)})
	})
}
