package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/db"
)

// Queries holds the customer SQL. It runs against a pool or a transaction.
type Queries struct {
	db db.DBTX
}

// New constructs Queries.
func New(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const customerColumns = `id, name, email, credit_limit, credit_used, price_list_id, reward_category,
	reward_balance, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.CreditLimit, &c.CreditUsed, &c.PriceListID,
		&c.RewardCategory, &c.RewardBalance, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetCustomer loads a customer by id.
func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, err := scanCustomer(q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// PriceListID returns the price list assigned to the customer, nil when none.
func (q *Queries) PriceListID(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	var pl *uuid.UUID
	if err := q.db.QueryRow(ctx, `SELECT price_list_id FROM customers WHERE id = $1`, id).Scan(&pl); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get price list: %w", err)
	}
	return pl, nil
}

// ReserveCredit increments credit_used by amount in a single conditional
// statement. A shortfall returns an INSUFFICIENT_CREDIT error and changes nothing.
func (q *Queries) ReserveCredit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (Customer, error) {
	if amount.IsNegative() {
		return Customer{}, errors.New("reserve credit: negative amount")
	}
	c, err := scanCustomer(q.db.QueryRow(ctx, `UPDATE customers
		SET credit_used = credit_used + $2, updated_at = now()
		WHERE id = $1 AND credit_used + $2 <= credit_limit
		RETURNING `+customerColumns, id, amount))
	if err == nil {
		return c, nil
	}
	if !db.IsNoRows(err) {
		return Customer{}, fmt.Errorf("reserve credit: %w", err)
	}
	current, getErr := q.GetCustomer(ctx, id)
	if getErr != nil {
		return Customer{}, getErr
	}
	return Customer{}, Shortfall(current, amount)
}

// ReleaseCredit decrements credit_used by amount, never below zero.
func (q *Queries) ReleaseCredit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (Customer, error) {
	c, err := scanCustomer(q.db.QueryRow(ctx, `UPDATE customers
		SET credit_used = GREATEST(credit_used - $2, 0), updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns, id, amount))
	if err != nil {
		if db.IsNoRows(err) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("release credit: %w", err)
	}
	return c, nil
}

// CreditRewardBalance adds amount to the customer's reward balance.
func (q *Queries) CreditRewardBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (Customer, error) {
	c, err := scanCustomer(q.db.QueryRow(ctx, `UPDATE customers
		SET reward_balance = reward_balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns, id, amount))
	if err != nil {
		if db.IsNoRows(err) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("credit reward balance: %w", err)
	}
	return c, nil
}
