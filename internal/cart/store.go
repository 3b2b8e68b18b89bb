package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/db"
)

// Queries holds the cart SQL. Every quantity change is a single statement.
type Queries struct {
	db db.DBTX
}

// New constructs Queries.
func New(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const itemColumns = `id, cart_id, product_id, quantity, unit_price, is_free_item, source_discount_id, created_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.IsFreeItem,
		&it.SourceDiscountID, &it.CreatedAt)
	return it, err
}

// EnsureCart returns the customer's cart, creating it on first use.
func (q *Queries) EnsureCart(ctx context.Context, customerID uuid.UUID) (Cart, error) {
	var c Cart
	err := q.db.QueryRow(ctx, `INSERT INTO carts (customer_id) VALUES ($1)
		ON CONFLICT (customer_id) DO UPDATE SET updated_at = now()
		RETURNING id, customer_id, created_at, updated_at`, customerID).
		Scan(&c.ID, &c.CustomerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cart{}, fmt.Errorf("ensure cart: %w", err)
	}
	return c, nil
}

// LockCart returns the customer's cart with its row locked until the enclosing
// transaction ends. A customer without a cart fails with ErrEmptyCart.
func (q *Queries) LockCart(ctx context.Context, customerID uuid.UUID) (Cart, error) {
	var c Cart
	err := q.db.QueryRow(ctx, `SELECT id, customer_id, created_at, updated_at FROM carts
		WHERE customer_id = $1 FOR UPDATE`, customerID).
		Scan(&c.ID, &c.CustomerID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrEmptyCart
	}
	if err != nil {
		return Cart{}, fmt.Errorf("lock cart: %w", err)
	}
	return c, nil
}

// ListItems returns all lines of a cart, paid lines first.
func (q *Queries) ListItems(ctx context.Context, cartID uuid.UUID) ([]Item, error) {
	rows, err := q.db.Query(ctx, `SELECT `+itemColumns+` FROM cart_items
		WHERE cart_id = $1 ORDER BY is_free_item, created_at, id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpsertItem adds qty of a product to the cart, incrementing an existing paid line.
func (q *Queries) UpsertItem(ctx context.Context, cartID, productID uuid.UUID, qty int, unitPrice decimal.Decimal) (Item, error) {
	it, err := scanItem(q.db.QueryRow(ctx, `INSERT INTO cart_items (cart_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id) WHERE NOT is_free_item
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity,
			unit_price = EXCLUDED.unit_price, updated_at = now()
		RETURNING `+itemColumns, cartID, productID, qty, unitPrice))
	if err != nil {
		return Item{}, fmt.Errorf("upsert cart item: %w", err)
	}
	return it, nil
}

// SetItemQuantity sets the quantity of a paid line.
func (q *Queries) SetItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (Item, error) {
	it, err := scanItem(q.db.QueryRow(ctx, `UPDATE cart_items SET quantity = $3, updated_at = now()
		WHERE id = $2 AND cart_id = $1 AND NOT is_free_item
		RETURNING `+itemColumns, cartID, itemID, qty))
	if err != nil {
		if db.IsNoRows(err) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, fmt.Errorf("set cart item quantity: %w", err)
	}
	return it, nil
}

// UpdateUnitPrice refreshes the captured price of a paid line.
func (q *Queries) UpdateUnitPrice(ctx context.Context, itemID uuid.UUID, unitPrice decimal.Decimal) error {
	if _, err := q.db.Exec(ctx, `UPDATE cart_items SET unit_price = $2, updated_at = now()
		WHERE id = $1 AND NOT is_free_item`, itemID, unitPrice); err != nil {
		return fmt.Errorf("update cart item price: %w", err)
	}
	return nil
}

// DeleteItem removes a paid line.
func (q *Queries) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $2 AND cart_id = $1 AND NOT is_free_item`, cartID, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// InsertFreeItem adds a zero-priced line granted by discountID.
func (q *Queries) InsertFreeItem(ctx context.Context, cartID, productID uuid.UUID, qty int, discountID uuid.UUID) (Item, error) {
	it, err := scanItem(q.db.QueryRow(ctx, `INSERT INTO cart_items
		(cart_id, product_id, quantity, unit_price, is_free_item, source_discount_id)
		VALUES ($1, $2, $3, 0, TRUE, $4)
		RETURNING `+itemColumns, cartID, productID, qty, discountID))
	if err != nil {
		return Item{}, fmt.Errorf("insert free item: %w", err)
	}
	return it, nil
}

// DeleteFreeItems drops the free lines a discount granted.
func (q *Queries) DeleteFreeItems(ctx context.Context, cartID, discountID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM cart_items
		WHERE cart_id = $1 AND is_free_item AND source_discount_id = $2`, cartID, discountID); err != nil {
		return fmt.Errorf("delete free items: %w", err)
	}
	return nil
}

// InsertClaim records a claim unless one already exists for the pair. It
// reports whether this call created the row.
func (q *Queries) InsertClaim(ctx context.Context, c Claim) (bool, error) {
	tag, err := q.db.Exec(ctx, `INSERT INTO cart_discount_claims (cart_id, discount_id, free_items_count, selection_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, discount_id) DO NOTHING`, c.CartID, c.DiscountID, c.FreeItemsCount, c.SelectionKey)
	if err != nil {
		return false, fmt.Errorf("insert claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetClaim loads the claim for a pair. The boolean is false when unclaimed.
func (q *Queries) GetClaim(ctx context.Context, cartID, discountID uuid.UUID) (Claim, bool, error) {
	var c Claim
	err := q.db.QueryRow(ctx, `SELECT cart_id, discount_id, free_items_count, selection_key, claimed_at
		FROM cart_discount_claims WHERE cart_id = $1 AND discount_id = $2`, cartID, discountID).
		Scan(&c.CartID, &c.DiscountID, &c.FreeItemsCount, &c.SelectionKey, &c.ClaimedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Claim{}, false, nil
		}
		return Claim{}, false, fmt.Errorf("get claim: %w", err)
	}
	return c, true, nil
}

// ListClaims returns every claim on a cart.
func (q *Queries) ListClaims(ctx context.Context, cartID uuid.UUID) ([]Claim, error) {
	rows, err := q.db.Query(ctx, `SELECT cart_id, discount_id, free_items_count, selection_key, claimed_at
		FROM cart_discount_claims WHERE cart_id = $1 ORDER BY claimed_at`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()
	var out []Claim
	for rows.Next() {
		var c Claim
		if err := rows.Scan(&c.CartID, &c.DiscountID, &c.FreeItemsCount, &c.SelectionKey, &c.ClaimedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteClaim returns a pair to the unclaimed state.
func (q *Queries) DeleteClaim(ctx context.Context, cartID, discountID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM cart_discount_claims WHERE cart_id = $1 AND discount_id = $2`,
		cartID, discountID); err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	return nil
}

// Clear empties a cart after checkout, including its claims.
func (q *Queries) Clear(ctx context.Context, cartID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM cart_discount_claims WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear claims: %w", err)
	}
	return nil
}

// PGStore adapts Queries to Store with transaction support.
type PGStore struct {
	*Queries
	pool db.TxBeginner
}

// NewPGStore builds a Store over a connection pool.
func NewPGStore(pool interface {
	db.DBTX
	db.TxBeginner
}) *PGStore {
	return &PGStore{Queries: New(pool), pool: pool}
}

// Bind returns a Store running on conn, usually a transaction owned by another
// package. InTx on the result runs inline.
func Bind(conn db.DBTX) *PGStore {
	return &PGStore{Queries: New(conn)}
}

// InTx runs fn with a Store bound to one transaction. Calls made on a store
// that is already transactional reuse the open transaction.
func (s *PGStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(Bind(tx))
	})
}
