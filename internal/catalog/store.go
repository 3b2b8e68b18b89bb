package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/db"
)

// ListParams filters the product listing.
type ListParams struct {
	Query  string
	Limit  int
	Offset int
}

// Queries reads products and price-list overrides from PostgreSQL.
type Queries struct {
	db db.DBTX
}

// New constructs Queries.
func New(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const productColumns = `id, sku, name, base_price, unit, units_per_case, stock_status::text, is_active, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		stock string
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.BasePrice, &p.Unit, &p.UnitsPerCase, &stock, &p.IsActive, &p.CreatedAt)
	p.StockStatus = StockStatus(stock)
	return p, err
}

// GetProduct loads a product by id regardless of its active flag.
func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetPriceListOverride returns the price-list price for a product. The
// boolean is false when the list carries no entry for it.
func (q *Queries) GetPriceListOverride(ctx context.Context, priceListID, productID uuid.UUID) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := q.db.QueryRow(ctx, `SELECT price FROM price_list_items WHERE price_list_id = $1 AND product_id = $2`,
		priceListID, productID).Scan(&price)
	if err != nil {
		if db.IsNoRows(err) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("get price list override: %w", err)
	}
	return price, true, nil
}

// ListProducts returns a page of active products and the total count.
func (q *Queries) ListProducts(ctx context.Context, p ListParams) ([]Product, int, error) {
	pattern := "%" + p.Query + "%"
	var total int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM products
		WHERE is_active AND ($1 = '%%' OR name ILIKE $1 OR sku ILIKE $1)`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE is_active AND ($1 = '%%' OR name ILIKE $1 OR sku ILIKE $1)
		ORDER BY name, id
		LIMIT $2 OFFSET $3`, pattern, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, prod)
	}
	return out, total, rows.Err()
}
