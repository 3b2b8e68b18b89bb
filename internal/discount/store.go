package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-b2b/internal/db"
)

// ListParams filters the admin listing.
type ListParams struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Queries is the PostgreSQL implementation of Store.
type Queries struct {
	db db.DBTX
}

// New constructs Queries over a pool, connection or transaction.
func New(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const discountColumns = `id, name, type::text, value, min_quantity, bonus_quantity, min_order_amount,
	start_date, end_date, is_active, eligible_product_ids, created_at, updated_at`

func scanDiscount(row pgx.Row) (Discount, error) {
	var (
		d   Discount
		typ string
	)
	err := row.Scan(&d.ID, &d.Name, &typ, &d.Value, &d.MinQuantity, &d.BonusQuantity, &d.MinOrderAmount,
		&d.StartDate, &d.EndDate, &d.IsActive, &d.EligibleProductIDs, &d.CreatedAt, &d.UpdatedAt)
	d.Type = Type(typ)
	return d, err
}

func collect(rows pgx.Rows) ([]Discount, error) {
	defer rows.Close()
	var out []Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListEffective returns active discounts whose validity window contains now.
func (q *Queries) ListEffective(ctx context.Context, now time.Time) ([]Discount, error) {
	rows, err := q.db.Query(ctx, `SELECT `+discountColumns+` FROM discounts
		WHERE is_active AND start_date <= $1 AND end_date >= $1
		ORDER BY start_date, id`, now)
	if err != nil {
		return nil, fmt.Errorf("list effective discounts: %w", err)
	}
	return collect(rows)
}

// Get loads a discount by id.
func (q *Queries) Get(ctx context.Context, id uuid.UUID) (Discount, error) {
	d, err := scanDiscount(q.db.QueryRow(ctx, `SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Discount{}, ErrNotFound
		}
		return Discount{}, fmt.Errorf("get discount: %w", err)
	}
	return d, nil
}

// List returns a page of discounts and the total count.
func (q *Queries) List(ctx context.Context, p ListParams) ([]Discount, int, error) {
	var total int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM discounts WHERE ($1::bool = false OR is_active)`, p.ActiveOnly).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count discounts: %w", err)
	}
	rows, err := q.db.Query(ctx, `SELECT `+discountColumns+` FROM discounts
		WHERE ($1::bool = false OR is_active)
		ORDER BY start_date DESC, id
		LIMIT $2 OFFSET $3`, p.ActiveOnly, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list discounts: %w", err)
	}
	items, err := collect(rows)
	return items, total, err
}

// Create inserts a discount.
func (q *Queries) Create(ctx context.Context, d Discount) (Discount, error) {
	out, err := scanDiscount(q.db.QueryRow(ctx, `INSERT INTO discounts
		(name, type, value, min_quantity, bonus_quantity, min_order_amount, start_date, end_date, is_active, eligible_product_ids)
		VALUES ($1, $2::discount_type, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+discountColumns,
		d.Name, string(d.Type), d.Value, d.MinQuantity, d.BonusQuantity, d.MinOrderAmount,
		d.StartDate, d.EndDate, d.IsActive, nullableIDs(d.EligibleProductIDs)))
	if err != nil {
		return Discount{}, fmt.Errorf("create discount: %w", err)
	}
	return out, nil
}

// Update replaces the mutable fields of a discount.
func (q *Queries) Update(ctx context.Context, d Discount) (Discount, error) {
	out, err := scanDiscount(q.db.QueryRow(ctx, `UPDATE discounts SET
		name = $2, type = $3::discount_type, value = $4, min_quantity = $5, bonus_quantity = $6,
		min_order_amount = $7, start_date = $8, end_date = $9, is_active = $10,
		eligible_product_ids = $11, updated_at = now()
		WHERE id = $1
		RETURNING `+discountColumns,
		d.ID, d.Name, string(d.Type), d.Value, d.MinQuantity, d.BonusQuantity, d.MinOrderAmount,
		d.StartDate, d.EndDate, d.IsActive, nullableIDs(d.EligibleProductIDs)))
	if err != nil {
		if db.IsNoRows(err) {
			return Discount{}, ErrNotFound
		}
		return Discount{}, fmt.Errorf("update discount: %w", err)
	}
	return out, nil
}

func nullableIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	return ids
}
