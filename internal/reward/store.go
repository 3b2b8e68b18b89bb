package reward

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/customer"
	"github.com/noah-isme/backend-b2b/internal/db"
)

// Queries holds the reward SQL.
type Queries struct {
	db db.DBTX
}

// New constructs Queries.
func New(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

const tierColumns = `id, quarter, year, min_cartons, max_cartons, cashback_per_carton, is_active, created_at`

func scanTier(row pgx.Row) (Tier, error) {
	var t Tier
	err := row.Scan(&t.ID, &t.Quarter, &t.Year, &t.MinCartons, &t.MaxCartons, &t.CashbackPerCarton, &t.IsActive, &t.CreatedAt)
	return t, err
}

const rewardColumns = `id, customer_id, quarter, year, total_cartons_purchased, eligible_tier_id, calculated_reward,
	manual_adjustment, status::text, payment_id, processed_at, lease_expires_at, notes, created_at, updated_at`

func scanReward(row pgx.Row, extra ...any) (CustomerReward, error) {
	var (
		r      CustomerReward
		status string
	)
	dest := []any{&r.ID, &r.CustomerID, &r.Quarter, &r.Year, &r.CartonsPurchased, &r.EligibleTierID,
		&r.CalculatedReward, &r.ManualAdjustment, &status, &r.PaymentID, &r.ProcessedAt, &r.LeaseExpiresAt,
		&r.Notes, &r.CreatedAt, &r.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	r.Status = Status(status)
	return r, err
}

func collectRewards(rows pgx.Rows) ([]CustomerReward, error) {
	defer rows.Close()
	var out []CustomerReward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTiers returns tiers ordered by period and lower bound.
func (q *Queries) ListTiers(ctx context.Context, f TierFilter) ([]Tier, error) {
	rows, err := q.db.Query(ctx, `SELECT `+tierColumns+` FROM reward_tiers
		WHERE ($1 = 0 OR quarter = $1) AND ($2 = 0 OR year = $2) AND (NOT $3 OR is_active)
		ORDER BY year DESC, quarter DESC, min_cartons`, f.Quarter, f.Year, f.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("list reward tiers: %w", err)
	}
	defer rows.Close()
	var out []Tier
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTier loads a tier by id.
func (q *Queries) GetTier(ctx context.Context, id uuid.UUID) (Tier, error) {
	t, err := scanTier(q.db.QueryRow(ctx, `SELECT `+tierColumns+` FROM reward_tiers WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Tier{}, ErrTierNotFound
		}
		return Tier{}, fmt.Errorf("get reward tier: %w", err)
	}
	return t, nil
}

// CreateTier inserts a tier.
func (q *Queries) CreateTier(ctx context.Context, t Tier) (Tier, error) {
	out, err := scanTier(q.db.QueryRow(ctx, `INSERT INTO reward_tiers
		(quarter, year, min_cartons, max_cartons, cashback_per_carton, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+tierColumns, t.Quarter, t.Year, t.MinCartons, t.MaxCartons, t.CashbackPerCarton, t.IsActive))
	if err != nil {
		return Tier{}, fmt.Errorf("create reward tier: %w", err)
	}
	return out, nil
}

// UpdateTier overwrites a tier.
func (q *Queries) UpdateTier(ctx context.Context, t Tier) (Tier, error) {
	out, err := scanTier(q.db.QueryRow(ctx, `UPDATE reward_tiers
		SET quarter = $2, year = $3, min_cartons = $4, max_cartons = $5, cashback_per_carton = $6, is_active = $7
		WHERE id = $1
		RETURNING `+tierColumns, t.ID, t.Quarter, t.Year, t.MinCartons, t.MaxCartons, t.CashbackPerCarton, t.IsActive))
	if err != nil {
		if db.IsNoRows(err) {
			return Tier{}, ErrTierNotFound
		}
		return Tier{}, fmt.Errorf("update reward tier: %w", err)
	}
	return out, nil
}

// CartonTotals sums non-free line quantities of delivered orders created in
// the period, per customer.
func (q *Queries) CartonTotals(ctx context.Context, p Period) ([]CartonTotal, error) {
	start, end := p.Range()
	rows, err := q.db.Query(ctx, `SELECT o.customer_id, COALESCE(SUM(oi.quantity), 0)::int
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id AND NOT oi.is_free_item
		WHERE o.status = 'delivered' AND o.created_at >= $1 AND o.created_at < $2
		GROUP BY o.customer_id
		ORDER BY o.customer_id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("sum cartons: %w", err)
	}
	defer rows.Close()
	var out []CartonTotal
	for rows.Next() {
		var ct CartonTotal
		if err := rows.Scan(&ct.CustomerID, &ct.Cartons); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// UpsertPending writes a calculation. Existing rows are only rewritten while
// pending. A negative manual adjustment is capped so the final reward of the
// recalculated row stays at or above zero.
func (q *Queries) UpsertPending(ctx context.Context, c Calculation) (CustomerReward, UpsertOutcome, error) {
	var prior decimal.Decimal
	r, err := scanReward(q.db.QueryRow(ctx, `WITH prior AS (
			SELECT manual_adjustment FROM customer_rewards
			WHERE customer_id = $1 AND quarter = $2 AND year = $3
			FOR UPDATE
		), upserted AS (
			INSERT INTO customer_rewards
				(customer_id, quarter, year, total_cartons_purchased, eligible_tier_id, calculated_reward)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (customer_id, quarter, year) DO UPDATE
			SET total_cartons_purchased = EXCLUDED.total_cartons_purchased,
				eligible_tier_id = EXCLUDED.eligible_tier_id,
				calculated_reward = EXCLUDED.calculated_reward,
				manual_adjustment = GREATEST(customer_rewards.manual_adjustment, -EXCLUDED.calculated_reward),
				updated_at = now()
			WHERE customer_rewards.status = 'pending'
			RETURNING `+rewardColumns+`
		)
		SELECT `+rewardColumns+`, COALESCE((SELECT manual_adjustment FROM prior), 0) FROM upserted`,
		c.CustomerID, c.Period.Quarter, c.Period.Year, c.Cartons, c.EligibleTierID, c.CalculatedReward), &prior)
	if err != nil {
		if db.IsNoRows(err) {
			return CustomerReward{}, UpsertSkipped, nil
		}
		return CustomerReward{}, UpsertSkipped, fmt.Errorf("upsert customer reward: %w", err)
	}
	if !r.ManualAdjustment.Equal(prior) {
		return r, UpsertCapped, nil
	}
	return r, UpsertWritten, nil
}

// GetReward loads a reward record.
func (q *Queries) GetReward(ctx context.Context, id uuid.UUID) (CustomerReward, error) {
	r, err := scanReward(q.db.QueryRow(ctx, `SELECT `+rewardColumns+` FROM customer_rewards WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return CustomerReward{}, ErrNotFound
		}
		return CustomerReward{}, fmt.Errorf("get customer reward: %w", err)
	}
	return r, nil
}

// ListRewards returns a page of reward records and the total count.
func (q *Queries) ListRewards(ctx context.Context, p ListParams) ([]CustomerReward, int, error) {
	const filter = `($1 = 0 OR quarter = $1) AND ($2 = 0 OR year = $2) AND ($3 = '' OR status::text = $3)
		AND ($4::uuid IS NULL OR customer_id = $4)`
	args := []any{p.Quarter, p.Year, string(p.Status), p.CustomerID}
	var total int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM customer_rewards WHERE `+filter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customer rewards: %w", err)
	}
	rows, err := q.db.Query(ctx, `SELECT `+rewardColumns+` FROM customer_rewards WHERE `+filter+`
		ORDER BY year DESC, quarter DESC, calculated_reward DESC, id LIMIT $5 OFFSET $6`,
		append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customer rewards: %w", err)
	}
	out, err := collectRewards(rows)
	return out, total, err
}

// ListProcessable returns pending records of the period plus processing
// records whose lease expired before now.
func (q *Queries) ListProcessable(ctx context.Context, p Period, now time.Time) ([]CustomerReward, error) {
	rows, err := q.db.Query(ctx, `SELECT `+rewardColumns+` FROM customer_rewards
		WHERE quarter = $1 AND year = $2
		AND (status = 'pending' OR (status = 'processing' AND lease_expires_at < $3))
		ORDER BY customer_id`, p.Quarter, p.Year, now)
	if err != nil {
		return nil, fmt.Errorf("list processable rewards: %w", err)
	}
	return collectRewards(rows)
}

// ClaimForProcessing moves a record to processing with a lease. It reports
// false when another run holds the record or it is no longer pending.
func (q *Queries) ClaimForProcessing(ctx context.Context, id uuid.UUID, now, leaseUntil time.Time) (CustomerReward, bool, error) {
	r, err := scanReward(q.db.QueryRow(ctx, `UPDATE customer_rewards
		SET status = 'processing', lease_expires_at = $3, updated_at = now()
		WHERE id = $1 AND (status = 'pending' OR (status = 'processing' AND lease_expires_at < $2))
		RETURNING `+rewardColumns, id, now, leaseUntil))
	if err != nil {
		if db.IsNoRows(err) {
			return CustomerReward{}, false, nil
		}
		return CustomerReward{}, false, fmt.Errorf("claim customer reward: %w", err)
	}
	return r, true, nil
}

// MarkProcessed finalises a record still held under lease. It reports false
// when the lease was lost to another run.
func (q *Queries) MarkProcessed(ctx context.Context, id uuid.UUID, lease time.Time, paymentID string, at time.Time) (CustomerReward, bool, error) {
	r, err := scanReward(q.db.QueryRow(ctx, `UPDATE customer_rewards
		SET status = 'processed', payment_id = $3, processed_at = $4, lease_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing' AND lease_expires_at = $2
		RETURNING `+rewardColumns, id, lease, paymentID, at))
	if err != nil {
		if db.IsNoRows(err) {
			return CustomerReward{}, false, nil
		}
		return CustomerReward{}, false, fmt.Errorf("mark reward processed: %w", err)
	}
	return r, true, nil
}

// ReleaseClaim returns a record held under lease to pending.
func (q *Queries) ReleaseClaim(ctx context.Context, id uuid.UUID, lease time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE customer_rewards
		SET status = 'pending', lease_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing' AND lease_expires_at = $2`, id, lease)
	if err != nil {
		return fmt.Errorf("release reward claim: %w", err)
	}
	return nil
}

// SetAdjustment updates the manual adjustment of a pending record. It reports
// false when the record is not pending or the final reward would go negative.
func (q *Queries) SetAdjustment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, notes *string) (CustomerReward, bool, error) {
	r, err := scanReward(q.db.QueryRow(ctx, `UPDATE customer_rewards
		SET manual_adjustment = $2, notes = COALESCE($3, notes), updated_at = now()
		WHERE id = $1 AND status = 'pending' AND calculated_reward + $2 >= 0
		RETURNING `+rewardColumns, id, amount, notes))
	if err != nil {
		if db.IsNoRows(err) {
			return CustomerReward{}, false, nil
		}
		return CustomerReward{}, false, fmt.Errorf("set reward adjustment: %w", err)
	}
	return r, true, nil
}

// Cancel moves a pending record to cancelled.
func (q *Queries) Cancel(ctx context.Context, id uuid.UUID) (CustomerReward, bool, error) {
	r, err := scanReward(q.db.QueryRow(ctx, `UPDATE customer_rewards
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+rewardColumns, id))
	if err != nil {
		if db.IsNoRows(err) {
			return CustomerReward{}, false, nil
		}
		return CustomerReward{}, false, fmt.Errorf("cancel customer reward: %w", err)
	}
	return r, true, nil
}

// PGStore adapts Queries to Store; reward balances go through the customer
// queries bound to the same transaction.
type PGStore struct {
	*Queries
	customers *customer.Queries
	pool      db.TxBeginner
}

// NewPGStore builds a Store over a connection pool.
func NewPGStore(pool interface {
	db.DBTX
	db.TxBeginner
}) *PGStore {
	return &PGStore{Queries: New(pool), customers: customer.New(pool), pool: pool}
}

// CreditRewardBalance adds amount to the customer's reward balance.
func (s *PGStore) CreditRewardBalance(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) error {
	_, err := s.customers.CreditRewardBalance(ctx, customerID, amount)
	return err
}

// InTx runs fn with a Store bound to one transaction.
func (s *PGStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&PGStore{Queries: New(tx), customers: customer.New(tx)})
	})
}
