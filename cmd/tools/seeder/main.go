package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-b2b/internal/auth"
	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/config"
	"github.com/noah-isme/backend-b2b/internal/db"
	"github.com/noah-isme/backend-b2b/internal/obs"
	"github.com/noah-isme/backend-b2b/internal/reward"
)

type seedCustomer struct {
	Name        string
	Email       string
	CreditLimit string
	PriceList   bool
	Roles       []string
}

type seedProduct struct {
	SKU       string
	Name      string
	BasePrice string
	ListPrice string
	Stock     string
}

var customers = []seedCustomer{
	{"Back Office", "admin@b2b.local", "0", false, []string{common.RoleAdmin}},
	{"Toko Makmur", "makmur@example.com", "50000000", true, []string{"customer"}},
	{"CV Sinar Jaya", "sinarjaya@example.com", "25000000", false, []string{"customer"}},
	{"UD Berkah", "berkah@example.com", "10000000", true, []string{"customer"}},
}

var products = []seedProduct{
	{"BEV-001", "Mineral Water 600ml (24)", "48000", "45000", "in_stock"},
	{"BEV-002", "Green Tea 350ml (24)", "96000", "90000", "in_stock"},
	{"SNK-001", "Potato Chips 68g (20)", "150000", "", "low_stock"},
	{"SNK-002", "Wafer Roll 150g (12)", "84000", "80000", "in_stock"},
	{"DRY-001", "Instant Noodle (40)", "120000", "", "in_stock"},
	{"DRY-002", "Rice 5kg (4)", "280000", "", "out_of_stock"},
}

func main() {
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	ids := map[string]uuid.UUID{}
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		listID, err := seedPriceList(ctx, tx)
		if err != nil {
			return err
		}
		if err := seedCustomers(ctx, tx, listID, ids); err != nil {
			return err
		}
		productIDs, err := seedProducts(ctx, tx, listID)
		if err != nil {
			return err
		}
		if err := seedDiscounts(ctx, tx, productIDs); err != nil {
			return err
		}
		return seedTiers(ctx, tx, reward.PeriodOf(time.Now()))
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}

	tokens, err := auth.NewTokens(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      30 * 24 * time.Hour,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("token issuer")
	}
	printTokens(logger, tokens, ids)
	logger.Info().Msg("seeding completed")
}

func seedPriceList(ctx context.Context, tx pgx.Tx) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM price_lists WHERE name = $1`, "Wholesale Tier A").Scan(&id)
	if err == nil {
		return id, nil
	}
	if !db.IsNoRows(err) {
		return uuid.Nil, err
	}
	err = tx.QueryRow(ctx, `INSERT INTO price_lists (name) VALUES ($1) RETURNING id`, "Wholesale Tier A").Scan(&id)
	return id, err
}

func seedCustomers(ctx context.Context, tx pgx.Tx, listID uuid.UUID, ids map[string]uuid.UUID) error {
	for _, c := range customers {
		var priceList *uuid.UUID
		if c.PriceList {
			priceList = &listID
		}
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO customers (name, email, credit_limit, price_list_id)
			VALUES ($1, $2, $3::numeric, $4)
			ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, c.Name, c.Email, c.CreditLimit, priceList).Scan(&id)
		if err != nil {
			return fmt.Errorf("seed customer %s: %w", c.Email, err)
		}
		ids[c.Email] = id
	}
	return nil
}

func seedProducts(ctx context.Context, tx pgx.Tx, listID uuid.UUID) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(products))
	for _, p := range products {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO products (sku, name, base_price, stock_status)
			VALUES ($1, $2, $3::numeric, $4::stock_status)
			ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name, base_price = EXCLUDED.base_price
			RETURNING id`, p.SKU, p.Name, p.BasePrice, p.Stock).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("seed product %s: %w", p.SKU, err)
		}
		out[p.SKU] = id
		if p.ListPrice == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO price_list_items (price_list_id, product_id, price)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (price_list_id, product_id) DO UPDATE SET price = EXCLUDED.price`,
			listID, id, p.ListPrice); err != nil {
			return nil, fmt.Errorf("seed list price %s: %w", p.SKU, err)
		}
	}
	return out, nil
}

func seedDiscounts(ctx context.Context, tx pgx.Tx, productIDs map[string]uuid.UUID) error {
	start := time.Now().UTC().AddDate(0, -1, 0)
	end := time.Now().UTC().AddDate(0, 3, 0)
	rows := []struct {
		name, typ, value string
		minQty, bonusQty int
		minAmount        string
		eligible         []uuid.UUID
	}{
		{"Beverage 5%", "percentage", "5", 0, 0, "0", []uuid.UUID{productIDs["BEV-001"], productIDs["BEV-002"]}},
		{"Snack Rp25.000 off", "fixed", "25000", 0, 0, "0", []uuid.UUID{productIDs["SNK-001"], productIDs["SNK-002"]}},
		{"Noodle buy 10 get 1", "buy_get", "0", 10, 1, "0", []uuid.UUID{productIDs["DRY-001"]}},
		{"Big basket 2%", "spend_bonus", "2", 0, 0, "5000000", nil},
	}
	for _, d := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO discounts (name, type, value, min_quantity, bonus_quantity, min_order_amount, start_date, end_date, eligible_product_ids)
			SELECT $1, $2::discount_type, $3::numeric, $4, $5, $6::numeric, $7, $8, $9
			WHERE NOT EXISTS (SELECT 1 FROM discounts WHERE name = $1)`,
			d.name, d.typ, d.value, d.minQty, d.bonusQty, d.minAmount, start, end, d.eligible); err != nil {
			return fmt.Errorf("seed discount %s: %w", d.name, err)
		}
	}
	return nil
}

func seedTiers(ctx context.Context, tx pgx.Tx, p reward.Period) error {
	var n int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM reward_tiers WHERE quarter = $1 AND year = $2`, p.Quarter, p.Year).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	silverMax, goldMax := 199, 499
	tiers := []reward.Tier{
		{MinCartons: 50, MaxCartons: &silverMax},
		{MinCartons: 200, MaxCartons: &goldMax},
		{MinCartons: 500},
	}
	cashback := []string{"500", "750", "1000"}
	for i, t := range tiers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reward_tiers (quarter, year, min_cartons, max_cartons, cashback_per_carton)
			VALUES ($1, $2, $3, $4, $5::numeric)`, p.Quarter, p.Year, t.MinCartons, t.MaxCartons, cashback[i]); err != nil {
			return fmt.Errorf("seed tier %d: %w", t.MinCartons, err)
		}
	}
	return nil
}

func printTokens(logger zerolog.Logger, tokens *auth.Tokens, ids map[string]uuid.UUID) {
	for _, c := range customers {
		token, exp, err := tokens.Issue(ids[c.Email].String(), c.Roles...)
		if err != nil {
			logger.Error().Err(err).Str("email", c.Email).Msg("issue token")
			continue
		}
		fmt.Fprintf(os.Stdout, "%-24s %s exp=%s\n  %s\n", c.Email, ids[c.Email], exp.Format(time.RFC3339), token)
	}
}
