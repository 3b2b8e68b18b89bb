package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ProductStore is the catalog persistence used by the resolver.
type ProductStore interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetPriceListOverride(ctx context.Context, priceListID, productID uuid.UUID) (decimal.Decimal, bool, error)
	ListProducts(ctx context.Context, p ListParams) ([]Product, int, error)
}

// PriceListLookup returns the price list assigned to a customer.
type PriceListLookup interface {
	PriceListID(ctx context.Context, customerID uuid.UUID) (*uuid.UUID, error)
}

// Resolver determines the unit price a customer pays for a product.
type Resolver struct {
	Products  ProductStore
	Customers PriceListLookup
	Cache     *Cache
	Logger    zerolog.Logger
}

// Resolve returns the customer's price-list override for the product when one
// exists, otherwise the product's base price. Missing and inactive products
// fail with ErrProductNotFound. Resolution never writes to the database.
// Cached entries are served as-is, so Resolve suits read-only display paths.
func (r *Resolver) Resolve(ctx context.Context, customerID, productID uuid.UUID) (Price, error) {
	return r.resolve(ctx, customerID, productID, true)
}

// ResolveCurrent resolves like Resolve but always reads the product from the
// store, so deactivation and stock changes apply immediately. The cache entry
// is refreshed on success and evicted when the product is gone.
func (r *Resolver) ResolveCurrent(ctx context.Context, customerID, productID uuid.UUID) (Price, error) {
	return r.resolve(ctx, customerID, productID, false)
}

func (r *Resolver) resolve(ctx context.Context, customerID, productID uuid.UUID, useCache bool) (Price, error) {
	if r == nil || r.Products == nil {
		return Price{}, errors.New("price resolver not configured")
	}
	var priceListID *uuid.UUID
	if r.Customers != nil && customerID != uuid.Nil {
		id, err := r.Customers.PriceListID(ctx, customerID)
		if err != nil {
			return Price{}, err
		}
		priceListID = id
	}

	key := priceKey(priceListID, productID)
	if useCache {
		var cached Price
		if ok, err := r.Cache.GetJSON(ctx, key, &cached); err != nil {
			r.Logger.Warn().Err(err).Str("key", key).Msg("price cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	product, err := r.Products.GetProduct(ctx, productID)
	if err == nil && !product.IsActive {
		err = ErrProductNotFound
	}
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			if derr := r.Cache.Delete(ctx, key); derr != nil {
				r.Logger.Warn().Err(derr).Str("key", key).Msg("price cache evict failed")
			}
		}
		return Price{}, err
	}
	price := Price{
		ProductID:   product.ID,
		UnitPrice:   product.BasePrice,
		Unit:        product.Unit,
		Source:      SourceBase,
		StockStatus: product.StockStatus,
	}
	if priceListID != nil {
		override, ok, err := r.Products.GetPriceListOverride(ctx, *priceListID, productID)
		if err != nil {
			return Price{}, err
		}
		if ok {
			price.UnitPrice = override
			price.Source = SourcePriceList
		}
	}
	if err := r.Cache.SetJSON(ctx, key, price); err != nil {
		r.Logger.Warn().Err(err).Str("key", key).Msg("price cache write failed")
	}
	return price, nil
}

// ListProducts returns a page of active products.
func (r *Resolver) ListProducts(ctx context.Context, p ListParams) ([]Product, int, error) {
	if r == nil || r.Products == nil {
		return nil, 0, errors.New("price resolver not configured")
	}
	return r.Products.ListProducts(ctx, p)
}
