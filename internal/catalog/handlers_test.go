package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/catalog"
	"github.com/noah-isme/backend-b2b/internal/common"
)

type fakeCatalog struct {
	products  map[uuid.UUID]catalog.Product
	overrides map[[2]uuid.UUID]decimal.Decimal
	reads     int
}

func (f *fakeCatalog) GetProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	f.reads++
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeCatalog) GetPriceListOverride(_ context.Context, listID, productID uuid.UUID) (decimal.Decimal, bool, error) {
	v, ok := f.overrides[[2]uuid.UUID{listID, productID}]
	return v, ok, nil
}

func (f *fakeCatalog) ListProducts(_ context.Context, p catalog.ListParams) ([]catalog.Product, int, error) {
	var out []catalog.Product
	for _, prod := range f.products {
		if prod.IsActive && (p.Query == "" || strings.Contains(strings.ToLower(prod.Name), strings.ToLower(p.Query))) {
			out = append(out, prod)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if p.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[p.Offset:]
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, total, nil
}

type priceLists map[uuid.UUID]*uuid.UUID

func (p priceLists) PriceListID(_ context.Context, customerID uuid.UUID) (*uuid.UUID, error) {
	return p[customerID], nil
}

type fixture struct {
	store      *fakeCatalog
	resolver   *catalog.Resolver
	listed     uuid.UUID
	plain      uuid.UUID
	inactive   uuid.UUID
	vip        uuid.UUID
	walkIn     uuid.UUID
	priceList  uuid.UUID
	redis      *miniredis.Miniredis
	redisCache *catalog.Cache
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		listed:    uuid.New(),
		plain:     uuid.New(),
		inactive:  uuid.New(),
		vip:       uuid.New(),
		walkIn:    uuid.New(),
		priceList: uuid.New(),
	}
	f.store = &fakeCatalog{
		products: map[uuid.UUID]catalog.Product{
			f.listed:   {ID: f.listed, SKU: "WTR-600", Name: "Mineral Water 600ml", BasePrice: decimal.RequireFromString("48.00"), Unit: "carton", UnitsPerCase: 24, StockStatus: catalog.InStock, IsActive: true},
			f.plain:    {ID: f.plain, SKU: "TEA-350", Name: "Iced Tea 350ml", BasePrice: decimal.RequireFromString("60.00"), Unit: "carton", UnitsPerCase: 24, StockStatus: catalog.LowStock, IsActive: true},
			f.inactive: {ID: f.inactive, SKU: "OLD-1", Name: "Discontinued", BasePrice: decimal.NewFromInt(1), Unit: "carton", UnitsPerCase: 1, StockStatus: catalog.InStock},
		},
		overrides: map[[2]uuid.UUID]decimal.Decimal{
			{f.priceList, f.listed}: decimal.RequireFromString("42.50"),
		},
	}
	f.redis = miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: f.redis.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.redisCache = catalog.NewCache(client, time.Minute)
	f.resolver = &catalog.Resolver{
		Products:  f.store,
		Customers: priceLists{f.vip: &f.priceList},
		Cache:     f.redisCache,
		Logger:    zerolog.Nop(),
	}
	return f
}

func TestResolvePrefersPriceListOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price, err := f.resolver.Resolve(ctx, f.vip, f.listed)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("42.50").Equal(price.UnitPrice))
	require.Equal(t, catalog.SourcePriceList, price.Source)

	price, err = f.resolver.Resolve(ctx, f.walkIn, f.listed)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("48.00").Equal(price.UnitPrice))
	require.Equal(t, catalog.SourceBase, price.Source)

	price, err = f.resolver.Resolve(ctx, f.vip, f.plain)
	require.NoError(t, err)
	require.Equal(t, catalog.SourceBase, price.Source)
	require.Equal(t, catalog.LowStock, price.StockStatus)
}

func TestResolveMissingOrInactiveProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Resolve(context.Background(), f.vip, uuid.New())
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.resolver.Resolve(context.Background(), f.vip, f.inactive)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestResolveReadsThroughCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, f.vip, f.listed)
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, f.vip, f.listed)
	require.NoError(t, err)
	require.Equal(t, 1, f.store.reads)
	require.True(t, f.redis.Exists("catalog:price:"+f.priceList.String()+":"+f.listed.String()))

	f.redis.FastForward(2 * time.Minute)
	_, err = f.resolver.Resolve(ctx, f.vip, f.listed)
	require.NoError(t, err)
	require.Equal(t, 2, f.store.reads)
}

func TestResolveWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.resolver.Cache = nil
	ctx := context.Background()
	for _, id := range []uuid.UUID{f.listed, f.plain, f.listed} {
		_, err := f.resolver.Resolve(ctx, f.vip, id)
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.store.reads)
}

func TestResolveCurrentIgnoresStaleCacheEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := "catalog:price:" + f.priceList.String() + ":" + f.listed.String()

	_, err := f.resolver.Resolve(ctx, f.vip, f.listed)
	require.NoError(t, err)
	require.True(t, f.redis.Exists(key))

	p := f.store.products[f.listed]
	p.StockStatus = catalog.OutOfStock
	f.store.products[f.listed] = p

	cached, err := f.resolver.Resolve(ctx, f.vip, f.listed)
	require.NoError(t, err)
	require.Equal(t, catalog.InStock, cached.StockStatus)

	current, err := f.resolver.ResolveCurrent(ctx, f.vip, f.listed)
	require.NoError(t, err)
	require.Equal(t, catalog.OutOfStock, current.StockStatus)

	p.IsActive = false
	f.store.products[f.listed] = p
	_, err = f.resolver.ResolveCurrent(ctx, f.vip, f.listed)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
	require.False(t, f.redis.Exists(key))

	_, err = f.resolver.Resolve(ctx, f.vip, f.listed)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestCatalogHandlers(t *testing.T) {
	f := newFixture(t)
	h := &catalog.Handler{Resolver: f.resolver}
	r := chi.NewRouter()
	r.Get("/api/products", h.Products)
	r.Get("/api/products/{id}/price", h.ProductPrice)

	t.Run("products list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/products?limit=1", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Success    bool              `json:"success"`
			Data       []catalog.Product `json:"data"`
			Pagination common.Pagination `json:"pagination"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.True(t, resp.Success)
		require.Len(t, resp.Data, 1)
		require.Equal(t, "Iced Tea 350ml", resp.Data[0].Name)
		require.Equal(t, 2, resp.Pagination.TotalItems)
		require.Equal(t, 2, resp.Pagination.TotalPages)
	})

	t.Run("customer price", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/products/"+f.listed.String()+"/price", nil)
		req = req.WithContext(common.WithCustomerID(req.Context(), f.vip.String()))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data catalog.Price `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "42.5", resp.Data.UnitPrice.String())
	})

	t.Run("unknown product", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/products/"+uuid.NewString()+"/price", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Contains(t, rec.Body.String(), `"NOT_FOUND"`)
	})

	t.Run("malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/products/nope/price", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}
