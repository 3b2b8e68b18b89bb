package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// ErrProductNotFound is returned for missing or inactive products.
var ErrProductNotFound = fmt.Errorf("product %w", common.ErrNotFound)

// StockStatus is the coarse availability flag carried by a product.
type StockStatus string

const (
	InStock    StockStatus = "in_stock"
	LowStock   StockStatus = "low_stock"
	OutOfStock StockStatus = "out_of_stock"
)

// Orderable reports whether the product may be added to a cart.
func (s StockStatus) Orderable() bool {
	return s == InStock || s == LowStock
}

// PriceSource records where a resolved price came from.
type PriceSource string

const (
	SourcePriceList PriceSource = "price_list"
	SourceBase      PriceSource = "base"
)

// Product is a sellable catalog entry.
type Product struct {
	ID           uuid.UUID       `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	BasePrice    decimal.Decimal `json:"basePrice"`
	Unit         string          `json:"unit"`
	UnitsPerCase int             `json:"unitsPerCase"`
	StockStatus  StockStatus     `json:"stockStatus"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Price is the unit price that applies to one customer for one product.
type Price struct {
	ProductID   uuid.UUID       `json:"productId"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Unit        string          `json:"unit"`
	Source      PriceSource     `json:"source"`
	StockStatus StockStatus     `json:"stockStatus"`
}
