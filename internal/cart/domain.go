package cart

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/discount"
	"github.com/noah-isme/backend-b2b/internal/pricing"
)

var (
	// ErrItemNotFound is returned when a cart line does not exist in the caller's cart.
	ErrItemNotFound = fmt.Errorf("cart item %w", common.ErrNotFound)
	// ErrAlreadyClaimed is returned when free items were already chosen with a different selection.
	ErrAlreadyClaimed = fmt.Errorf("free items %w", common.ErrAlreadyClaimed)
	// ErrEmptyCart is returned when a cart without paid lines is checked out.
	ErrEmptyCart = fmt.Errorf("cart is empty: %w", common.ErrValidation)
)

// Cart is the single open cart owned by a customer.
type Cart struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customerId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Item is one cart line. Free lines carry the discount that granted them and
// are priced at zero.
type Item struct {
	ID               uuid.UUID       `json:"id"`
	CartID           uuid.UUID       `json:"cartId"`
	ProductID        uuid.UUID       `json:"productId"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	IsFreeItem       bool            `json:"isFreeItem"`
	SourceDiscountID *uuid.UUID      `json:"sourceDiscountId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// LineTotal is unitPrice × quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ClaimState is the free-item state of one (cart, discount) pair.
type ClaimState string

const (
	Unclaimed ClaimState = "unclaimed"
	Claimed   ClaimState = "claimed"
)

// Claim records that a customer chose their free items for a discount.
type Claim struct {
	CartID         uuid.UUID `json:"cartId"`
	DiscountID     uuid.UUID `json:"discountId"`
	FreeItemsCount int       `json:"freeItemsCount"`
	SelectionKey   string    `json:"-"`
	ClaimedAt      time.Time `json:"claimedAt"`
}

// Selection is one chosen free product.
type Selection struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

// selectionKey canonicalises a selection so repeats compare equal regardless
// of order or how quantities were split.
func selectionKey(sel []Selection) string {
	agg := make(map[uuid.UUID]int, len(sel))
	for _, s := range sel {
		agg[s.ProductID] += s.Quantity
	}
	ids := make([]uuid.UUID, 0, len(agg))
	for id := range agg {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String()+":"+strconv.Itoa(agg[id]))
	}
	return strings.Join(parts, ",")
}

func selectedCount(sel []Selection) int {
	n := 0
	for _, s := range sel {
		n += s.Quantity
	}
	return n
}

// ItemView is a cart line with its computed total.
type ItemView struct {
	Item
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// View is the priced cart returned to clients. It is recomputed on every read.
type View struct {
	CartID     uuid.UUID          `json:"cartId"`
	CustomerID uuid.UUID          `json:"customerId"`
	Items      []ItemView         `json:"items"`
	Discounts  []discount.Applied `json:"discounts"`
	Claims     []Claim            `json:"claims"`
	Summary    pricing.Summary    `json:"summary"`
	Currency   string             `json:"currency,omitempty"`
}

// Snapshot is the priced state of a cart handed to checkout.
type Snapshot struct {
	Cart       Cart
	Items      []Item
	Evaluation discount.Result
	Summary    pricing.Summary
}

// PaidItems returns the lines the customer pays for.
func (s Snapshot) PaidItems() []Item {
	var out []Item
	for _, it := range s.Items {
		if !it.IsFreeItem {
			out = append(out, it)
		}
	}
	return out
}

func paidLines(items []Item) []discount.Line {
	out := make([]discount.Line, 0, len(items))
	for _, it := range items {
		if it.IsFreeItem {
			continue
		}
		out = append(out, discount.Line{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}

func pricingLines(items []Item) []pricing.Line {
	out := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity, IsFree: it.IsFreeItem})
	}
	return out
}
