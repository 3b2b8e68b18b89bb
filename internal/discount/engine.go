package discount

import (
	"cmp"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is a paid cart line. Free lines never reach the engine.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l Line) total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Applied is the derived effect of one discount on a cart. It is never persisted.
type Applied struct {
	DiscountID         uuid.UUID       `json:"discountId"`
	Name               string          `json:"name"`
	Type               Type            `json:"type"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	FreeItemsCount     int             `json:"freeItemsCount,omitempty"`
	AlreadyClaimed     bool            `json:"alreadyClaimed"`
	EligibleSubtotal   decimal.Decimal `json:"eligibleSubtotal"`
	EligibleQuantity   int             `json:"eligibleQuantity"`
	EligibleProductIDs []uuid.UUID     `json:"eligibleProductIds,omitempty"`
}

// Skipped records a discount left out because its configuration is invalid.
type Skipped struct {
	DiscountID uuid.UUID `json:"discountId"`
	Type       Type      `json:"type"`
	Reason     string    `json:"reason"`
}

// Result is the outcome of evaluating a cart against a discount set.
type Result struct {
	Applied  []Applied       `json:"applied"`
	Total    decimal.Decimal `json:"total"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Skipped  []Skipped       `json:"-"`
}

// Find returns the applied entry for id.
func (r Result) Find(id uuid.UUID) (Applied, bool) {
	for _, a := range r.Applied {
		if a.DiscountID == id {
			return a, true
		}
	}
	return Applied{}, false
}

// FreeItemsFor returns the free-unit entitlement granted by id, zero when it does not apply.
func (r Result) FreeItemsFor(id uuid.UUID) int {
	a, ok := r.Find(id)
	if !ok {
		return 0
	}
	return a.FreeItemsCount
}

// Evaluate applies every discount independently and sums the monetary
// effects. The caller is expected to pass only effective discounts.
func Evaluate(lines []Line, discounts []Discount) Result {
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity > 0 {
			subtotal = subtotal.Add(l.total())
		}
	}

	ordered := slices.Clone(discounts)
	slices.SortStableFunc(ordered, func(a, b Discount) int {
		if c := cmp.Compare(a.Type.rank(), b.Type.rank()); c != 0 {
			return c
		}
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	res := Result{Subtotal: subtotal.Round(2), Total: decimal.Zero}
	for _, d := range ordered {
		if err := d.check(); err != nil {
			res.Skipped = append(res.Skipped, Skipped{DiscountID: d.ID, Type: d.Type, Reason: err.Error()})
			continue
		}
		eligible, qty := EligibleSubtotal(lines, d)
		if qty == 0 {
			continue
		}
		applied, ok := apply(d, eligible, qty)
		if !ok {
			continue
		}
		res.Applied = append(res.Applied, applied)
		res.Total = res.Total.Add(applied.DiscountAmount)
	}
	if res.Total.GreaterThan(res.Subtotal) {
		res.Total = res.Subtotal
	}
	return res
}

// EligibleSubtotal returns the line total and unit count of lines covered by d.
func EligibleSubtotal(lines []Line, d Discount) (decimal.Decimal, int) {
	total := decimal.Zero
	qty := 0
	for _, l := range lines {
		if l.Quantity <= 0 || !d.Eligible(l.ProductID) {
			continue
		}
		total = total.Add(l.total())
		qty += l.Quantity
	}
	return total, qty
}

func apply(d Discount, eligible decimal.Decimal, qty int) (Applied, bool) {
	a := Applied{
		DiscountID:         d.ID,
		Name:               d.Name,
		Type:               d.Type,
		DiscountAmount:     decimal.Zero,
		EligibleSubtotal:   eligible.Round(2),
		EligibleQuantity:   qty,
		EligibleProductIDs: d.EligibleProductIDs,
	}
	switch d.Type {
	case TypePercentage:
		a.DiscountAmount = percentOf(eligible, d.Value)
	case TypeFixed:
		a.DiscountAmount = decimal.Min(d.Value, eligible).Round(2)
	case TypeBuyGet:
		a.FreeItemsCount = FreeItems(qty, d.MinQuantity, d.BonusQuantity)
		if a.FreeItemsCount == 0 {
			return Applied{}, false
		}
	case TypeSpendBonus:
		if eligible.LessThan(d.MinOrderAmount) {
			return Applied{}, false
		}
		a.DiscountAmount = percentOf(eligible, d.Value)
	default:
		return Applied{}, false
	}
	return a, true
}

// FreeItems computes floor(qty/minQuantity) × bonusQuantity.
func FreeItems(qty, minQuantity, bonusQuantity int) int {
	if qty <= 0 || minQuantity <= 0 || bonusQuantity <= 0 {
		return 0
	}
	return (qty / minQuantity) * bonusQuantity
}

func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	amount := base.Mul(pct).Div(hundred).Round(2)
	return decimal.Min(amount, base.Round(2))
}
