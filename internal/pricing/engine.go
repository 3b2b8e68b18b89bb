package pricing

import "github.com/shopspring/decimal"

// Scale is the number of decimal places money is rounded to.
const Scale = 2

// Line is one cart or order line as seen by the totals calculator.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
	IsFree    bool
}

// Total returns unitPrice × quantity for paid lines and zero for free lines.
func (l Line) Total() decimal.Decimal {
	if l.IsFree || l.Quantity <= 0 {
		return decimal.Zero
	}
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// TaxCalculator computes tax on an already discounted base.
type TaxCalculator interface {
	Tax(base decimal.Decimal) decimal.Decimal
}

// NoTax charges nothing.
type NoTax struct{}

// Tax implements TaxCalculator.
func (NoTax) Tax(decimal.Decimal) decimal.Decimal { return decimal.Zero }

// FlatRate charges a single rate expressed in basis points.
type FlatRate struct {
	Bps int
}

// Tax implements TaxCalculator.
func (f FlatRate) Tax(base decimal.Decimal) decimal.Decimal {
	if f.Bps <= 0 || !base.IsPositive() {
		return decimal.Zero
	}
	return base.Mul(decimal.NewFromInt(int64(f.Bps))).Div(decimal.NewFromInt(10000)).Round(Scale)
}

// Summary contains the computed pricing breakdown.
type Summary struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	Total          decimal.Decimal `json:"total"`
}

// Compute aggregates lines and a discount into a summary. Free lines add
// nothing, the discount is clamped to [0, subtotal], tax is charged on the
// discounted base and the total never goes below zero.
func Compute(lines []Line, discount decimal.Decimal, tax TaxCalculator) Summary {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	subtotal = subtotal.Round(Scale)

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	discount = discount.Round(Scale)

	if tax == nil {
		tax = NoTax{}
	}
	taxAmount := tax.Tax(subtotal.Sub(discount))
	if taxAmount.IsNegative() {
		taxAmount = decimal.Zero
	}
	taxAmount = taxAmount.Round(Scale)

	total := subtotal.Sub(discount).Add(taxAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Summary{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxAmount:      taxAmount,
		Total:          total.Round(Scale),
	}
}
