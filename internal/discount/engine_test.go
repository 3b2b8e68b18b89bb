package discount

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	prodA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	prodB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	prodC = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func window() (time.Time, time.Time) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

func newDiscount(typ Type, value string) Discount {
	start, end := window()
	return Discount{
		ID:        uuid.New(),
		Name:      string(typ),
		Type:      typ,
		Value:     dec(value),
		StartDate: start,
		EndDate:   end,
		IsActive:  true,
	}
}

func TestEvaluatePercentageWholeCart(t *testing.T) {
	lines := []Line{{ProductID: prodA, Quantity: 10, UnitPrice: dec("100")}}
	res := Evaluate(lines, []Discount{newDiscount(TypePercentage, "10")})

	require.Len(t, res.Applied, 1)
	require.True(t, res.Applied[0].DiscountAmount.Equal(dec("100")))
	require.True(t, res.Total.Equal(dec("100")))
	require.True(t, res.Subtotal.Equal(dec("1000")))
}

func TestEvaluateFixedClampedToEligible(t *testing.T) {
	d := newDiscount(TypeFixed, "500")
	d.EligibleProductIDs = []uuid.UUID{prodB}
	lines := []Line{
		{ProductID: prodA, Quantity: 1, UnitPrice: dec("1000")},
		{ProductID: prodB, Quantity: 2, UnitPrice: dec("100")},
	}
	res := Evaluate(lines, []Discount{d})
	require.Len(t, res.Applied, 1)
	require.True(t, res.Applied[0].DiscountAmount.Equal(dec("200")))
	require.True(t, res.Applied[0].EligibleSubtotal.Equal(dec("200")))
}

func TestEvaluateOmitsDiscountWithoutEligibleItems(t *testing.T) {
	d := newDiscount(TypePercentage, "50")
	d.EligibleProductIDs = []uuid.UUID{prodC}
	lines := []Line{{ProductID: prodA, Quantity: 3, UnitPrice: dec("10")}}
	res := Evaluate(lines, []Discount{d})
	require.Empty(t, res.Applied)
	require.True(t, res.Total.IsZero())
}

func TestEvaluateBuyGetHasNoMonetaryEffect(t *testing.T) {
	d := newDiscount(TypeBuyGet, "0")
	d.MinQuantity = 3
	d.BonusQuantity = 1
	d.EligibleProductIDs = []uuid.UUID{prodA}
	lines := []Line{{ProductID: prodA, Quantity: 7, UnitPrice: dec("25")}}

	res := Evaluate(lines, []Discount{d})
	require.Len(t, res.Applied, 1)
	require.Equal(t, 2, res.Applied[0].FreeItemsCount)
	require.True(t, res.Applied[0].DiscountAmount.IsZero())
	require.True(t, res.Total.IsZero())
	require.Equal(t, 2, res.FreeItemsFor(d.ID))
}

func TestFreeItemsFormula(t *testing.T) {
	for qty := 0; qty <= 25; qty++ {
		for minQ := 1; minQ <= 5; minQ++ {
			for bonus := 1; bonus <= 3; bonus++ {
				require.Equal(t, (qty/minQ)*bonus, FreeItems(qty, minQ, bonus))
			}
		}
	}
	require.Zero(t, FreeItems(10, 0, 1))
	require.Zero(t, FreeItems(10, 3, 0))
}

func TestEvaluateBuyGetBelowThresholdOmitted(t *testing.T) {
	d := newDiscount(TypeBuyGet, "0")
	d.MinQuantity = 5
	d.BonusQuantity = 1
	res := Evaluate([]Line{{ProductID: prodA, Quantity: 4, UnitPrice: dec("1")}}, []Discount{d})
	require.Empty(t, res.Applied)
}

func TestEvaluateSpendBonusThreshold(t *testing.T) {
	d := newDiscount(TypeSpendBonus, "5")
	d.MinOrderAmount = dec("1000")

	below := Evaluate([]Line{{ProductID: prodA, Quantity: 9, UnitPrice: dec("100")}}, []Discount{d})
	require.Empty(t, below.Applied)

	at := Evaluate([]Line{{ProductID: prodA, Quantity: 10, UnitPrice: dec("100")}}, []Discount{d})
	require.Len(t, at.Applied, 1)
	require.True(t, at.Applied[0].DiscountAmount.Equal(dec("50")))
}

func TestEvaluateAdditiveAndClamped(t *testing.T) {
	lines := []Line{{ProductID: prodA, Quantity: 1, UnitPrice: dec("100")}}
	discounts := []Discount{
		newDiscount(TypePercentage, "60"),
		newDiscount(TypeFixed, "70"),
	}
	res := Evaluate(lines, discounts)
	require.Len(t, res.Applied, 2)
	require.True(t, res.Applied[0].DiscountAmount.Equal(dec("60")))
	require.True(t, res.Applied[1].DiscountAmount.Equal(dec("70")))
	require.True(t, res.Total.Equal(dec("100")), "total discount clamps to subtotal")
}

func TestEvaluateSkipsMalformed(t *testing.T) {
	bad := newDiscount(TypePercentage, "150")
	broken := newDiscount(TypeBuyGet, "0")
	good := newDiscount(TypeFixed, "5")
	lines := []Line{{ProductID: prodA, Quantity: 1, UnitPrice: dec("20")}}

	res := Evaluate(lines, []Discount{bad, broken, good})
	require.Len(t, res.Applied, 1)
	require.Equal(t, good.ID, res.Applied[0].DiscountID)
	require.Len(t, res.Skipped, 2)
}

func TestEvaluateOrdering(t *testing.T) {
	buyGet := newDiscount(TypeBuyGet, "0")
	buyGet.MinQuantity, buyGet.BonusQuantity = 1, 1
	spend := newDiscount(TypeSpendBonus, "1")
	fixed := newDiscount(TypeFixed, "1")
	pct := newDiscount(TypePercentage, "1")
	lines := []Line{{ProductID: prodA, Quantity: 2, UnitPrice: dec("50")}}

	res := Evaluate(lines, []Discount{buyGet, spend, fixed, pct})
	require.Len(t, res.Applied, 4)
	var types []Type
	for _, a := range res.Applied {
		types = append(types, a.Type)
	}
	require.Equal(t, []Type{TypePercentage, TypeFixed, TypeSpendBonus, TypeBuyGet}, types)
}

func TestEffectiveWindow(t *testing.T) {
	d := newDiscount(TypeFixed, "1")
	require.True(t, d.Effective(d.StartDate))
	require.True(t, d.Effective(d.EndDate))
	require.False(t, d.Effective(d.EndDate.Add(time.Second)))
	require.False(t, d.Effective(d.StartDate.Add(-time.Second)))
	d.IsActive = false
	require.False(t, d.Effective(d.StartDate.Add(time.Hour)))
}

func TestValidateRejectsInvertedWindow(t *testing.T) {
	d := newDiscount(TypeFixed, "1")
	d.StartDate, d.EndDate = d.EndDate, d.StartDate
	require.ErrorIs(t, d.Validate(), ErrMalformed)
}
