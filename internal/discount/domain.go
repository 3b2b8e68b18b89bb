package discount

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// Type enumerates the supported discount mechanics.
type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
	TypeBuyGet     Type = "buy_get"
	TypeSpendBonus Type = "spend_bonus"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypePercentage, TypeFixed, TypeBuyGet, TypeSpendBonus:
		return true
	}
	return false
}

// rank fixes the order applied discounts are reported in.
func (t Type) rank() int {
	switch t {
	case TypePercentage:
		return 0
	case TypeFixed:
		return 1
	case TypeSpendBonus:
		return 2
	case TypeBuyGet:
		return 3
	default:
		return 4
	}
}

var (
	// ErrNotFound is returned when a discount does not exist.
	ErrNotFound = fmt.Errorf("discount %w", common.ErrNotFound)
	// ErrMalformed marks a discount whose configuration cannot be evaluated.
	ErrMalformed = fmt.Errorf("discount malformed: %w", common.ErrValidation)
)

var hundred = decimal.NewFromInt(100)

// Discount is a promotion rule. A nil or empty EligibleProductIDs applies to the whole cart.
type Discount struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Type               Type            `json:"type"`
	Value              decimal.Decimal `json:"value"`
	MinQuantity        int             `json:"minQuantity"`
	BonusQuantity      int             `json:"bonusQuantity"`
	MinOrderAmount     decimal.Decimal `json:"minOrderAmount"`
	StartDate          time.Time       `json:"startDate"`
	EndDate            time.Time       `json:"endDate"`
	IsActive           bool            `json:"isActive"`
	EligibleProductIDs []uuid.UUID     `json:"eligibleProductIds"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Effective reports whether the discount is active and now falls within its window.
func (d Discount) Effective(now time.Time) bool {
	return d.IsActive && !now.Before(d.StartDate) && !now.After(d.EndDate)
}

// Scoped reports whether the discount is limited to specific products.
func (d Discount) Scoped() bool {
	return len(d.EligibleProductIDs) > 0
}

// Eligible reports whether productID is covered by the discount.
func (d Discount) Eligible(productID uuid.UUID) bool {
	if !d.Scoped() {
		return true
	}
	return slices.Contains(d.EligibleProductIDs, productID)
}

// Validate checks the configuration invariants. Errors wrap ErrMalformed.
func (d Discount) Validate() error {
	if err := d.check(); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	return nil
}

func (d Discount) check() error {
	if !d.Type.Valid() {
		return fmt.Errorf("unknown type %q", d.Type)
	}
	if d.StartDate.After(d.EndDate) {
		return errors.New("start date after end date")
	}
	if d.Value.IsNegative() {
		return errors.New("value must not be negative")
	}
	switch d.Type {
	case TypePercentage:
		if d.Value.GreaterThan(hundred) {
			return errors.New("percentage value must be within 0..100")
		}
	case TypeBuyGet:
		if d.MinQuantity <= 0 {
			return errors.New("buy_get requires minQuantity > 0")
		}
		if d.BonusQuantity <= 0 {
			return errors.New("buy_get requires bonusQuantity > 0")
		}
	case TypeSpendBonus:
		if d.Value.GreaterThan(hundred) {
			return errors.New("spend_bonus percentage must be within 0..100")
		}
		if d.MinOrderAmount.IsNegative() {
			return errors.New("minOrderAmount must not be negative")
		}
	}
	return nil
}
