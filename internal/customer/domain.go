package customer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
)

var (
	// ErrNotFound is returned when the customer does not exist.
	ErrNotFound = fmt.Errorf("customer %w", common.ErrNotFound)
	// ErrInsufficientCredit is returned when a reservation would exceed the credit limit.
	ErrInsufficientCredit = fmt.Errorf("customer: %w", common.ErrInsufficientCredit)
)

// Customer is a buying account with a revolving credit line.
type Customer struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	CreditLimit    decimal.Decimal `json:"creditLimit"`
	CreditUsed     decimal.Decimal `json:"creditUsed"`
	PriceListID    *uuid.UUID      `json:"priceListId,omitempty"`
	RewardCategory *string         `json:"rewardCategory,omitempty"`
	RewardBalance  decimal.Decimal `json:"rewardBalance"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// AvailableCredit returns creditLimit - creditUsed, floored at zero.
func (c Customer) AvailableCredit() decimal.Decimal {
	avail := c.CreditLimit.Sub(c.CreditUsed)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Shortfall builds the INSUFFICIENT_CREDIT error reported to callers.
func Shortfall(c Customer, required decimal.Decimal) error {
	avail := c.AvailableCredit()
	return common.Detailed(ErrInsufficientCredit, "insufficient credit for this order", map[string]string{
		"available": avail.StringFixed(2),
		"required":  required.StringFixed(2),
		"shortfall": required.Sub(avail).StringFixed(2),
	})
}

// View is the API representation including the derived available credit.
type View struct {
	Customer
	AvailableCredit decimal.Decimal `json:"availableCredit"`
}

// NewView wraps c with its derived fields.
func NewView(c Customer) View {
	return View{Customer: c, AvailableCredit: c.AvailableCredit()}
}
