package payment

import (
	"strings"
	"time"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// CardInput is the card form submitted at checkout. It is never persisted.
type CardInput struct {
	Number   string `json:"number" validate:"required,numeric,min=12,max=19"`
	Holder   string `json:"holder" validate:"required,max=100"`
	ExpMonth int    `json:"expMonth" validate:"min=1,max=12"`
	ExpYear  int    `json:"expYear" validate:"min=2000,max=2100"`
	CVC      string `json:"cvc" validate:"required,numeric,min=3,max=4"`
}

// Normalize strips spaces and dashes from the card number.
func (c CardInput) Normalize() CardInput {
	c.Number = strings.NewReplacer(" ", "", "-", "").Replace(c.Number)
	c.Holder = strings.TrimSpace(c.Holder)
	return c
}

// Last4 returns the last four digits of the number.
func (c CardInput) Last4() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// Validate checks the form fields, the Luhn checksum and that the card has
// not expired at now. Cards are valid through the last day of the expiry month.
func (c CardInput) Validate(now time.Time) error {
	c = c.Normalize()
	if err := common.ValidateStruct(c); err != nil {
		return err
	}
	if !Luhn(c.Number) {
		return common.Detailed(common.ErrValidation, "card number is invalid",
			map[string]any{"fields": []common.FieldError{{Field: "number", Rule: "luhn"}}})
	}
	expiry := time.Date(c.ExpYear, time.Month(c.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.UTC().Before(expiry) {
		return common.Detailed(common.ErrValidation, "card has expired",
			map[string]any{"fields": []common.FieldError{{Field: "expYear", Rule: "expired"}}})
	}
	return nil
}

// Luhn reports whether number passes the mod-10 checksum.
func Luhn(number string) bool {
	if len(number) < 2 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		ch := number[i]
		if ch < '0' || ch > '9' {
			return false
		}
		d := int(ch - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
