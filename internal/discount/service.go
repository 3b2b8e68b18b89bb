package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/obs"
)

// Store captures the persistence operations required by the discount service.
type Store interface {
	ListEffective(ctx context.Context, now time.Time) ([]Discount, error)
	Get(ctx context.Context, id uuid.UUID) (Discount, error)
	List(ctx context.Context, p ListParams) ([]Discount, int, error)
	Create(ctx context.Context, d Discount) (Discount, error)
	Update(ctx context.Context, d Discount) (Discount, error)
}

// Input is the admin payload for creating or replacing a discount.
type Input struct {
	Name               string          `json:"name" validate:"required,max=120"`
	Type               Type            `json:"type" validate:"required,oneof=percentage fixed buy_get spend_bonus"`
	Value              decimal.Decimal `json:"value"`
	MinQuantity        int             `json:"minQuantity" validate:"gte=0"`
	BonusQuantity      int             `json:"bonusQuantity" validate:"gte=0"`
	MinOrderAmount     decimal.Decimal `json:"minOrderAmount"`
	StartDate          time.Time       `json:"startDate" validate:"required"`
	EndDate            time.Time       `json:"endDate" validate:"required"`
	IsActive           *bool           `json:"isActive"`
	EligibleProductIDs []uuid.UUID     `json:"eligibleProductIds"`
}

func (in Input) toDiscount() Discount {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return Discount{
		Name:               in.Name,
		Type:               in.Type,
		Value:              in.Value,
		MinQuantity:        in.MinQuantity,
		BonusQuantity:      in.BonusQuantity,
		MinOrderAmount:     in.MinOrderAmount,
		StartDate:          in.StartDate.UTC(),
		EndDate:            in.EndDate.UTC(),
		IsActive:           active,
		EligibleProductIDs: in.EligibleProductIDs,
	}
}

// Service evaluates carts against the effective discount set and manages discount records.
type Service struct {
	Store  Store
	Logger zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Evaluate loads the discounts effective now and applies them to lines.
// Malformed discounts are logged and skipped so a broken promotion never
// blocks a cart read or checkout.
func (s *Service) Evaluate(ctx context.Context, lines []Line) (Result, error) {
	if s == nil || s.Store == nil {
		return Result{}, errors.New("discount service not configured")
	}
	now := s.now()
	discounts, err := s.Store.ListEffective(ctx, now)
	if err != nil {
		return Result{}, err
	}
	effective := discounts[:0:0]
	for _, d := range discounts {
		if d.Effective(now) {
			effective = append(effective, d)
		}
	}
	res := Evaluate(lines, effective)
	for _, sk := range res.Skipped {
		s.Logger.Warn().
			Str("discount_id", sk.DiscountID.String()).
			Str("type", string(sk.Type)).
			Str("reason", sk.Reason).
			Msg("discount skipped")
		obs.IncDiscountSkipped(string(sk.Type))
	}
	return res, nil
}

// Get returns a discount by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Discount, error) {
	if s == nil || s.Store == nil {
		return Discount{}, errors.New("discount service not configured")
	}
	return s.Store.Get(ctx, id)
}

// List returns a page of discounts.
func (s *Service) List(ctx context.Context, p ListParams) ([]Discount, int, error) {
	if s == nil || s.Store == nil {
		return nil, 0, errors.New("discount service not configured")
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	return s.Store.List(ctx, p)
}

// Create validates and stores a new discount.
func (s *Service) Create(ctx context.Context, in Input) (Discount, error) {
	if s == nil || s.Store == nil {
		return Discount{}, errors.New("discount service not configured")
	}
	d := in.toDiscount()
	if err := validateInput(d); err != nil {
		return Discount{}, err
	}
	return s.Store.Create(ctx, d)
}

// Update validates and replaces an existing discount.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Discount, error) {
	if s == nil || s.Store == nil {
		return Discount{}, errors.New("discount service not configured")
	}
	d := in.toDiscount()
	d.ID = id
	if err := validateInput(d); err != nil {
		return Discount{}, err
	}
	return s.Store.Update(ctx, d)
}

func validateInput(d Discount) error {
	if err := d.check(); err != nil {
		return common.Detailed(common.ErrValidation, fmt.Sprintf("invalid discount: %s", err.Error()), map[string]any{"type": d.Type})
	}
	return nil
}
