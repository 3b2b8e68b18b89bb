package cart

import (
	"context"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/discount"
	"github.com/noah-isme/backend-b2b/internal/obs"
)

// ClaimResult reports the cart after a claim and whether the call replayed an
// earlier identical claim.
type ClaimResult struct {
	Replayed bool `json:"replayed"`
	Cart     View `json:"cart"`
}

type claimDetails struct {
	Entitled  int `json:"entitled"`
	Selected  int `json:"selected"`
	Remaining int `json:"remaining"`
}

// Claim records the customer's choice of free items for a buy_get discount.
// The selection must add up to exactly the entitled count and contain only
// eligible products. A repeat with the same selection is a no-op replay; a
// different selection after a claim fails with ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, customerID, discountID uuid.UUID, selections []Selection) (ClaimResult, error) {
	if err := s.ready(); err != nil {
		return ClaimResult{}, err
	}
	if len(selections) == 0 {
		return ClaimResult{}, common.Detailed(common.ErrValidation, "at least one selection is required", nil)
	}
	for i := range selections {
		if err := common.ValidateStruct(selections[i]); err != nil {
			return ClaimResult{}, err
		}
	}
	d, err := s.Discounts.Get(ctx, discountID)
	if err != nil {
		return ClaimResult{}, err
	}
	if d.Type != discount.TypeBuyGet {
		return ClaimResult{}, common.Detailed(common.ErrValidation, "discount does not grant free items", nil)
	}

	key := selectionKey(selections)
	selected := selectedCount(selections)
	replayed := false

	err = s.Store.InTx(ctx, func(tx Store) error {
		c, err := tx.EnsureCart(ctx, customerID)
		if err != nil {
			return err
		}
		if err := s.reconcile(ctx, tx, c.ID); err != nil {
			return err
		}
		if existing, ok, err := tx.GetClaim(ctx, c.ID, discountID); err != nil {
			return err
		} else if ok {
			replayed, err = compareClaim(existing, key, selected)
			return err
		}

		items, err := tx.ListItems(ctx, c.ID)
		if err != nil {
			return err
		}
		res, err := s.Discounts.Evaluate(ctx, paidLines(items))
		if err != nil {
			return err
		}
		entitled := res.FreeItemsFor(discountID)
		if entitled == 0 {
			return common.Detailed(common.ErrValidation, "cart is not entitled to free items for this discount",
				claimDetails{Entitled: 0, Selected: selected, Remaining: 0})
		}
		if selected != entitled {
			return common.Detailed(common.ErrValidation, "selected quantity must equal the free item entitlement",
				claimDetails{Entitled: entitled, Selected: selected, Remaining: entitled - selected})
		}
		for _, sel := range selections {
			if err := s.checkEligible(ctx, customerID, d, sel.ProductID); err != nil {
				return err
			}
		}

		inserted, err := tx.InsertClaim(ctx, Claim{CartID: c.ID, DiscountID: discountID, FreeItemsCount: entitled, SelectionKey: key})
		if err != nil {
			return err
		}
		if !inserted {
			existing, ok, err := tx.GetClaim(ctx, c.ID, discountID)
			if err != nil {
				return err
			}
			if !ok {
				return common.Detailed(common.ErrConflict, "claim changed concurrently", nil)
			}
			replayed, err = compareClaim(existing, key, selected)
			return err
		}
		for _, sel := range selections {
			if _, err := tx.InsertFreeItem(ctx, c.ID, sel.ProductID, sel.Quantity, discountID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		obs.IncFreeItemClaim(claimOutcome(err))
		return ClaimResult{}, err
	}
	if replayed {
		obs.IncFreeItemClaim("replayed")
	} else {
		obs.IncFreeItemClaim("claimed")
	}
	view, err := s.View(ctx, customerID)
	if err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{Replayed: replayed, Cart: view}, nil
}

// State reports whether the customer's cart holds a live claim for a discount.
func (s *Service) State(ctx context.Context, customerID, discountID uuid.UUID) (ClaimState, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	state := Unclaimed
	err := s.Store.InTx(ctx, func(tx Store) error {
		c, err := tx.EnsureCart(ctx, customerID)
		if err != nil {
			return err
		}
		if err := s.reconcile(ctx, tx, c.ID); err != nil {
			return err
		}
		_, ok, err := tx.GetClaim(ctx, c.ID, discountID)
		if ok {
			state = Claimed
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return state, nil
}

func compareClaim(existing Claim, key string, selected int) (bool, error) {
	if existing.SelectionKey == key {
		return true, nil
	}
	return false, common.Detailed(ErrAlreadyClaimed, "free items already claimed for this discount",
		claimDetails{Entitled: existing.FreeItemsCount, Selected: selected, Remaining: 0})
}

func (s *Service) checkEligible(ctx context.Context, customerID uuid.UUID, d discount.Discount, productID uuid.UUID) error {
	if d.Scoped() && !d.Eligible(productID) {
		return common.Detailed(common.ErrValidation, "product is not eligible for this discount",
			map[string]string{"productId": productID.String()})
	}
	if _, err := s.Prices.ResolveCurrent(ctx, customerID, productID); err != nil {
		return err
	}
	return nil
}

func claimOutcome(err error) string {
	code, _ := common.Classify(err)
	switch code {
	case "ALREADY_CLAIMED":
		return "already_claimed"
	case "VALIDATION_ERROR", "NOT_FOUND":
		return "rejected"
	default:
		return "error"
	}
}
