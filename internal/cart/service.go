package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/catalog"
	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/discount"
	"github.com/noah-isme/backend-b2b/internal/pricing"
)

// Store captures the persistence operations required by the cart service.
type Store interface {
	EnsureCart(ctx context.Context, customerID uuid.UUID) (Cart, error)
	LockCart(ctx context.Context, customerID uuid.UUID) (Cart, error)
	ListItems(ctx context.Context, cartID uuid.UUID) ([]Item, error)
	UpsertItem(ctx context.Context, cartID, productID uuid.UUID, qty int, unitPrice decimal.Decimal) (Item, error)
	SetItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (Item, error)
	UpdateUnitPrice(ctx context.Context, itemID uuid.UUID, unitPrice decimal.Decimal) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	InsertFreeItem(ctx context.Context, cartID, productID uuid.UUID, qty int, discountID uuid.UUID) (Item, error)
	DeleteFreeItems(ctx context.Context, cartID, discountID uuid.UUID) error
	InsertClaim(ctx context.Context, c Claim) (bool, error)
	GetClaim(ctx context.Context, cartID, discountID uuid.UUID) (Claim, bool, error)
	ListClaims(ctx context.Context, cartID uuid.UUID) ([]Claim, error)
	DeleteClaim(ctx context.Context, cartID, discountID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
	InTx(ctx context.Context, fn func(Store) error) error
}

// PriceResolver resolves customer prices from the current catalog state.
type PriceResolver interface {
	ResolveCurrent(ctx context.Context, customerID, productID uuid.UUID) (catalog.Price, error)
}

// DiscountSource evaluates and loads discounts.
type DiscountSource interface {
	Evaluate(ctx context.Context, lines []discount.Line) (discount.Result, error)
	Get(ctx context.Context, id uuid.UUID) (discount.Discount, error)
}

// Service encapsulates cart operations and free-item claims.
type Service struct {
	Store     Store
	Prices    PriceResolver
	Discounts DiscountSource
	Tax       pricing.TaxCalculator
	Currency  string
	Logger    zerolog.Logger
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Prices == nil || s.Discounts == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// AddItem adds qty of a product at the customer's resolved price.
func (s *Service) AddItem(ctx context.Context, customerID, productID uuid.UUID, qty int) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	if qty <= 0 {
		return View{}, common.Detailed(common.ErrValidation, "quantity must be positive", nil)
	}
	price, err := s.Prices.ResolveCurrent(ctx, customerID, productID)
	if err != nil {
		return View{}, err
	}
	if !price.StockStatus.Orderable() {
		return View{}, common.Detailed(common.ErrValidation, "product is out of stock",
			map[string]string{"productId": productID.String(), "stockStatus": string(price.StockStatus)})
	}
	err = s.Store.InTx(ctx, func(tx Store) error {
		c, err := tx.EnsureCart(ctx, customerID)
		if err != nil {
			return err
		}
		if _, err := tx.UpsertItem(ctx, c.ID, productID, qty, price.UnitPrice); err != nil {
			return err
		}
		return s.reconcile(ctx, tx, c.ID)
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx, customerID)
}

// UpdateItem sets the quantity of a paid line.
func (s *Service) UpdateItem(ctx context.Context, customerID, itemID uuid.UUID, qty int) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	if qty <= 0 {
		return View{}, common.Detailed(common.ErrValidation, "quantity must be positive", nil)
	}
	err := s.Store.InTx(ctx, func(tx Store) error {
		c, err := tx.EnsureCart(ctx, customerID)
		if err != nil {
			return err
		}
		if _, err := tx.SetItemQuantity(ctx, c.ID, itemID, qty); err != nil {
			return err
		}
		return s.reconcile(ctx, tx, c.ID)
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx, customerID)
}

// RemoveItem deletes a paid line.
func (s *Service) RemoveItem(ctx context.Context, customerID, itemID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	err := s.Store.InTx(ctx, func(tx Store) error {
		c, err := tx.EnsureCart(ctx, customerID)
		if err != nil {
			return err
		}
		if err := tx.DeleteItem(ctx, c.ID, itemID); err != nil {
			return err
		}
		return s.reconcile(ctx, tx, c.ID)
	})
	if err != nil {
		return View{}, err
	}
	return s.View(ctx, customerID)
}

// View prices the customer's cart. Totals are computed on every call and
// claims the cart no longer earns are dropped before pricing.
func (s *Service) View(ctx context.Context, customerID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	var (
		c      Cart
		items  []Item
		claims []Claim
	)
	err := s.Store.InTx(ctx, func(tx Store) error {
		var err error
		if c, err = tx.EnsureCart(ctx, customerID); err != nil {
			return err
		}
		if err = s.reconcile(ctx, tx, c.ID); err != nil {
			return err
		}
		if items, err = tx.ListItems(ctx, c.ID); err != nil {
			return err
		}
		claims, err = tx.ListClaims(ctx, c.ID)
		return err
	})
	if err != nil {
		return View{}, err
	}
	res, summary, err := s.price(ctx, items, claims)
	if err != nil {
		return View{}, err
	}
	view := View{
		CartID:     c.ID,
		CustomerID: c.CustomerID,
		Items:      make([]ItemView, 0, len(items)),
		Discounts:  res.Applied,
		Claims:     claims,
		Summary:    summary,
		Currency:   s.Currency,
	}
	for _, it := range items {
		view.Items = append(view.Items, ItemView{Item: it, LineTotal: it.LineTotal()})
	}
	if view.Discounts == nil {
		view.Discounts = []discount.Applied{}
	}
	if view.Claims == nil {
		view.Claims = []Claim{}
	}
	return view, nil
}

// Snapshot prices the customer's cart for checkout in its own transaction.
func (s *Service) Snapshot(ctx context.Context, customerID uuid.UUID) (Snapshot, error) {
	if err := s.ready(); err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	err := s.Store.InTx(ctx, func(tx Store) error {
		var err error
		snap, err = s.SnapshotIn(ctx, tx, customerID)
		return err
	})
	return snap, err
}

// SnapshotIn locks the customer's cart inside tx and returns it priced for
// checkout. Paid lines are re-resolved against the catalog and changed prices
// are written back. Claims the cart no longer earns are dropped. The cart row
// stays locked until tx ends, so edits and other checkouts of the same cart
// wait for it.
func (s *Service) SnapshotIn(ctx context.Context, tx Store, customerID uuid.UUID) (Snapshot, error) {
	if err := s.ready(); err != nil {
		return Snapshot{}, err
	}
	c, err := tx.LockCart(ctx, customerID)
	if err != nil {
		return Snapshot{}, err
	}
	items, err := tx.ListItems(ctx, c.ID)
	if err != nil {
		return Snapshot{}, err
	}
	paid := 0
	for _, it := range items {
		if it.IsFreeItem {
			continue
		}
		paid++
		price, err := s.Prices.ResolveCurrent(ctx, customerID, it.ProductID)
		if err != nil {
			return Snapshot{}, err
		}
		if !price.StockStatus.Orderable() {
			return Snapshot{}, common.Detailed(common.ErrValidation, "product is out of stock",
				map[string]string{"productId": it.ProductID.String(), "stockStatus": string(price.StockStatus)})
		}
		if !price.UnitPrice.Equal(it.UnitPrice) {
			if err := tx.UpdateUnitPrice(ctx, it.ID, price.UnitPrice); err != nil {
				return Snapshot{}, err
			}
		}
	}
	if paid == 0 {
		return Snapshot{}, common.Detailed(ErrEmptyCart, "cart has no items", nil)
	}
	if err := s.reconcile(ctx, tx, c.ID); err != nil {
		return Snapshot{}, err
	}
	if items, err = tx.ListItems(ctx, c.ID); err != nil {
		return Snapshot{}, err
	}
	claims, err := tx.ListClaims(ctx, c.ID)
	if err != nil {
		return Snapshot{}, err
	}
	res, summary, err := s.price(ctx, items, claims)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Cart: c, Items: items, Evaluation: res, Summary: summary}, nil
}

func (s *Service) price(ctx context.Context, items []Item, claims []Claim) (discount.Result, pricing.Summary, error) {
	res, err := s.Discounts.Evaluate(ctx, paidLines(items))
	if err != nil {
		return discount.Result{}, pricing.Summary{}, err
	}
	claimed := make(map[uuid.UUID]bool, len(claims))
	for _, c := range claims {
		claimed[c.DiscountID] = true
	}
	for i := range res.Applied {
		res.Applied[i].AlreadyClaimed = claimed[res.Applied[i].DiscountID]
	}
	return res, pricing.Compute(pricingLines(items), res.Total, s.Tax), nil
}

// reconcile drops claims whose entitlement fell below the claimed count, after
// a paid line changed or the discount lapsed, returning those pairs to unclaimed.
func (s *Service) reconcile(ctx context.Context, tx Store, cartID uuid.UUID) error {
	claims, err := tx.ListClaims(ctx, cartID)
	if err != nil || len(claims) == 0 {
		return err
	}
	items, err := tx.ListItems(ctx, cartID)
	if err != nil {
		return err
	}
	res, err := s.Discounts.Evaluate(ctx, paidLines(items))
	if err != nil {
		return err
	}
	for _, c := range claims {
		entitled := res.FreeItemsFor(c.DiscountID)
		if entitled >= c.FreeItemsCount {
			continue
		}
		if err := tx.DeleteFreeItems(ctx, cartID, c.DiscountID); err != nil {
			return err
		}
		if err := tx.DeleteClaim(ctx, cartID, c.DiscountID); err != nil {
			return err
		}
		s.Logger.Info().
			Str("cart_id", cartID.String()).
			Str("discount_id", c.DiscountID.String()).
			Int("claimed", c.FreeItemsCount).
			Int("entitled", entitled).
			Msg("free item claim invalidated")
	}
	return nil
}
