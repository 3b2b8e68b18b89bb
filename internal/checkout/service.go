package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-b2b/internal/cart"
	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/customer"
	"github.com/noah-isme/backend-b2b/internal/events"
	"github.com/noah-isme/backend-b2b/internal/obs"
	"github.com/noah-isme/backend-b2b/internal/order"
	"github.com/noah-isme/backend-b2b/internal/payment"
)

const orderNumberAttempts = 3

// Store captures the transactional writes of a checkout.
type Store interface {
	ReserveCredit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) (customer.Customer, error)
	CreateOrder(ctx context.Context, in order.NewOrder) (order.Order, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error
	CartStore() cart.Store
	InTx(ctx context.Context, fn func(Store) error) error
}

// Carts locks and prices the customer's cart inside a checkout transaction.
type Carts interface {
	SnapshotIn(ctx context.Context, tx cart.Store, customerID uuid.UUID) (cart.Snapshot, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// Input is the checkout request.
type Input struct {
	PaymentMethod order.PaymentMethod `json:"paymentMethod" validate:"required,oneof=credit card"`
	Card          *payment.CardInput  `json:"card" validate:"required_if=PaymentMethod card"`
	Notes         *string             `json:"notes" validate:"omitempty,max=500"`
}

// Result is the placed order plus settlement details.
type Result struct {
	Order           order.Order            `json:"order"`
	Authorization   *payment.Authorization `json:"authorization,omitempty"`
	AvailableCredit *decimal.Decimal       `json:"availableCredit,omitempty"`
}

// Service turns a cart into an order, settling it on credit or by card.
type Service struct {
	Store      Store
	Carts      Carts
	Authorizer payment.Authorizer
	Events     Emitter
	Logger     zerolog.Logger
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Checkout places an order from the customer's cart.
//
// The cart is locked and priced in the same transaction that writes the
// order and clears it, so a second checkout of the same cart waits and then
// fails with cart.ErrEmptyCart. Credit orders reserve the total against the
// customer's credit; a shortfall leaves everything untouched. Card orders are
// authorized for the locked total and recorded as fully paid without
// touching credit.
func (s *Service) Checkout(ctx context.Context, customerID uuid.UUID, in Input) (Result, error) {
	if s == nil || s.Store == nil || s.Carts == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.payment_method", string(in.PaymentMethod)))

	if in.Card != nil {
		card := in.Card.Normalize()
		in.Card = &card
	}
	if err := common.ValidateStruct(in); err != nil {
		obs.IncCheckout(string(in.PaymentMethod), "invalid")
		return Result{}, err
	}

	var (
		res Result
		err error
	)
	switch in.PaymentMethod {
	case order.PaymentCredit:
		res, err = s.payOnCredit(ctx, customerID, in)
	case order.PaymentCard:
		res, err = s.payByCard(ctx, customerID, in)
	}
	if err != nil {
		obs.IncCheckout(string(in.PaymentMethod), outcome(err))
		return Result{}, err
	}
	obs.IncCheckout(string(in.PaymentMethod), "ok")
	s.emitCreated(ctx, res.Order)
	return res, nil
}

// snapshot locks and prices the cart on the transaction behind tx.
func (s *Service) snapshot(ctx context.Context, tx Store, customerID uuid.UUID) (cart.Snapshot, error) {
	snap, err := s.Carts.SnapshotIn(ctx, tx.CartStore(), customerID)
	if err != nil {
		return cart.Snapshot{}, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("checkout.total", snap.Summary.Total.StringFixed(2)))
	return snap, nil
}

func (s *Service) payOnCredit(ctx context.Context, customerID uuid.UUID, in Input) (Result, error) {
	var (
		placed order.Order
		after  customer.Customer
	)
	err := s.placeWithRetry(ctx, func(tx Store, number string) error {
		snap, err := s.snapshot(ctx, tx, customerID)
		if err != nil {
			return err
		}
		c, err := tx.ReserveCredit(ctx, customerID, snap.Summary.Total)
		if err != nil {
			return err
		}
		o, err := tx.CreateOrder(ctx, newOrder(number, customerID, snap, order.PaymentCredit, decimal.Zero, nil, in.Notes))
		if err != nil {
			return err
		}
		if err := tx.ClearCart(ctx, snap.Cart.ID); err != nil {
			return err
		}
		placed, after = o, c
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	obs.AddCreditReserved(placed.Total.InexactFloat64())
	avail := after.AvailableCredit()
	return Result{Order: placed, AvailableCredit: &avail}, nil
}

// payByCard authorizes the card once, for the total of the locked cart. A
// retry after an order number collision reuses the authorization and fails if
// the cart total no longer matches it.
func (s *Service) payByCard(ctx context.Context, customerID uuid.UUID, in Input) (Result, error) {
	if s.Authorizer == nil {
		return Result{}, errors.New("checkout: card authorizer not configured")
	}
	card := *in.Card
	if err := card.Validate(s.now()); err != nil {
		return Result{}, err
	}
	var (
		placed order.Order
		auth   *payment.Authorization
	)
	err := s.placeWithRetry(ctx, func(tx Store, number string) error {
		snap, err := s.snapshot(ctx, tx, customerID)
		if err != nil {
			return err
		}
		total := snap.Summary.Total
		if auth == nil {
			a, err := s.Authorizer.Authorize(ctx, card, total)
			if err != nil {
				return err
			}
			auth = &a
		} else if !auth.Amount.Equal(total) {
			return common.Detailed(common.ErrConflict, "cart total changed after card authorization",
				map[string]string{"authorized": auth.Amount.StringFixed(2), "total": total.StringFixed(2)})
		}
		ref := auth.Reference
		o, err := tx.CreateOrder(ctx, newOrder(number, customerID, snap, order.PaymentCard, total, &ref, in.Notes))
		if err != nil {
			return err
		}
		if err := tx.ClearCart(ctx, snap.Cart.ID); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		if auth != nil {
			s.Logger.Error().Err(err).
				Str("customer_id", customerID.String()).
				Str("authorization", auth.Reference).
				Msg("order not recorded after card authorization")
		}
		return Result{}, err
	}
	return Result{Order: placed, Authorization: auth}, nil
}

// placeWithRetry runs fn in a transaction, retrying with a fresh order number
// when the generated one collides.
func (s *Service) placeWithRetry(ctx context.Context, fn func(tx Store, number string) error) error {
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number := order.NewOrderNumber(s.now())
		err = s.Store.InTx(ctx, func(tx Store) error { return fn(tx, number) })
		if !errors.Is(err, common.ErrConflict) {
			return err
		}
	}
	return err
}

func newOrder(number string, customerID uuid.UUID, snap cart.Snapshot, method order.PaymentMethod, paid decimal.Decimal, ref, notes *string) order.NewOrder {
	items := make([]order.Item, 0, len(snap.Items))
	for _, it := range snap.Items {
		items = append(items, order.Item{
			ProductID:        it.ProductID,
			Quantity:         it.Quantity,
			UnitPrice:        it.UnitPrice,
			LineTotal:        it.LineTotal(),
			IsFreeItem:       it.IsFreeItem,
			SourceDiscountID: it.SourceDiscountID,
		})
	}
	return order.NewOrder{
		OrderNumber:    number,
		CustomerID:     customerID,
		Subtotal:       snap.Summary.Subtotal,
		DiscountAmount: snap.Summary.DiscountAmount,
		TaxAmount:      snap.Summary.TaxAmount,
		Total:          snap.Summary.Total,
		PaidAmount:     paid,
		PaymentMethod:  method,
		PaymentRef:     ref,
		Notes:          notes,
		Items:          items,
	}
}

func (s *Service) emitCreated(ctx context.Context, o order.Order) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"orderNumber":   o.OrderNumber,
		"customerId":    o.CustomerID,
		"total":         o.Total.StringFixed(2),
		"paymentMethod": o.PaymentMethod,
		"status":        o.Status,
	}
	if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, o.ID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("emit order.created")
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, common.ErrInsufficientCredit):
		return "insufficient_credit"
	case errors.Is(err, payment.ErrCardDeclined):
		return "declined"
	case errors.Is(err, common.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
