package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/events"
	"github.com/noah-isme/backend-b2b/internal/obs"
)

// Store captures the persistence operations required by the order service.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	List(ctx context.Context, p ListParams) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (Order, bool, error)
	AddPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (Order, bool, error)
	ReleaseCredit(ctx context.Context, customerID uuid.UUID, amount decimal.Decimal) error
	InTx(ctx context.Context, fn func(Store) error) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// Actor identifies who is acting on an order.
type Actor struct {
	CustomerID uuid.UUID
	Admin      bool
}

func (a Actor) canSee(o Order) bool {
	return a.Admin || (a.CustomerID != uuid.Nil && a.CustomerID == o.CustomerID)
}

// Service manages the order lifecycle and its credit settlement.
type Service struct {
	Store  Store
	Events Emitter
	Logger zerolog.Logger
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("order service not configured")
	}
	return nil
}

// Get returns an order visible to the actor.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !actor.canSee(o) {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// List returns the actor's orders. Admins may list any customer's orders.
func (s *Service) List(ctx context.Context, actor Actor, p ListParams) ([]Order, int, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	if p.Status != "" && !p.Status.Valid() {
		return nil, 0, common.Detailed(common.ErrValidation, "unknown order status", map[string]string{"status": string(p.Status)})
	}
	if !actor.Admin {
		id := actor.CustomerID
		p.CustomerID = &id
	}
	return s.Store.List(ctx, p)
}

// Transition moves an order to target following the lifecycle table.
// Cancellation is routed through Cancel so credit is always released.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target Status) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	if !target.Valid() {
		return Order{}, common.Detailed(common.ErrValidation, "unknown order status", map[string]string{"status": string(target)})
	}
	if target == StatusCancelled {
		return s.Cancel(ctx, Actor{Admin: true}, id)
	}
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(current.Status, target) {
		obs.IncOrderTransition(string(target), "rejected")
		return Order{}, invalidTransition(current.Status, target)
	}
	updated, ok, err := s.Store.UpdateStatus(ctx, id, current.Status, target)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		obs.IncOrderTransition(string(target), "conflict")
		return Order{}, common.Detailed(common.ErrConflict, "order status changed concurrently", nil)
	}
	updated.Items = current.Items
	obs.IncOrderTransition(string(target), "ok")
	s.emit(ctx, events.TopicOrderStatusChanged, updated, map[string]any{
		"orderNumber": updated.OrderNumber,
		"from":        current.Status,
		"to":          target,
	})
	return updated, nil
}

// Cancel cancels an order. For credit orders the unpaid part of the total is
// returned to the customer's credit in the same transaction.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	var (
		cancelled Order
		released  decimal.Decimal
		from      Status
	)
	err := s.Store.InTx(ctx, func(tx Store) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if !actor.canSee(current) {
			return ErrNotFound
		}
		from = current.Status
		if !CanTransition(current.Status, StatusCancelled) {
			return invalidTransition(current.Status, StatusCancelled)
		}
		updated, ok, err := tx.UpdateStatus(ctx, id, current.Status, StatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return common.Detailed(common.ErrConflict, "order status changed concurrently", nil)
		}
		if current.PaymentMethod == PaymentCredit {
			released = current.Outstanding()
			if released.IsPositive() {
				if err := tx.ReleaseCredit(ctx, current.CustomerID, released); err != nil {
					return err
				}
			}
		}
		updated.Items = current.Items
		cancelled = updated
		return nil
	})
	if err != nil {
		obs.IncOrderTransition(string(StatusCancelled), transitionOutcome(err))
		return Order{}, err
	}
	obs.IncOrderTransition(string(StatusCancelled), "ok")
	s.emit(ctx, events.TopicOrderCancelled, cancelled, map[string]any{
		"orderNumber":    cancelled.OrderNumber,
		"from":           from,
		"creditReleased": released.StringFixed(2),
	})
	return cancelled, nil
}

// RecordPayment registers a payment against a credit order, raising its paid
// amount and releasing the same amount of credit in one transaction.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, reference string) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	if !amount.IsPositive() {
		return Order{}, common.Detailed(common.ErrValidation, "payment amount must be positive", nil)
	}
	var paid Order
	err := s.Store.InTx(ctx, func(tx Store) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.PaymentMethod != PaymentCredit {
			return common.Detailed(common.ErrValidation, "payments can only be recorded against credit orders", nil)
		}
		if current.Status == StatusCancelled {
			return invalidTransition(current.Status, current.Status)
		}
		updated, ok, err := tx.AddPayment(ctx, id, amount)
		if err != nil {
			return err
		}
		if !ok {
			return common.Detailed(common.ErrValidation, "payment exceeds the outstanding amount",
				map[string]string{"outstanding": current.Outstanding().StringFixed(2), "amount": amount.StringFixed(2)})
		}
		if err := tx.ReleaseCredit(ctx, current.CustomerID, amount); err != nil {
			return err
		}
		updated.Items = current.Items
		paid = updated
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.emit(ctx, events.TopicOrderPaymentRecorded, paid, map[string]any{
		"orderNumber": paid.OrderNumber,
		"amount":      amount.StringFixed(2),
		"paidAmount":  paid.PaidAmount.StringFixed(2),
		"reference":   reference,
	})
	return paid, nil
}

func (s *Service) emit(ctx context.Context, topic string, o Order, payload map[string]any) {
	if s.Events == nil {
		return
	}
	payload["customerId"] = o.CustomerID
	payload["status"] = o.Status
	if _, err := s.Events.Emit(ctx, topic, o.ID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("order_id", o.ID.String()).Msg("emit order event")
	}
}

func invalidTransition(from, to Status) error {
	return common.Detailed(common.ErrInvalidStatusTransition, "order cannot move from "+string(from)+" to "+string(to),
		map[string]string{"from": string(from), "to": string(to)})
}

func transitionOutcome(err error) string {
	switch {
	case errors.Is(err, common.ErrInvalidStatusTransition):
		return "rejected"
	case errors.Is(err, common.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
