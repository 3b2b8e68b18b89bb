package order

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/common"
	"github.com/noah-isme/backend-b2b/internal/events"
)

type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	orders   map[uuid.UUID]Order
	released map[uuid.UUID]decimal.Decimal
	failNext error
}

func newMemStore(orders ...Order) *memStore {
	m := &memStore{orders: map[uuid.UUID]Order{}, released: map[uuid.UUID]decimal.Decimal{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *memStore) List(_ context.Context, p ListParams) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if p.CustomerID != nil && o.CustomerID != *p.CustomerID {
			continue
		}
		if p.Status != "" && o.Status != p.Status {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return Order{}, false, nil
	}
	o.Status = to
	m.orders[id] = o
	return o, true, nil
}

func (m *memStore) AddPayment(_ context.Context, id uuid.UUID, amount decimal.Decimal) (Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status == StatusCancelled || o.PaidAmount.Add(amount).GreaterThan(o.Total) {
		return Order{}, false, nil
	}
	o.PaidAmount = o.PaidAmount.Add(amount)
	m.orders[id] = o
	return o, true, nil
}

func (m *memStore) ReleaseCredit(_ context.Context, customerID uuid.UUID, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.released[customerID] = m.released[customerID].Add(amount)
	return nil
}

// InTx snapshots the orders and restores them when fn fails.
func (m *memStore) InTx(_ context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.mu.Lock()
	snapshot := make(map[uuid.UUID]Order, len(m.orders))
	for k, v := range m.orders {
		snapshot[k] = v
	}
	m.mu.Unlock()
	if err := fn(m); err != nil {
		m.mu.Lock()
		m.orders = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic string, aggregateID uuid.UUID, _ any) (events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return events.Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID}, nil
}

func creditOrder(customerID uuid.UUID, status Status, total, paid string) Order {
	return Order{
		ID:            uuid.New(),
		OrderNumber:   NewOrderNumber(time.Now()),
		CustomerID:    customerID,
		Subtotal:      decimal.RequireFromString(total),
		Total:         decimal.RequireFromString(total),
		PaidAmount:    decimal.RequireFromString(paid),
		PaymentMethod: PaymentCredit,
		Status:        status,
	}
}

func newService(store *memStore) (*Service, *captureEmitter) {
	em := &captureEmitter{}
	return &Service{Store: store, Events: em, Logger: zerolog.Nop()}, em
}

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:    true,
		{StatusConfirmed, StatusProcessing}: true,
		{StatusProcessing, StatusShipped}:   true,
		{StatusShipped, StatusDelivered}:    true,
		{StatusPending, StatusCancelled}:    true,
		{StatusConfirmed, StatusCancelled}:  true,
		{StatusProcessing, StatusCancelled}: true,
		{StatusShipped, StatusCancelled}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			require.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestOrderNumberFormat(t *testing.T) {
	n := NewOrderNumber(time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC))
	require.Regexp(t, regexp.MustCompile(`^ORD-20250309-[0-9A-F]{8}$`), n)
	require.NotEqual(t, n, NewOrderNumber(time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)))
}

func TestTransitionFollowsLifecycle(t *testing.T) {
	customer := uuid.New()
	o := creditOrder(customer, StatusPending, "100", "0")
	store := newMemStore(o)
	svc, em := newService(store)
	ctx := context.Background()

	for _, next := range []Status{StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered} {
		updated, err := svc.Transition(ctx, o.ID, next)
		require.NoError(t, err)
		require.Equal(t, next, updated.Status)
	}
	require.Len(t, em.topics, 4)
	require.Equal(t, events.TopicOrderStatusChanged, em.topics[0])

	_, err := svc.Transition(ctx, o.ID, StatusShipped)
	require.ErrorIs(t, err, common.ErrInvalidStatusTransition)
	code, status := common.Classify(err)
	require.Equal(t, "INVALID_STATUS_TRANSITION", code)
	require.Equal(t, 409, status)

	_, err = svc.Transition(ctx, o.ID, StatusCancelled)
	require.ErrorIs(t, err, common.ErrInvalidStatusTransition)

	_, err = svc.Transition(ctx, o.ID, Status("lost"))
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestCancelReleasesOutstandingCredit(t *testing.T) {
	customer := uuid.New()
	o := creditOrder(customer, StatusShipped, "300", "120")
	store := newMemStore(o)
	svc, em := newService(store)

	cancelled, err := svc.Cancel(context.Background(), Actor{CustomerID: customer}, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "180", store.released[customer].String())
	require.Equal(t, []string{events.TopicOrderCancelled}, em.topics)

	_, err = svc.Cancel(context.Background(), Actor{CustomerID: customer}, o.ID)
	require.ErrorIs(t, err, common.ErrInvalidStatusTransition)
	require.Equal(t, "180", store.released[customer].String())
}

func TestCancelCardOrderLeavesCredit(t *testing.T) {
	customer := uuid.New()
	o := creditOrder(customer, StatusPending, "80", "80")
	o.PaymentMethod = PaymentCard
	store := newMemStore(o)
	svc, _ := newService(store)

	_, err := svc.Cancel(context.Background(), Actor{Admin: true}, o.ID)
	require.NoError(t, err)
	require.True(t, store.released[customer].IsZero())
}

func TestCancelHidesOtherCustomersOrders(t *testing.T) {
	o := creditOrder(uuid.New(), StatusPending, "50", "0")
	store := newMemStore(o)
	svc, _ := newService(store)

	_, err := svc.Cancel(context.Background(), Actor{CustomerID: uuid.New()}, o.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	got, err := store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

func TestCancelRollsBackWhenReleaseFails(t *testing.T) {
	customer := uuid.New()
	o := creditOrder(customer, StatusConfirmed, "50", "0")
	store := newMemStore(o)
	store.failNext = context.DeadlineExceeded
	svc, em := newService(store)

	_, err := svc.Cancel(context.Background(), Actor{Admin: true}, o.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	got, err := store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, got.Status)
	require.Empty(t, em.topics)
}

func TestConcurrentTransitionsOneWins(t *testing.T) {
	o := creditOrder(uuid.New(), StatusPending, "10", "0")
	store := newMemStore(o)
	svc, _ := newService(store)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Transition(context.Background(), o.ID, StatusConfirmed); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestRecordPayment(t *testing.T) {
	customer := uuid.New()
	o := creditOrder(customer, StatusDelivered, "300", "0")
	store := newMemStore(o)
	svc, em := newService(store)
	ctx := context.Background()

	paid, err := svc.RecordPayment(ctx, o.ID, decimal.NewFromInt(200), "TRX-1")
	require.NoError(t, err)
	require.Equal(t, "200", paid.PaidAmount.String())
	require.Equal(t, "200", store.released[customer].String())
	require.Equal(t, []string{events.TopicOrderPaymentRecorded}, em.topics)

	_, err = svc.RecordPayment(ctx, o.ID, decimal.NewFromInt(150), "TRX-2")
	require.ErrorIs(t, err, common.ErrValidation)
	require.Equal(t, "200", store.released[customer].String())

	_, err = svc.RecordPayment(ctx, o.ID, decimal.Zero, "")
	require.ErrorIs(t, err, common.ErrValidation)

	paid, err = svc.RecordPayment(ctx, o.ID, decimal.NewFromInt(100), "TRX-3")
	require.NoError(t, err)
	require.True(t, paid.Outstanding().IsZero())
}

func TestRecordPaymentRejectsCardAndCancelled(t *testing.T) {
	card := creditOrder(uuid.New(), StatusPending, "10", "10")
	card.PaymentMethod = PaymentCard
	cancelled := creditOrder(uuid.New(), StatusCancelled, "10", "0")
	store := newMemStore(card, cancelled)
	svc, _ := newService(store)

	_, err := svc.RecordPayment(context.Background(), card.ID, decimal.NewFromInt(1), "")
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.RecordPayment(context.Background(), cancelled.ID, decimal.NewFromInt(1), "")
	require.ErrorIs(t, err, common.ErrInvalidStatusTransition)
}

func TestListScopesCustomers(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	store := newMemStore(creditOrder(a, StatusPending, "1", "0"), creditOrder(a, StatusDelivered, "2", "0"), creditOrder(b, StatusPending, "3", "0"))
	svc, _ := newService(store)
	ctx := context.Background()

	items, total, err := svc.List(ctx, Actor{CustomerID: a}, ListParams{CustomerID: &b})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, items, 2)

	_, total, err = svc.List(ctx, Actor{Admin: true}, ListParams{Status: StatusPending})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	_, _, err = svc.List(ctx, Actor{Admin: true}, ListParams{Status: "bogus"})
	require.ErrorIs(t, err, common.ErrValidation)
}
