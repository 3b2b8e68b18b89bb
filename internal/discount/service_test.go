package discount

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/common"
)

type memStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]Discount
}

func newMemStore(ds ...Discount) *memStore {
	m := &memStore{items: map[uuid.UUID]Discount{}}
	for _, d := range ds {
		m.items[d.ID] = d
	}
	return m
}

func (m *memStore) ListEffective(_ context.Context, now time.Time) ([]Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Discount
	for _, d := range m.items {
		if d.IsActive && !now.Before(d.StartDate) && !now.After(d.EndDate) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return Discount{}, ErrNotFound
	}
	return d, nil
}

func (m *memStore) List(_ context.Context, p ListParams) ([]Discount, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Discount
	for _, d := range m.items {
		if p.ActiveOnly && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *memStore) Create(_ context.Context, d Discount) (Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	m.items[d.ID] = d
	return d, nil
}

func (m *memStore) Update(_ context.Context, d Discount) (Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[d.ID]; !ok {
		return Discount{}, ErrNotFound
	}
	m.items[d.ID] = d
	return d, nil
}

func TestServiceEvaluateFiltersByClock(t *testing.T) {
	live := newDiscount(TypePercentage, "10")
	expired := newDiscount(TypePercentage, "90")
	expired.EndDate = expired.StartDate.Add(time.Hour)
	svc := &Service{
		Store:  newMemStore(live, expired),
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return live.StartDate.AddDate(0, 1, 0) },
	}

	res, err := svc.Evaluate(context.Background(), []Line{{ProductID: prodA, Quantity: 10, UnitPrice: dec("100")}})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	require.Equal(t, live.ID, res.Applied[0].DiscountID)
	require.True(t, res.Total.Equal(dec("100")))
}

func TestServiceCreateRejectsInvalid(t *testing.T) {
	svc := &Service{Store: newMemStore()}
	start, end := window()

	_, err := svc.Create(context.Background(), Input{Name: "bogus", Type: TypeBuyGet, StartDate: start, EndDate: end})
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Create(context.Background(), Input{Name: "inverted", Type: TypeFixed, Value: dec("5"), StartDate: end, EndDate: start})
	require.ErrorIs(t, err, common.ErrValidation)

	d, err := svc.Create(context.Background(), Input{Name: "ok", Type: TypeBuyGet, MinQuantity: 3, BonusQuantity: 1, StartDate: start, EndDate: end})
	require.NoError(t, err)
	require.True(t, d.IsActive)
}

func TestHandlerCreateAndGet(t *testing.T) {
	store := newMemStore()
	h := &Handler{Svc: &Service{Store: store}}
	r := chi.NewRouter()
	r.Post("/api/discounts", h.Create)
	r.Get("/api/discounts/{id}", h.Get)

	body := `{"name":"Spring","type":"percentage","value":"12.5","startDate":"2026-03-01T00:00:00Z","endDate":"2026-05-31T23:59:59Z"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/discounts", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":true`)
	require.Len(t, store.items, 1)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/discounts", strings.NewReader(`{"name":"x","type":"mystery"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/discounts/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
