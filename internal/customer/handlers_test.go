package customer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/common"
)

type stubGetter map[uuid.UUID]Customer

func (s stubGetter) GetCustomer(_ context.Context, id uuid.UUID) (Customer, error) {
	c, ok := s[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func TestGetReturnsAvailableCredit(t *testing.T) {
	id := uuid.New()
	store := stubGetter{id: {ID: id, Name: "Acme", CreditLimit: decimal.NewFromInt(5000), CreditUsed: decimal.NewFromInt(4800)}}
	h := &Handler{Store: store}
	r := chi.NewRouter()
	r.Get("/api/customers/{id}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/customers/me", nil)
	req = req.WithContext(common.WithCustomerID(req.Context(), id.String()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			AvailableCredit string `json:"availableCredit"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "200", body.Data.AvailableCredit)
}

func TestGetForbiddenForOtherCustomer(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	h := &Handler{Store: stubGetter{owner: {ID: owner}}}
	r := chi.NewRouter()
	r.Get("/api/customers/{id}", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/customers/"+owner.String(), nil)
	req = req.WithContext(common.WithCustomerID(req.Context(), other.String()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/customers/"+owner.String(), nil)
	req = req.WithContext(common.WithRoles(common.WithCustomerID(req.Context(), other.String()), []string{common.RoleAdmin}))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestShortfallDetails(t *testing.T) {
	c := Customer{CreditLimit: decimal.NewFromInt(5000), CreditUsed: decimal.NewFromInt(4800)}
	err := Shortfall(c, decimal.NewFromInt(300))
	require.ErrorIs(t, err, common.ErrInsufficientCredit)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, map[string]string{"available": "200.00", "required": "300.00", "shortfall": "100.00"}, appErr.Details)
}
