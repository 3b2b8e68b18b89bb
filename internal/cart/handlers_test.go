package cart

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/common"
)

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{itemId}", h.UpdateItem)
		r.Delete("/items/{itemId}", h.RemoveItem)
		r.Post("/discounts/{discountId}/claim", h.Claim)
		r.Get("/discounts/{discountId}/claim", h.ClaimState)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, customer uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if customer != uuid.Nil {
		req = req.WithContext(common.WithCustomerID(req.Context(), customer.String()))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCartHandlersClaimFlow(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(&Handler{Svc: f.svc})

	rec := doJSON(t, router, f.customer, http.MethodPost, "/api/cart/items", map[string]any{"productId": f.water, "quantity": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	claimPath := "/api/cart/discounts/" + f.buyGet.ID.String() + "/claim"
	rec = doJSON(t, router, f.customer, http.MethodPost, claimPath, map[string]any{
		"selections": []map[string]any{{"productId": f.water, "quantity": 3}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var failed struct {
		Error struct {
			Code    string       `json:"code"`
			Details claimDetails `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	require.Equal(t, "VALIDATION_ERROR", failed.Error.Code)
	require.Equal(t, claimDetails{Entitled: 2, Selected: 3, Remaining: -1}, failed.Error.Details)

	body := map[string]any{"selections": []map[string]any{{"productId": f.water, "quantity": 2}}}
	rec = doJSON(t, router, f.customer, http.MethodPost, claimPath, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, f.customer, http.MethodPost, claimPath, body)
	require.Equal(t, http.StatusOK, rec.Code)
	var replay struct {
		Data ClaimResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &replay))
	require.True(t, replay.Data.Replayed)

	rec = doJSON(t, router, f.customer, http.MethodPost, claimPath, map[string]any{
		"selections": []map[string]any{{"productId": f.water, "quantity": 1}, {"productId": f.tea, "quantity": 1}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), `"ALREADY_CLAIMED"`)

	rec = doJSON(t, router, f.customer, http.MethodGet, "/api/cart/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCartHandlersValidation(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(&Handler{Svc: f.svc})

	rec := doJSON(t, router, uuid.Nil, http.MethodGet, "/api/cart/", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, f.customer, http.MethodPost, "/api/cart/items", map[string]any{"productId": f.water, "quantity": 0})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, f.customer, http.MethodPatch, "/api/cart/items/not-a-uuid", map[string]any{"quantity": 1})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, f.customer, http.MethodDelete, "/api/cart/items/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartHandlersClaimState(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(&Handler{Svc: f.svc})
	claimPath := "/api/cart/discounts/" + f.buyGet.ID.String() + "/claim"

	readState := func() ClaimState {
		t.Helper()
		rec := doJSON(t, router, f.customer, http.MethodGet, claimPath, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Data claimStateResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, f.buyGet.ID, resp.Data.DiscountID)
		return resp.Data.State
	}

	rec := doJSON(t, router, f.customer, http.MethodPost, "/api/cart/items", map[string]any{"productId": f.water, "quantity": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, Unclaimed, readState())

	rec = doJSON(t, router, f.customer, http.MethodPost, claimPath, map[string]any{
		"selections": []map[string]any{{"productId": f.water, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, Claimed, readState())

	rec = doJSON(t, router, uuid.Nil, http.MethodGet, claimPath, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, f.customer, http.MethodGet, "/api/cart/discounts/nope/claim", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
