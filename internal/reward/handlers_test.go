package reward

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	calculated []Period
	processed  []Period
}

func (q *fakeQueue) EnqueueCalculate(_ context.Context, p Period) (string, error) {
	q.calculated = append(q.calculated, p)
	return "calc-1", nil
}

func (q *fakeQueue) EnqueueProcess(_ context.Context, p Period) (string, error) {
	q.processed = append(q.processed, p)
	return "proc-1", nil
}

func newRewardRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/reward-tiers", h.ListTiers)
	r.Post("/api/reward-tiers", h.CreateTier)
	r.Put("/api/reward-tiers/{id}", h.UpdateTier)
	r.Route("/api/customer-rewards", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/calculate", h.Calculate)
		r.Post("/process", h.Process)
		r.Patch("/{id}/adjustment", h.SetAdjustment)
		r.Post("/{id}/cancel", h.Cancel)
	})
	return r
}

func send(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRewardHandlersBatchFlow(t *testing.T) {
	f := newFixture(t)
	queue := &fakeQueue{}
	router := newRewardRouter(&Handler{Svc: f.svc, Queue: queue})

	rec := send(t, router, http.MethodPost, "/api/reward-tiers", map[string]any{
		"quarter": 1, "year": 2025, "minCartons": 10, "maxCartons": 20, "cashbackPerCarton": "9",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec = send(t, router, http.MethodGet, "/api/reward-tiers?quarter=1&year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tiers struct {
		Data []Tier `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tiers))
	require.Len(t, tiers.Data, 2)

	rec = send(t, router, http.MethodPost, "/api/customer-rewards/calculate", map[string]any{"quarter": 1, "year": 2025})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	big := f.store.rewardFor(f.big, q1)
	rec = send(t, router, http.MethodPatch, "/api/customer-rewards/"+big.ID.String()+"/adjustment", map[string]any{"amount": "-20"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var adjusted struct {
		Data struct {
			FinalReward string `json:"finalReward"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &adjusted))
	require.Equal(t, "220", adjusted.Data.FinalReward)

	rec = send(t, router, http.MethodPost, "/api/customer-rewards/process", map[string]any{"quarter": 1, "year": 2025, "async": true})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []Period{q1}, queue.processed)
	require.Equal(t, StatusPending, f.store.rewardFor(f.big, q1).Status)

	rec = send(t, router, http.MethodPost, "/api/customer-rewards/process", map[string]any{"quarter": 1, "year": 2025})
	require.Equal(t, http.StatusOK, rec.Code)
	var batch struct {
		Data BatchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	require.Equal(t, 2, batch.Data.Processed)

	rec = send(t, router, http.MethodPost, "/api/customer-rewards/"+big.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_STATUS_TRANSITION")

	rec = send(t, router, http.MethodGet, "/api/customer-rewards?status=processed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"pagination"`)
}

func TestRewardHandlersRejectBadPeriod(t *testing.T) {
	f := newFixture(t)
	router := newRewardRouter(&Handler{Svc: f.svc, Queue: &fakeQueue{}})

	rec := send(t, router, http.MethodPost, "/api/customer-rewards/calculate", map[string]any{"quarter": 7, "year": 2025, "async": true})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = send(t, router, http.MethodPatch, "/api/customer-rewards/not-a-uuid/adjustment", map[string]any{"amount": "1"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
