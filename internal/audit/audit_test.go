package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/common"
)

type memStore struct {
	mu      sync.Mutex
	entries []Entry
	params  ListParams
	err     error
}

func (m *memStore) Insert(_ context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Entry{}, m.err
	}
	e.ID = uuid.New()
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memStore) List(_ context.Context, p ListParams) ([]Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = p
	return m.entries, len(m.entries), nil
}

func adminRouter(svc *Service, status int) http.Handler {
	rec := Recorder{Service: svc}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.With(rec.Middleware(Route{
		IDParam: "id",
		Metadata: func(_ *http.Request, status int) map[string]any {
			return map[string]any{"status": status}
		},
	})).Patch("/api/customer-rewards/{id}/adjustment", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	return r
}

func adminRequest(actor uuid.UUID, path string) *http.Request {
	req := httptest.NewRequest(http.MethodPatch, path, nil)
	req.RemoteAddr = "10.0.0.2:54321"
	ctx := common.WithCustomerID(req.Context(), actor.String())
	ctx = common.WithRoles(ctx, []string{common.RoleAdmin})
	return req.WithContext(ctx)
}

func TestMiddlewareRecordsAdminAction(t *testing.T) {
	store := &memStore{}
	svc := &Service{Store: store, Enabled: true}
	actor := uuid.New()
	rewardID := uuid.NewString()

	rec := httptest.NewRecorder()
	adminRouter(svc, http.StatusOK).ServeHTTP(rec, adminRequest(actor, "/api/customer-rewards/"+rewardID+"/adjustment"))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	require.Equal(t, "PATCH /api/customer-rewards/{id}/adjustment", e.Action)
	require.Equal(t, "customer-rewards", e.ResourceType)
	require.Equal(t, rewardID, *e.ResourceID)
	require.Equal(t, actor, *e.ActorID)
	require.Equal(t, []string{common.RoleAdmin}, e.ActorRoles)
	require.Equal(t, "10.0.0.2", *e.IP)
	require.NotNil(t, e.RequestID)
	require.JSONEq(t, `{"status":200}`, string(e.Metadata))
}

func TestMiddlewareRecordsRejectedRequests(t *testing.T) {
	store := &memStore{}
	svc := &Service{Store: store, Enabled: true}

	rec := httptest.NewRecorder()
	adminRouter(svc, http.StatusConflict).ServeHTTP(rec, adminRequest(uuid.New(), "/api/customer-rewards/"+uuid.NewString()+"/adjustment"))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, store.entries, 1)
	require.Equal(t, http.StatusConflict, store.entries[0].Status)
}

func TestMiddlewareDisabledOrFailingStore(t *testing.T) {
	store := &memStore{}
	rec := httptest.NewRecorder()
	adminRouter(&Service{Store: store}, http.StatusOK).ServeHTTP(rec, adminRequest(uuid.New(), "/api/customer-rewards/x/adjustment"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, store.entries)

	failing := &memStore{err: errors.New("db down")}
	rec = httptest.NewRecorder()
	adminRouter(&Service{Store: failing, Enabled: true}, http.StatusOK).ServeHTTP(rec, adminRequest(uuid.New(), "/api/customer-rewards/x/adjustment"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildResource(t *testing.T) {
	require.Equal(t, "orders", buildResource("", "/api/orders/{id}/status"))
	require.Equal(t, "reward-tiers", buildResource("", "/api/reward-tiers"))
	require.Equal(t, "tier", buildResource(" tier ", "/api/reward-tiers"))
	require.Equal(t, "unknown", buildResource("", "/"))
}

func TestHandlerList(t *testing.T) {
	store := &memStore{entries: []Entry{{ID: uuid.New(), Action: "POST /api/reward-tiers", ResourceType: "reward-tiers"}}}
	h := Handler{Svc: &Service{Store: store, Enabled: true}}
	actor := uuid.New()

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/audit-logs?resourceType=reward-tiers&actorId="+actor.String()+"&page=2&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "reward-tiers", store.params.ResourceType)
	require.Equal(t, actor, *store.params.ActorID)
	require.Equal(t, 10, store.params.Limit)
	require.Equal(t, 10, store.params.Offset)

	var body struct {
		Data []Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/audit-logs?actorId=nope", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
