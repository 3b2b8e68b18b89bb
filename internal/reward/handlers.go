package reward

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// Enqueuer hands reward runs to the background worker.
type Enqueuer interface {
	EnqueueCalculate(ctx context.Context, p Period) (string, error)
	EnqueueProcess(ctx context.Context, p Period) (string, error)
}

// Handler exposes the admin reward endpoints.
type Handler struct {
	Svc   *Service
	Queue Enqueuer
}

type runRequest struct {
	Period
	Async bool `json:"async"`
}

type adjustmentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Notes  *string         `json:"notes" validate:"omitempty,max=500"`
}

type queuedRun struct {
	TaskID string `json:"taskId"`
	Period Period `json:"period"`
}

func pathID(r *http.Request, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, common.Detailed(common.ErrValidation, "invalid "+what+" id", nil)
	}
	return id, nil
}

// ListTiers handles GET /api/reward-tiers.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tiers, err := h.Svc.ListTiers(r.Context(), TierFilter{
		Quarter:    common.AtoiDefault(q.Get("quarter"), 0),
		Year:       common.AtoiDefault(q.Get("year"), 0),
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if tiers == nil {
		tiers = []Tier{}
	}
	common.OK(w, http.StatusOK, tiers)
}

// CreateTier handles POST /api/reward-tiers.
func (h *Handler) CreateTier(w http.ResponseWriter, r *http.Request) {
	var in TierInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	t, err := h.Svc.CreateTier(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusCreated, t)
}

// UpdateTier handles PUT /api/reward-tiers/{id}.
func (h *Handler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tier")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var in TierInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	t, err := h.Svc.UpdateTier(r.Context(), id, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, t)
}

// List handles GET /api/customer-rewards.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := common.ParsePagination(r, 20)
	params := ListParams{
		Quarter: common.AtoiDefault(q.Get("quarter"), 0),
		Year:    common.AtoiDefault(q.Get("year"), 0),
		Status:  Status(q.Get("status")),
		Limit:   perPage,
		Offset:  common.Offset(page, perPage),
	}
	if raw := q.Get("customerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.WriteError(w, common.Detailed(common.ErrValidation, "invalid customerId", nil))
			return
		}
		params.CustomerID = &id
	}
	items, total, err := h.Svc.List(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Paged(w, items, common.NewPagination(page, perPage, total))
}

// Calculate handles POST /api/customer-rewards/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if req.Async && h.Queue != nil {
		h.enqueue(w, r, req.Period, h.Queue.EnqueueCalculate)
		return
	}
	res, err := h.Svc.Calculate(r.Context(), req.Period)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, res)
}

// Process handles POST /api/customer-rewards/process.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if req.Async && h.Queue != nil {
		h.enqueue(w, r, req.Period, h.Queue.EnqueueProcess)
		return
	}
	res, err := h.Svc.Process(r.Context(), req.Period)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, res)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, p Period, fn func(context.Context, Period) (string, error)) {
	if err := p.Validate(); err != nil {
		common.WriteError(w, err)
		return
	}
	taskID, err := fn(r.Context(), p)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusAccepted, queuedRun{TaskID: taskID, Period: p})
}

// SetAdjustment handles PATCH /api/customer-rewards/{id}/adjustment.
func (h *Handler) SetAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "reward")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req adjustmentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	v, err := h.Svc.SetAdjustment(r.Context(), id, req.Amount, req.Notes)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, v)
}

// Cancel handles POST /api/customer-rewards/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "reward")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	v, err := h.Svc.Cancel(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, v)
}
