package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// Handler exposes order endpoints for customers and admins.
type Handler struct {
	Svc *Service
}

type patchStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=120"`
}

func actorFrom(r *http.Request) (Actor, error) {
	actor := Actor{Admin: common.IsAdmin(r.Context())}
	if raw, ok := common.CustomerID(r.Context()); ok {
		id, err := uuid.Parse(raw)
		if err != nil && !actor.Admin {
			return Actor{}, common.Detailed(common.ErrForbidden, "invalid customer identity", nil)
		}
		actor.CustomerID = id
	}
	if actor.CustomerID == uuid.Nil && !actor.Admin {
		return Actor{}, common.Detailed(common.ErrForbidden, "customer identity required", nil)
	}
	return actor, nil
}

func orderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, common.Detailed(common.ErrValidation, "invalid order id", nil)
	}
	return id, nil
}

// List handles GET /api/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	params := ListParams{
		Status: Status(r.URL.Query().Get("status")),
		Limit:  perPage,
		Offset: common.Offset(page, perPage),
	}
	if raw := r.URL.Query().Get("customerId"); raw != "" && actor.Admin {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.WriteError(w, common.Detailed(common.ErrValidation, "invalid customerId", nil))
			return
		}
		params.CustomerID = &id
	}
	items, total, err := h.Svc.List(r.Context(), actor, params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if items == nil {
		items = []Order{}
	}
	common.Paged(w, items, common.NewPagination(page, perPage, total))
}

// Get handles GET /api/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	id, err := orderID(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.Get(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, o)
}

// Cancel handles POST /api/orders/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	id, err := orderID(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.Cancel(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, o)
}

// PatchStatus handles PATCH /api/orders/{id}/status (admin).
func (h *Handler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req patchStatusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.Transition(r.Context(), id, req.Status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, o)
}

// RecordPayment handles POST /api/orders/{id}/payments (admin).
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req paymentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.RecordPayment(r.Context(), id, req.Amount, req.Reference)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, o)
}
