package discount

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// Handler exposes discount endpoints. Mutations are mounted behind the admin role.
type Handler struct {
	Svc *Service
}

// List returns discounts, optionally only active ones.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	items, total, err := h.Svc.List(r.Context(), ListParams{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      perPage,
		Offset:     common.Offset(page, perPage),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if items == nil {
		items = []Discount{}
	}
	common.Paged(w, items, common.NewPagination(page, perPage, total))
}

// Get returns one discount.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.Detailed(common.ErrValidation, "invalid discount id", nil))
		return
	}
	d, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, d)
}

// Create inserts a new discount.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	d, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusCreated, d)
}

// Update replaces an existing discount.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.Detailed(common.ErrValidation, "invalid discount id", nil))
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	d, err := h.Svc.Update(r.Context(), id, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, d)
}
