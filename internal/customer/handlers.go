package customer

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// Getter loads customers.
type Getter interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error)
}

// Handler serves customer lookups.
type Handler struct {
	Store Getter
}

// Get returns a customer with its available credit. Customers may only read
// their own record; admins may read any.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	if raw == "me" {
		raw, _ = common.CustomerID(r.Context())
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.WriteError(w, common.Detailed(common.ErrValidation, "invalid customer id", nil))
		return
	}
	if self, _ := common.CustomerID(r.Context()); self != id.String() && !common.IsAdmin(r.Context()) {
		common.WriteError(w, common.Detailed(common.ErrForbidden, "cannot read another customer", nil))
		return
	}
	c, err := h.Store.GetCustomer(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, NewView(c))
}
