package catalog

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// Handler exposes catalog endpoints.
type Handler struct {
	Resolver *Resolver
}

// Products handles GET /api/products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	items, total, err := h.Resolver.ListProducts(r.Context(), ListParams{
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:  perPage,
		Offset: common.Offset(page, perPage),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if items == nil {
		items = []Product{}
	}
	common.Paged(w, items, common.NewPagination(page, perPage, total))
}

// ProductPrice handles GET /api/products/{id}/price for the calling customer.
func (h *Handler) ProductPrice(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, common.Detailed(common.ErrValidation, "invalid product id", nil))
		return
	}
	var customerID uuid.UUID
	if raw, ok := common.CustomerID(r.Context()); ok {
		if customerID, err = uuid.Parse(raw); err != nil {
			common.WriteError(w, common.Detailed(common.ErrForbidden, "invalid customer identity", nil))
			return
		}
	}
	price, err := h.Resolver.Resolve(r.Context(), customerID, productID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, price)
}
