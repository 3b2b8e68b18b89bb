package checkout

import (
	"net/http"

	"github.com/noah-isme/backend-b2b/internal/cart"
	"github.com/noah-isme/backend-b2b/internal/common"
)

// Handler exposes checkout endpoints.
type Handler struct {
	Svc *Service
}

// Checkout handles POST /api/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	customerID, err := cart.CustomerFromContext(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Checkout(r.Context(), customerID, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusCreated, res)
}
