package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// Handler wires cart services to HTTP. Every route acts on the caller's own cart.
type Handler struct {
	Svc *Service
}

type addItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

type claimRequest struct {
	Selections []Selection `json:"selections" validate:"required,min=1,dive"`
}

type claimStateResponse struct {
	DiscountID uuid.UUID  `json:"discountId"`
	State      ClaimState `json:"state"`
}

// CustomerFromContext extracts the authenticated customer as a UUID.
func CustomerFromContext(r *http.Request) (uuid.UUID, error) {
	raw, ok := common.CustomerID(r.Context())
	if !ok {
		return uuid.Nil, common.Detailed(common.ErrForbidden, "customer identity required", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.Detailed(common.ErrForbidden, "invalid customer identity", nil)
	}
	return id, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, common.Detailed(common.ErrValidation, "invalid "+name, nil)
	}
	return id, nil
}

// Get handles GET /api/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, err := CustomerFromContext(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.View(r.Context(), customerID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, view)
}

// AddItem handles POST /api/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	customerID, err := CustomerFromContext(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req addItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.AddItem(r.Context(), customerID, req.ProductID, req.Quantity)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusCreated, view)
}

// UpdateItem handles PATCH /api/cart/items/{itemId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	customerID, err := CustomerFromContext(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	itemID, err := pathID(r, "itemId")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req updateItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.UpdateItem(r.Context(), customerID, itemID, req.Quantity)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, view)
}

// RemoveItem handles DELETE /api/cart/items/{itemId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	customerID, err := CustomerFromContext(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	itemID, err := pathID(r, "itemId")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.RemoveItem(r.Context(), customerID, itemID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, view)
}

// Claim handles POST /api/cart/discounts/{discountId}/claim.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	customerID, err := CustomerFromContext(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	discountID, err := pathID(r, "discountId")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req claimRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Claim(r.Context(), customerID, discountID, req.Selections)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	common.OK(w, status, res)
}

// ClaimState handles GET /api/cart/discounts/{discountId}/claim.
func (h *Handler) ClaimState(w http.ResponseWriter, r *http.Request) {
	customerID, err := CustomerFromContext(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	discountID, err := pathID(r, "discountId")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	state, err := h.Svc.State(r.Context(), customerID, discountID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.OK(w, http.StatusOK, claimStateResponse{DiscountID: discountID, State: state})
}
