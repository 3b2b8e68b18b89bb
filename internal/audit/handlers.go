package audit

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	Svc *Service
}

// List handles GET /api/audit-logs.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := common.ParsePagination(r, 50)
	params := ListParams{
		ResourceType: q.Get("resourceType"),
		ResourceID:   q.Get("resourceId"),
		Limit:        perPage,
		Offset:       common.Offset(page, perPage),
	}
	if raw := q.Get("actorId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.WriteError(w, common.Detailed(common.ErrValidation, "invalid actorId", nil))
			return
		}
		params.ActorID = &id
	}
	items, total, err := h.Svc.List(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if items == nil {
		items = []Entry{}
	}
	common.Paged(w, items, common.NewPagination(page, perPage, total))
}
