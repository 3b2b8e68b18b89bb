package audit

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-b2b/internal/common"
)

// Store persists and lists entries.
type Store interface {
	Insert(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context, p ListParams) ([]Entry, int, error)
}

// Service records audit entries.
type Service struct {
	Store   Store
	Enabled bool
	Logger  zerolog.Logger
}

// Record stores what req did. Failures never reach the caller's response;
// they are returned for the middleware to log.
func (s *Service) Record(ctx context.Context, req *http.Request, action, resourceType, resourceID string, status int, metadata []byte) error {
	if s == nil || !s.Enabled {
		return nil
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	if req == nil {
		return errors.New("audit: request is required")
	}

	route := req.URL.Path
	if rc := chi.RouteContext(req.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	e := Entry{
		Action:       buildAction(action, req.Method, route),
		ResourceType: buildResource(resourceType, route),
		ResourceID:   optional(resourceID),
		Method:       req.Method,
		Route:        route,
		Status:       status,
		IP:           optional(common.ClientIP(req)),
		RequestID:    optional(middleware.GetReqID(req.Context())),
		Metadata:     metadata,
	}
	if raw, ok := common.CustomerID(req.Context()); ok {
		if id, err := uuid.Parse(raw); err == nil {
			e.ActorID = &id
		}
	}
	e.ActorRoles = common.Roles(req.Context())
	if e.Status == 0 {
		e.Status = http.StatusOK
	}
	_, err := s.Store.Insert(ctx, e)
	return err
}

// List returns the trail for the admin listing.
func (s *Service) List(ctx context.Context, p ListParams) ([]Entry, int, error) {
	if s == nil || s.Store == nil {
		return nil, 0, errors.New("audit: store not configured")
	}
	return s.Store.List(ctx, p)
}

func buildAction(action, method, route string) string {
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		return trimmed
	}
	return strings.ToUpper(method) + " " + route
}

// buildResource derives "customer-rewards" from "/api/customer-rewards/{id}/cancel".
func buildResource(resourceType, route string) string {
	if trimmed := strings.TrimSpace(resourceType); trimmed != "" {
		return trimmed
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 2 && segments[0] == "api" {
		return segments[1]
	}
	if len(segments) == 1 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
