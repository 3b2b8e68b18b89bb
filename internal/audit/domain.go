// Package audit keeps a trail of back-office mutations: who changed a tier,
// adjusted a reward, moved an order or recorded a payment.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one recorded action.
type Entry struct {
	ID           uuid.UUID       `json:"id"`
	ActorID      *uuid.UUID      `json:"actorId,omitempty"`
	ActorRoles   []string        `json:"actorRoles"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   *string         `json:"resourceId,omitempty"`
	Method       string          `json:"method"`
	Route        string          `json:"route"`
	Status       int             `json:"status"`
	IP           *string         `json:"ip,omitempty"`
	RequestID    *string         `json:"requestId,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ListParams filters the trail.
type ListParams struct {
	ResourceType string
	ResourceID   string
	ActorID      *uuid.UUID
	Limit        int
	Offset       int
}
