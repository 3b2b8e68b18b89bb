package common

import (
	"context"
	"slices"
)

type ctxKey string

const (
	customerIDKey ctxKey = "auth/customer-id"
	rolesKey      ctxKey = "auth/roles"
	slotKey       ctxKey = "auth/slot"
)

// RoleAdmin grants access to the back-office endpoints.
const RoleAdmin = "admin"

// identitySlot lets middleware that wraps authentication read the identity
// set further down the chain once the handler has returned.
type identitySlot struct {
	customerID string
	roles      []string
}

// WithIdentitySlot prepares ctx so outer middleware can observe the caller.
func WithIdentitySlot(ctx context.Context) context.Context {
	if _, ok := ctx.Value(slotKey).(*identitySlot); ok {
		return ctx
	}
	return context.WithValue(ctx, slotKey, &identitySlot{})
}

// WithCustomerID stores the authenticated customer identifier on the provided context.
func WithCustomerID(ctx context.Context, id string) context.Context {
	if slot, ok := ctx.Value(slotKey).(*identitySlot); ok {
		slot.customerID = id
	}
	return context.WithValue(ctx, customerIDKey, id)
}

// CustomerID extracts the authenticated customer identifier from the context if present.
func CustomerID(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(customerIDKey).(string); ok && id != "" {
		return id, true
	}
	if slot, ok := ctx.Value(slotKey).(*identitySlot); ok && slot.customerID != "" {
		return slot.customerID, true
	}
	return "", false
}

// WithRoles stores the caller's roles on the context.
func WithRoles(ctx context.Context, roles []string) context.Context {
	roles = slices.Clone(roles)
	if slot, ok := ctx.Value(slotKey).(*identitySlot); ok {
		slot.roles = roles
	}
	return context.WithValue(ctx, rolesKey, roles)
}

// Roles returns a copy of the caller's roles.
func Roles(ctx context.Context) []string {
	if roles, ok := ctx.Value(rolesKey).([]string); ok {
		return slices.Clone(roles)
	}
	if slot, ok := ctx.Value(slotKey).(*identitySlot); ok {
		return slices.Clone(slot.roles)
	}
	return nil
}

// HasRole reports whether the caller carries role.
func HasRole(ctx context.Context, role string) bool {
	return slices.Contains(Roles(ctx), role)
}

// IsAdmin is shorthand for HasRole(ctx, RoleAdmin).
func IsAdmin(ctx context.Context) bool {
	return HasRole(ctx, RoleAdmin)
}
