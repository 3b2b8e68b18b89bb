package common_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-b2b/internal/common"
)

func TestIdentitySlotExposesDownstreamCaller(t *testing.T) {
	outer := common.WithIdentitySlot(context.Background())
	_, ok := common.CustomerID(outer)
	require.False(t, ok)

	inner := common.WithCustomerID(outer, "c-1")
	inner = common.WithRoles(inner, []string{"buyer", common.RoleAdmin})

	id, ok := common.CustomerID(outer)
	require.True(t, ok)
	require.Equal(t, "c-1", id)
	require.True(t, common.IsAdmin(outer))
	require.True(t, common.HasRole(inner, "buyer"))
}

func TestRolesAreCopied(t *testing.T) {
	roles := []string{"buyer"}
	ctx := common.WithRoles(context.Background(), roles)
	roles[0] = common.RoleAdmin
	require.False(t, common.IsAdmin(ctx))

	got := common.Roles(ctx)
	got[0] = common.RoleAdmin
	require.False(t, common.IsAdmin(ctx))
	require.Nil(t, common.Roles(context.Background()))
}
