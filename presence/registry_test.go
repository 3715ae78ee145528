package presence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistryMultiDevice(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	userID := uuid.New()

	online, err := r.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, r.RegisterConnection(ctx, "conn-1", userID))
	require.NoError(t, r.RegisterConnection(ctx, "conn-2", userID))

	online, err = r.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online)

	// A user stays online while any device remains connected.
	require.NoError(t, r.UnregisterConnection(ctx, "conn-1"))
	online, err = r.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, r.UnregisterConnection(ctx, "conn-2"))
	online, err = r.IsOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestMemoryRegistryListOnline(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	userA := uuid.New()
	userB := uuid.New()
	require.NoError(t, r.RegisterConnection(ctx, "a-1", userA))
	require.NoError(t, r.RegisterConnection(ctx, "b-1", userB))
	require.NoError(t, r.RegisterConnection(ctx, "b-2", userB))

	ids, err := r.ListOnlineUserIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{userA, userB}, ids)

	require.NoError(t, r.UnregisterConnection(ctx, "a-1"))
	ids, err = r.ListOnlineUserIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{userB}, ids)
}

func TestMemoryRegistryUnknownConnection(t *testing.T) {
	r := NewMemoryRegistry()
	require.NoError(t, r.UnregisterConnection(context.Background(), "never-registered"))
}
