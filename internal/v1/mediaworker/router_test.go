package mediaworker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, workerCount int) *Registry {
	t.Helper()
	pool, err := NewPool(context.Background(), testConfig(), workerCount)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewRegistry(pool)
}

func TestCreateRouterIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t, 2)

	r1, err := reg.CreateRouter(context.Background(), "room-1", "Room One")
	require.NoError(t, err)

	r2, err := reg.CreateRouter(context.Background(), "room-1", "Room One")
	require.NoError(t, err)

	assert.Same(t, r1, r2)
	assert.Equal(t, 1, reg.Count())
}

func TestCreateRouterUsesFixedCapabilities(t *testing.T) {
	reg := newTestRegistry(t, 1)

	r, err := reg.CreateRouter(context.Background(), "room-1", "Room One")
	require.NoError(t, err)
	assert.Equal(t, fixedCapabilities, r.Capabilities)
}

func TestGetRouterMissing(t *testing.T) {
	reg := newTestRegistry(t, 1)
	_, ok := reg.GetRouter("nonexistent")
	assert.False(t, ok)
}

func TestCloseRouterIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t, 1)
	_, err := reg.CreateRouter(context.Background(), "room-1", "Room One")
	require.NoError(t, err)

	reg.CloseRouter("room-1")
	assert.Equal(t, 0, reg.Count())

	assert.NotPanics(t, func() { reg.CloseRouter("room-1") })
	assert.NotPanics(t, func() { reg.CloseRouter("never-existed") })
}

func TestGetCapabilitiesAfterClose(t *testing.T) {
	reg := newTestRegistry(t, 1)
	_, err := reg.CreateRouter(context.Background(), "room-1", "Room One")
	require.NoError(t, err)

	reg.CloseRouter("room-1")
	_, ok := reg.GetCapabilities("room-1")
	assert.False(t, ok)
}
