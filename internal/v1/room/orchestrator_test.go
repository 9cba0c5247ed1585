package room

import (
	"context"
	"testing"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/config"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/hls"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/participant"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/rtc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestOrchestrator builds a real Orchestrator over a single-worker pool,
// the same zero-value-config worker pool pool_test.go uses — JoinRoom never
// creates a WebRTC endpoint, so this stays cheap.
func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	pool, err := mediaworker.NewPool(context.Background(), &config.Config{}, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	routers := mediaworker.NewRegistry(pool)
	registry := rtc.NewRegistry()
	hlsController := hls.NewController(&config.Config{
		MediaRTPMinPort: 40000,
		MediaRTPMaxPort: 49999,
		HLSStoragePath:  t.TempDir(),
	}, registry, routers, nil)

	orch := NewOrchestrator(routers, registry, hlsController, nil, nil)
	hlsController.SetRoomProvider(orch)
	return orch
}

func TestOrchestratorJoinRoom_ReplyIncludesRoomSnapshot(t *testing.T) {
	orch := newTestOrchestrator(t)
	host := newTestParticipant("host", participant.RoleHost)

	_, reply, err := orch.JoinRoom(context.Background(), JoinRoomRequest{
		RoomID: "room-1", DisplayName: "Room One", Role: "host",
	}, host)
	require.NoError(t, err)

	assert.Equal(t, "room-1", reply.Room.ID)
	assert.Equal(t, "Room One", reply.Room.DisplayName)
	assert.Empty(t, reply.Room.HLSURL)
	assert.NotNil(t, reply.RouterRTPCapabilities)
}

func TestOrchestratorJoinRoom_ViewerGetsNullCapabilities(t *testing.T) {
	orch := newTestOrchestrator(t)
	host := newTestParticipant("host", participant.RoleHost)
	_, _, err := orch.JoinRoom(context.Background(), JoinRoomRequest{
		RoomID: "room-1", DisplayName: "Room One", Role: "host",
	}, host)
	require.NoError(t, err)

	viewer := newTestParticipant("viewer", participant.RoleViewer)
	_, reply, err := orch.JoinRoom(context.Background(), JoinRoomRequest{
		RoomID: "room-1", DisplayName: "Room One", Role: "viewer",
	}, viewer)
	require.NoError(t, err)

	assert.Nil(t, reply.RouterRTPCapabilities)
	assert.Equal(t, "room-1", reply.Room.ID)
}

func TestOrchestratorJoinRoom_BroadcastsNewParticipantWithoutPanic(t *testing.T) {
	orch := newTestOrchestrator(t)
	host := newTestParticipant("host", participant.RoleHost)
	_, _, err := orch.JoinRoom(context.Background(), JoinRoomRequest{
		RoomID: "room-1", DisplayName: "Room One", Role: "host",
	}, host)
	require.NoError(t, err)

	guest := newTestParticipant("guest", participant.RoleGuest)
	assert.NotPanics(t, func() {
		_, _, err := orch.JoinRoom(context.Background(), JoinRoomRequest{
			RoomID: "room-1", DisplayName: "Room One", Role: "guest",
		}, guest)
		require.NoError(t, err)
	})
}
