package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestStore backs a Store with an in-memory sqlite connection, grounded on
// DMRHub's db.MakeDB test-mode split (Postgres in production, sqlite for
// tests) — exercises the same gormigrate migrations and circuit-breaker wrap
// real code runs against Postgres.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := newWithDB(db)
	require.NoError(t, err)
	return s
}

func TestUpsertAndDeactivateRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRoom(ctx, "room-1", "Room One"))

	require.NoError(t, s.SetRoomHLSURL(ctx, "room-1", "/hls/room-1/playlist.m3u8"))
	rooms, err := s.ActiveRoomsWithHLS(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "room-1", rooms[0].ID)
	assert.Equal(t, "/hls/room-1/playlist.m3u8", rooms[0].HLSURL)

	require.NoError(t, s.DeactivateRoom(ctx, "room-1"))
	rooms, err = s.ActiveRoomsWithHLS(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestUpsertAndDeleteParticipant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRoom(ctx, "room-1", "Room One"))
	require.NoError(t, s.UpsertParticipant(ctx, Participant{
		ID:     "p1",
		RoomID: "room-1",
		IsHost: true,
	}))

	require.NoError(t, s.DeleteParticipant(ctx, "p1"))
}

func TestCrashRecoverMarksRoomsInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRoom(ctx, "room-1", "Room One"))
	require.NoError(t, s.SetRoomHLSURL(ctx, "room-1", "/hls/room-1/playlist.m3u8"))

	require.NoError(t, s.CrashRecover(ctx))

	rooms, err := s.ActiveRoomsWithHLS(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
