package room

import (
	"context"
	"testing"
	"time"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/participant"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/rtc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHLS is a no-op HLSController for room-level unit tests that don't
// exercise the HLS pipeline itself.
type stubHLS struct {
	changes int
	stops   int
}

func (s *stubHLS) OnProducerChange(ctx context.Context, roomID string) { s.changes++ }
func (s *stubHLS) Stop(ctx context.Context, roomID string)             { s.stops++ }
func (s *stubHLS) PlaylistURL(roomID string) string                    { return "" }
func (s *stubHLS) IsRunning(roomID string) bool                        { return false }

type stubConn struct{}

func (stubConn) ReadMessage() (int, []byte, error)  { return 0, nil, nil }
func (stubConn) WriteMessage(int, []byte) error     { return nil }
func (stubConn) Close() error                        { return nil }
func (stubConn) SetReadDeadline(time.Time) error     { return nil }
func (stubConn) SetWriteDeadline(time.Time) error    { return nil }

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(ctx context.Context, p *participant.Participant, raw []byte) {}
func (stubDispatcher) HandleDisconnect(p *participant.Participant)                          {}

func newTestRoom() (*Room, *stubHLS) {
	hls := &stubHLS{}
	registry := rtc.NewRegistry()
	routers := mediaworker.NewRegistry(nil)
	r := newRoom("room-1", "Test Room", routers, registry, hls, nil, nil, nil)
	return r, hls
}

func newTestParticipant(id string, role participant.Role) *participant.Participant {
	return participant.New(id, id, "", "User-"+id, role, stubConn{}, stubDispatcher{})
}

func TestRoomAdmit_FirstJoinerPromotedToHost(t *testing.T) {
	r, _ := newTestRoom()
	p := newTestParticipant("p1", participant.RoleGuest)

	role, err := r.Admit(context.Background(), p, participant.RoleGuest)
	require.NoError(t, err)
	assert.Equal(t, participant.RoleHost, role)
	assert.Equal(t, 1, r.ParticipantCount())
}

func TestRoomAdmit_HostExists(t *testing.T) {
	r, _ := newTestRoom()
	p1 := newTestParticipant("p1", participant.RoleHost)
	_, err := r.Admit(context.Background(), p1, participant.RoleHost)
	require.NoError(t, err)

	p2 := newTestParticipant("p2", participant.RoleHost)
	_, err = r.Admit(context.Background(), p2, participant.RoleHost)
	assert.ErrorIs(t, err, ErrHostExists)
}

func TestRoomAdmit_RoomFull(t *testing.T) {
	r, _ := newTestRoom()
	p1 := newTestParticipant("p1", participant.RoleHost)
	_, err := r.Admit(context.Background(), p1, participant.RoleHost)
	require.NoError(t, err)

	p2 := newTestParticipant("p2", participant.RoleGuest)
	_, err = r.Admit(context.Background(), p2, participant.RoleGuest)
	require.NoError(t, err)

	p3 := newTestParticipant("p3", participant.RoleGuest)
	_, err = r.Admit(context.Background(), p3, participant.RoleGuest)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestRoomAdmit_ViewerAlwaysAdmitted(t *testing.T) {
	r, _ := newTestRoom()
	p1 := newTestParticipant("p1", participant.RoleHost)
	_, err := r.Admit(context.Background(), p1, participant.RoleHost)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		v := newTestParticipant("viewer"+string(rune('a'+i)), participant.RoleViewer)
		role, err := r.Admit(context.Background(), v, participant.RoleViewer)
		require.NoError(t, err)
		assert.Equal(t, participant.RoleViewer, role)
	}
	assert.Equal(t, 6, r.ParticipantCount())
}

func TestRoomLeave_RemovesParticipantAndNotifiesHLS(t *testing.T) {
	r, hls := newTestRoom()
	p1 := newTestParticipant("p1", participant.RoleHost)
	_, err := r.Admit(context.Background(), p1, participant.RoleHost)
	require.NoError(t, err)
	p1.SetHasAudio(true)

	p2 := newTestParticipant("p2", participant.RoleGuest)
	_, err = r.Admit(context.Background(), p2, participant.RoleGuest)
	require.NoError(t, err)

	r.Leave(context.Background(), p1.ID)
	assert.Equal(t, 1, r.ParticipantCount())
	assert.Equal(t, 1, hls.changes)

	_, ok := r.Participant(p1.ID)
	assert.False(t, ok)
}

func TestRoomLeave_UnknownParticipantIsNoop(t *testing.T) {
	r, _ := newTestRoom()
	r.Leave(context.Background(), "nonexistent")
	assert.Equal(t, 0, r.ParticipantCount())
}

func TestRoomBroadcast_ExcludesSender(t *testing.T) {
	r, _ := newTestRoom()
	p1 := newTestParticipant("p1", participant.RoleHost)
	p2 := newTestParticipant("p2", participant.RoleGuest)
	_, err := r.Admit(context.Background(), p1, participant.RoleHost)
	require.NoError(t, err)
	_, err = r.Admit(context.Background(), p2, participant.RoleGuest)
	require.NoError(t, err)

	// Broadcast should not panic and should skip the excluded participant;
	// delivery itself goes through Participant.Send's buffered channel,
	// which this test does not drain, so only the no-panic contract matters.
	assert.NotPanics(t, func() {
		r.Broadcast(context.Background(), EventParticipantLeft, ParticipantLeftEvent{ParticipantID: p1.ID}, p1.ID)
	})
}

func TestRoomStreamerParticipants_OrderedByJoinRank(t *testing.T) {
	r, _ := newTestRoom()
	host := newTestParticipant("host", participant.RoleHost)
	guest := newTestParticipant("guest", participant.RoleGuest)
	viewer := newTestParticipant("viewer", participant.RoleViewer)

	_, err := r.Admit(context.Background(), host, participant.RoleHost)
	require.NoError(t, err)
	_, err = r.Admit(context.Background(), guest, participant.RoleGuest)
	require.NoError(t, err)
	_, err = r.Admit(context.Background(), viewer, participant.RoleViewer)
	require.NoError(t, err)

	streamers := r.StreamerParticipants()
	require.Len(t, streamers, 2)
	assert.Equal(t, "host", streamers[0].ID)
	assert.Equal(t, "guest", streamers[1].ID)
}

func TestRoomRoomID(t *testing.T) {
	r, _ := newTestRoom()
	assert.Equal(t, "room-1", r.RoomID())
}

func TestRoomExistingProducers_EmptyWhenNoProducers(t *testing.T) {
	r, _ := newTestRoom()
	assert.Empty(t, r.ExistingProducers())
}
