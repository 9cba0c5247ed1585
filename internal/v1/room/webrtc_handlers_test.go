package room

import (
	"context"
	"testing"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/participant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleStartHLS_RejectsNonHost(t *testing.T) {
	r, _ := newTestRoom()
	d := &Dispatcher{}
	guest := newTestParticipant("guest", participant.RoleGuest)

	_, err := d.handleStartHLS(context.Background(), r, guest, Envelope{})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestHandleStartHLS_AllowsHost(t *testing.T) {
	r, hls := newTestRoom()
	d := &Dispatcher{}
	host := newTestParticipant("host", participant.RoleHost)

	reply, err := d.handleStartHLS(context.Background(), r, host, Envelope{})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"starting": true}, reply)
	assert.Equal(t, 1, hls.changes)
}

func TestHandleStopHLS_RejectsNonHost(t *testing.T) {
	r, _ := newTestRoom()
	d := &Dispatcher{}
	guest := newTestParticipant("guest", participant.RoleGuest)

	_, err := d.handleStopHLS(context.Background(), r, guest, Envelope{})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestHandleConsume_UnknownProducerFails(t *testing.T) {
	r, _ := newTestRoom()
	r.setRouter(&mediaworker.Router{})
	d := &Dispatcher{}
	host := newTestParticipant("host", participant.RoleHost)

	_, err := d.handleConsume(context.Background(), r, host, Envelope{Payload: marshalPayload(ConsumeRequest{ProducerID: "nonexistent"})})
	assert.ErrorIs(t, err, ErrProducerNotFound)
}
