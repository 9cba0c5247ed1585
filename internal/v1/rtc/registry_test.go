package rtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetTransportNotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.GetTransport("nonexistent")
	assert.ErrorIs(t, err, ErrTransportNotFound)
}

func TestGetProducerNotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.GetProducer("nonexistent")
	assert.ErrorIs(t, err, ErrProducerNotFound)
}

func TestGetConsumerMissing(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.GetConsumer("nonexistent")
	assert.False(t, ok)
}

func TestProducersForRoomEmpty(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.ProducersForRoom("room-1"))
}

func TestCloseTransportsForParticipantNoop(t *testing.T) {
	reg := NewRegistry()
	assert.NotPanics(t, func() { reg.CloseTransportsForParticipant("nobody") })
}

func TestCreatePlainConsumerMissingProducer(t *testing.T) {
	reg := NewRegistry()
	transport := reg.CreatePlainTransport("room-1", 5000, 5001)
	_, err := reg.CreatePlainConsumer("nonexistent", transport)
	assert.ErrorIs(t, err, ErrProducerNotFound)
}

func TestGetTransportForParticipantNotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.GetTransportForParticipant("nobody", DirectionRecv)
	assert.ErrorIs(t, err, ErrTransportNotFound)
}
