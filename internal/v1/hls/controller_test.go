package hls

import (
	"context"
	"testing"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/config"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/rtc"
	"github.com/stretchr/testify/assert"
)

func testController() *Controller {
	cfg := &config.Config{
		MediaRTPMinPort: 40000,
		MediaRTPMaxPort: 49999,
		HLSStoragePath:  "/tmp/hls-test",
	}
	return NewController(cfg, rtc.NewRegistry(), nil, nil)
}

func TestControllerIsRunningFalseForUnknownRoom(t *testing.T) {
	c := testController()
	assert.False(t, c.IsRunning("room-1"))
}

func TestControllerPlaylistURLEmptyForUnknownRoom(t *testing.T) {
	c := testController()
	assert.Equal(t, "", c.PlaylistURL("room-1"))
}

func TestControllerStopOnUnknownRoomIsNoop(t *testing.T) {
	c := testController()
	assert.NotPanics(t, func() { c.Stop(context.Background(), "room-1") })
}

func TestControllerOnProducerChangeWithoutProviderIsNoop(t *testing.T) {
	c := testController()
	assert.NotPanics(t, func() { c.OnProducerChange(context.Background(), "room-1") })
	assert.False(t, c.IsRunning("room-1"))
}

func TestAllocatePortPairReturnsEvenOddPair(t *testing.T) {
	c := testController()
	for i := 0; i < 10; i++ {
		rtp, rtcp := c.allocatePortPair()
		assert.Equal(t, 0, rtp%2)
		assert.Equal(t, rtp+1, rtcp)
		assert.True(t, rtp >= c.cfg.MediaRTPMinPort)
	}
}

func TestPipelineForIsIdempotent(t *testing.T) {
	c := testController()
	rp1 := c.pipelineFor("room-1")
	rp2 := c.pipelineFor("room-1")
	assert.Same(t, rp1, rp2)
	assert.Equal(t, StateOff, rp1.state)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "OFF", StateOff.String())
	assert.Equal(t, "STARTING", StateStarting.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "RESTARTING", StateRestarting.String())
	assert.Equal(t, "STOPPING", StateStopping.String())
}

func TestPipelineChangedMateriallyDetectsCountChange(t *testing.T) {
	rp := &roomPipeline{}
	changed := pipelineChangedMaterially(rp, []*rtc.Producer{nil}, nil)
	assert.True(t, changed)
}

func TestPipelineChangedMateriallyNoopWhenEmpty(t *testing.T) {
	rp := &roomPipeline{}
	changed := pipelineChangedMaterially(rp, nil, nil)
	assert.False(t, changed)
}
