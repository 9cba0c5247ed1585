package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/metrics"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// ErrIncompatibleCapabilities is spec.md §4.3/§7's INCOMPATIBLE_CAPABILITIES:
// router.canConsume(producerId, rtpCapabilities) returned false.
var ErrIncompatibleCapabilities = errors.New("rtc: INCOMPATIBLE_CAPABILITIES")

// ConsumeParams is the reply payload of a successful consume request
// (spec.md §6): {id, producerId, kind, payloadType}.
type ConsumeParams struct {
	ID          string             `json:"id"`
	ProducerID  string             `json:"producerId"`
	Kind        Kind               `json:"kind"`
	PayloadType webrtc.PayloadType `json:"payloadType"`
}

// Consumer is a server-side endpoint forwarding one producer's media to one
// participant (spec.md §3). Created paused; internal/room resumes it about
// 1s after creation. Closing the producer or the transport closes it.
type Consumer struct {
	id            string
	producerID    string
	kind          Kind
	participantID string
	transportID   string

	sender *webrtc.RTPSender
	local  *webrtc.TrackLocalStaticRTP

	paused atomic.Bool
	closed atomic.Bool

	relayCancel context.CancelFunc

	mu      sync.Mutex
	onClose []func()
}

func (c *Consumer) ID() string            { return c.id }
func (c *Consumer) ProducerID() string    { return c.producerID }
func (c *Consumer) Kind() Kind             { return c.kind }
func (c *Consumer) ParticipantID() string { return c.participantID }
func (c *Consumer) TransportID() string    { return c.transportID }
func (c *Consumer) Closed() bool           { return c.closed.Load() }
func (c *Consumer) Paused() bool           { return c.paused.Load() }

func (c *Consumer) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Resume un-pauses the consumer. Spec.md §4.8: resume is deferred ~1s after
// creation (there is no consumer-ready ack event) to give the client's transport
// time to finish its DTLS handshake; the caller (internal/room) is
// responsible for scheduling this call.
func (c *Consumer) Resume() {
	c.paused.Store(false)
}

// Close stops the underlying sender and the RTP relay goroutine, and fires
// onClose exactly once. Idempotent.
func (c *Consumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.relayCancel != nil {
		c.relayCancel()
	}
	if c.sender != nil {
		_ = c.sender.Stop()
	}
	metrics.ActiveConsumers.WithLabelValues(string(c.kind)).Dec()

	c.mu.Lock()
	callbacks := c.onClose
	c.onClose = nil
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// CanConsume mirrors mediasoup's router.canConsume(producerId,
// rtpCapabilities): true here because this process uses one fixed codec
// table for every router, so any producer this router accepted is by
// construction consumable by any participant of this same router. A
// cross-router consume (which cannot happen in this single-room-per-router
// design) would fail this check.
func CanConsume(producerRoomID, consumerRoomID string) bool {
	return producerRoomID == consumerRoomID
}

// NewConsumer creates a consumer on t (which must be the caller's recv
// transport), created paused, forwarding producer's media.
func NewConsumer(ctx context.Context, worker *mediaworker.Worker, t *WebRtcTransport, participantID string, producer *Producer) (*Consumer, error) {
	if !CanConsume(producer.roomID, t.roomID) {
		return nil, ErrIncompatibleCapabilities
	}

	c := &Consumer{
		id:            newEndpointID("consumer"),
		producerID:    producer.ID(),
		kind:          producer.Kind(),
		participantID: participantID,
		transportID:   t.ID(),
	}
	c.paused.Store(true)

	mimeType := webrtc.MimeTypeOpus
	if producer.Kind() == KindVideo {
		mimeType = webrtc.MimeTypeVP8
	}

	err := worker.Execute(ctx, func() error {
		local, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mimeType}, "consumer", producer.ID())
		if err != nil {
			return fmt.Errorf("new local relay track: %w", err)
		}

		sender, err := worker.API().NewRTPSender(local, t.dtls)
		if err != nil {
			return fmt.Errorf("new RTP sender: %w", err)
		}

		if err := sender.Send(webrtc.RTPSendParameters{
			Encodings: []webrtc.RTPEncodingParameters{{RTPCodingParameters: webrtc.RTPCodingParameters{SSRC: webrtc.SSRC(0), PayloadType: 0}}},
		}); err != nil {
			return fmt.Errorf("start RTP sender: %w", err)
		}

		c.sender = sender
		c.local = local
		return nil
	})
	if err != nil {
		return nil, err
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	c.relayCancel = cancel
	go c.relayLoop(relayCtx, producer)

	metrics.ActiveConsumers.WithLabelValues(string(c.kind)).Inc()
	slog.Debug("consumer created", "id", c.id, "producer_id", producer.ID(), "participant_id", participantID)
	return c, nil
}

// relayLoop forwards RTP packets from the producer's inbound track to this
// consumer's local relay track until the producer closes, the consumer
// closes, or the read fails. Packets read while paused are dropped, not
// buffered — a freshly-resumed consumer starts from whatever the producer is
// emitting at that moment, matching a live SFU's behavior (no backlog
// replay).
func (c *Consumer) relayLoop(ctx context.Context, producer *Producer) {
	track := producer.Track()
	if track == nil {
		return
	}
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("consumer relay read error", "consumer_id", c.id, "error", err)
			}
			return
		}
		if c.Paused() {
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if err := c.local.WriteRTP(pkt); err != nil {
			if !errors.Is(err, io.ErrClosedPipe) {
				slog.Debug("consumer relay write error", "consumer_id", c.id, "error", err)
			}
			return
		}
	}
}
