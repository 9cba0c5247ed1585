package rtc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/metrics"
	"github.com/pion/webrtc/v4"
)

// Kind is a producer/consumer's media kind.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ProduceParams is the client-supplied payload of a produce request
// (spec.md §6): transportId, kind, ssrc, payloadType. SSRC and PayloadType
// are the parts of the client's encoding description used to bind a pion
// RTPReceiver to the inbound stream.
type ProduceParams struct {
	TransportID string              `json:"transportId"`
	Kind        Kind                `json:"kind"`
	SSRC        uint32              `json:"ssrc"`
	PayloadType webrtc.PayloadType  `json:"payloadType"`
}

// Producer is a server-side endpoint that ingests one media kind from a
// client's send transport (spec.md §3). Lives on a send transport; closing
// the transport closes it; each streamer has at most one producer per kind
// (enforced by the caller, internal/room/webrtc_handlers.go).
type Producer struct {
	id            string
	kind          Kind
	participantID string
	transportID   string
	roomID        string
	payloadType   webrtc.PayloadType

	receiver *webrtc.RTPReceiver
	track    *webrtc.TrackRemote

	paused atomic.Bool
	closed atomic.Bool

	mu      sync.Mutex
	onClose []func()
}

func (p *Producer) ID() string            { return p.id }
func (p *Producer) Kind() Kind             { return p.kind }
func (p *Producer) ParticipantID() string { return p.participantID }
func (p *Producer) TransportID() string    { return p.transportID }
func (p *Producer) RoomID() string         { return p.roomID }
func (p *Producer) Closed() bool           { return p.closed.Load() }
func (p *Producer) Paused() bool           { return p.paused.Load() }
func (p *Producer) Track() *webrtc.TrackRemote { return p.track }

// PayloadType is the RTP payload type the client negotiated for this
// producer, used by the HLS pipeline controller to write an accurate
// session-description file (spec.md §4.9).
func (p *Producer) PayloadType() webrtc.PayloadType { return p.payloadType }

func (p *Producer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = append(p.onClose, fn)
}

// Close closes the underlying receiver and fires onClose exactly once.
// Idempotent — spec.md §3: "closing its transport closes it".
func (p *Producer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if p.receiver != nil {
		_ = p.receiver.Stop()
	}
	metrics.ActiveProducers.WithLabelValues(string(p.kind)).Dec()

	p.mu.Lock()
	callbacks := p.onClose
	p.onClose = nil
	p.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// NewProducer creates a producer on t (which must be a send transport),
// binding a pion RTPReceiver to the params the client described.
func NewProducer(ctx context.Context, worker *mediaworker.Worker, t *WebRtcTransport, participantID string, params ProduceParams) (*Producer, error) {
	p := &Producer{
		id:            newEndpointID("producer"),
		kind:          params.Kind,
		participantID: participantID,
		transportID:   t.ID(),
		roomID:        t.roomID,
		payloadType:   params.PayloadType,
	}

	err := worker.Execute(ctx, func() error {
		rtpKind := webrtc.RTPCodecTypeAudio
		if params.Kind == KindVideo {
			rtpKind = webrtc.RTPCodecTypeVideo
		}

		receiver, err := worker.API().NewRTPReceiver(rtpKind, t.dtls)
		if err != nil {
			return fmt.Errorf("new RTP receiver: %w", err)
		}

		if err := receiver.Receive(webrtc.RTPReceiveParameters{
			Encodings: []webrtc.RTPDecodingParameters{
				{RTPCodingParameters: webrtc.RTPCodingParameters{SSRC: webrtc.SSRC(params.SSRC), PayloadType: params.PayloadType}},
			},
		}); err != nil {
			return fmt.Errorf("start RTP receiver: %w", err)
		}

		p.receiver = receiver
		p.track = receiver.Track()
		return nil
	})
	if err != nil {
		metrics.WebrtcConnectionAttempts.WithLabelValues("produce_failed").Inc()
		return nil, err
	}

	metrics.ActiveProducers.WithLabelValues(string(p.kind)).Inc()
	metrics.WebrtcConnectionAttempts.WithLabelValues("produce_ok").Inc()
	slog.Debug("producer created", "id", p.id, "kind", p.kind, "participant_id", participantID)
	return p, nil
}
