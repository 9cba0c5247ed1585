// Package rtc implements the Transport/Producer/Consumer Registry (C3):
// maps keyed by endpoint id, each entry wired to its close so the map
// self-evicts (spec.md §3's "registries react to @close events to evict
// entries"). WebRtcTransport wraps pion's ORTC primitives (ICEGatherer +
// ICETransport + DTLSTransport) rather than the higher-level PeerConnection
// API, because that is the one pion surface that maps field-for-field onto
// mediasoup's createWebRtcTransport bootstrap parameters spec.md's wire
// protocol requires (iceParameters, iceCandidates, dtlsParameters).
package rtc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/pion/webrtc/v4"
)

// Direction tags a transport per spec.md §3: a non-viewer participant has at
// most one send and at most one recv transport; the HLS pipeline uses plain
// transports tagged hls.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
	DirectionHLS  Direction = "hls"
)

// TransportConnectTimeout is spec.md §4.8's connect-transport timeout.
const TransportConnectTimeout = 10 * time.Second

// WebRtcTransportParams is the client-bootstrap payload returned by
// create-transport (spec.md §6): id, ICE params, ICE candidates, DTLS
// params, nothing else.
type WebRtcTransportParams struct {
	ID             string                `json:"id"`
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	ICECandidates  []webrtc.ICECandidate `json:"iceCandidates"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}

// WebRtcTransport is the client-facing, UDP-preferred transport variant.
type WebRtcTransport struct {
	id            string
	direction     Direction
	participantID string
	roomID        string
	worker        *mediaworker.Worker

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	connected atomic.Bool
	closed    atomic.Bool

	mu         sync.Mutex
	onClose    []func()
	producerID string // not set anywhere; producers are tracked by Registry
}

func (t *WebRtcTransport) ID() string            { return t.id }
func (t *WebRtcTransport) Direction() Direction   { return t.direction }
func (t *WebRtcTransport) ParticipantID() string { return t.participantID }
func (t *WebRtcTransport) Closed() bool          { return t.closed.Load() }

// OnClose registers a callback invoked exactly once when the transport
// closes, the event-subscription mechanic spec.md §3 describes for registry
// self-eviction and cascading closure.
func (t *WebRtcTransport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		t.mu.Unlock()
		fn()
		t.mu.Lock()
		return
	}
	t.onClose = append(t.onClose, fn)
}

// Close tears down the ICE/DTLS stack and fires onClose callbacks exactly
// once. Idempotent.
func (t *WebRtcTransport) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	_ = t.worker.Execute(context.Background(), func() error {
		if t.dtls != nil {
			_ = t.dtls.Stop()
		}
		if t.ice != nil {
			_ = t.ice.Stop()
		}
		return nil
	})

	t.mu.Lock()
	callbacks := t.onClose
	t.onClose = nil
	t.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// NewWebRtcTransport creates a transport on the router's worker and returns
// the client-bootstrap parameters. Direction is tagged at creation time,
// matching spec.md §4.3 ("tags the transport with {routerId, direction} in
// app-data").
func NewWebRtcTransport(ctx context.Context, worker *mediaworker.Worker, roomID, participantID string, direction Direction) (*WebRtcTransport, WebRtcTransportParams, error) {
	t := &WebRtcTransport{
		id:            newEndpointID("transport"),
		direction:     direction,
		participantID: participantID,
		roomID:        roomID,
		worker:        worker,
	}

	var params WebRtcTransportParams
	err := worker.Execute(ctx, func() error {
		api := worker.API()

		gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{})
		if err != nil {
			return fmt.Errorf("new ICE gatherer: %w", err)
		}

		ice := api.NewICETransport(gatherer)

		secretKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return fmt.Errorf("generate DTLS key: %w", err)
		}
		cert, err := webrtc.GenerateCertificate(secretKey)
		if err != nil {
			return fmt.Errorf("generate DTLS certificate: %w", err)
		}
		dtls, err := api.NewDTLSTransport(ice, []webrtc.Certificate{*cert})
		if err != nil {
			return fmt.Errorf("new DTLS transport: %w", err)
		}

		gatherFinished := make(chan struct{})
		gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				close(gatherFinished)
			}
		})
		if err := gatherer.Gather(); err != nil {
			return fmt.Errorf("gather ICE candidates: %w", err)
		}
		select {
		case <-gatherFinished:
		case <-ctx.Done():
			return ctx.Err()
		}

		iceParams, err := gatherer.GetLocalParameters()
		if err != nil {
			return fmt.Errorf("get local ICE parameters: %w", err)
		}
		candidates, err := gatherer.GetLocalCandidates()
		if err != nil {
			return fmt.Errorf("get local ICE candidates: %w", err)
		}
		dtlsParams, err := dtls.GetLocalParameters()
		if err != nil {
			return fmt.Errorf("get local DTLS parameters: %w", err)
		}

		t.gatherer = gatherer
		t.ice = ice
		t.dtls = dtls

		params = WebRtcTransportParams{
			ID:             t.id,
			ICEParameters:  iceParams,
			ICECandidates:  candidates,
			DTLSParameters: dtlsParams,
		}
		return nil
	})
	if err != nil {
		return nil, WebRtcTransportParams{}, err
	}

	slog.Debug("webrtc transport created", "id", t.id, "room_id", roomID, "participant_id", participantID, "direction", direction)
	return t, params, nil
}

// Connect performs the ICE/DTLS handshake under spec.md §4.3/§4.8's 10s
// timeout. Idempotent if already connected.
func (t *WebRtcTransport) Connect(ctx context.Context, remote webrtc.DTLSParameters) error {
	if t.connected.Load() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, TransportConnectTimeout)
	defer cancel()

	err := t.worker.Execute(ctx, func() error {
		role := webrtc.ICERoleControlled
		if err := t.ice.Start(nil, webrtc.ICEParameters{}, &role); err != nil {
			// Start(nil, ...) reuses the gatherer already bound at creation.
			return fmt.Errorf("start ICE transport: %w", err)
		}
		if err := t.dtls.Start(remote); err != nil {
			return fmt.Errorf("start DTLS transport: %w", err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			t.Close()
			return ErrTransportConnectTimeout
		}
		return err
	}

	t.connected.Store(true)
	return nil
}

// PlainTransport is the server-local transport used to feed the transcoder
// (spec.md §3): a local RTP/RTCP port pair. It opens no socket itself; the
// matching PlainConsumer dials the RTP port and writes forwarded RTP to it.
type PlainTransport struct {
	id        string
	roomID    string
	rtpPort   int
	rtcpPort  int
	closed    atomic.Bool
	mu        sync.Mutex
	onClose   []func()
}

func (t *PlainTransport) ID() string           { return t.id }
func (t *PlainTransport) Direction() Direction  { return DirectionHLS }
func (t *PlainTransport) RTPPort() int          { return t.rtpPort }
func (t *PlainTransport) RTCPPort() int         { return t.rtcpPort }
func (t *PlainTransport) Closed() bool          { return t.closed.Load() }

func (t *PlainTransport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = append(t.onClose, fn)
}

func (t *PlainTransport) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	callbacks := t.onClose
	t.onClose = nil
	t.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// NewPlainTransport records the RTP/RTCP port pair the caller allocated for comedia-style
// plain transport, matching spec.md §4.9's pipeline construction ("127.0.0.1
// with RTCP not muxed, listen-only (comedia=true)").
func NewPlainTransport(roomID string, rtpPort, rtcpPort int) *PlainTransport {
	return &PlainTransport{
		id:       newEndpointID("plain"),
		roomID:   roomID,
		rtpPort:  rtpPort,
		rtcpPort: rtcpPort,
	}
}
