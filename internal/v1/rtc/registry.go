package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// ErrTransportConnectTimeout is spec.md §4.8/§7's TRANSPORT_CONNECT_TIMEOUT:
// connect-transport did not complete its ICE/DTLS handshake within
// TransportConnectTimeout.
var ErrTransportConnectTimeout = errors.New("rtc: TRANSPORT_CONNECT_TIMEOUT")

// ErrTransportNotFound, ErrProducerNotFound are spec.md §7's protocol error
// codes for a referenced endpoint id that isn't live.
var (
	ErrTransportNotFound = errors.New("rtc: TRANSPORT_NOT_FOUND")
	ErrProducerNotFound  = errors.New("rtc: PRODUCER_NOT_FOUND")
)

func newEndpointID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Registry is the Transport/Producer/Consumer Registry (C3): maps of WebRTC
// transports, plain transports, producers, consumers and plain consumers,
// keyed by endpoint id, each entry wired to its own OnClose so the map
// self-evicts the moment an endpoint closes (spec.md §3).
type Registry struct {
	mu sync.RWMutex

	transports      map[string]*WebRtcTransport
	plain           map[string]*PlainTransport
	producers       map[string]*Producer
	consumers       map[string]*Consumer
	plainConsumers  map[string]*PlainConsumer
}

// NewRegistry creates an empty Transport/Producer/Consumer Registry.
func NewRegistry() *Registry {
	return &Registry{
		transports:     make(map[string]*WebRtcTransport),
		plain:          make(map[string]*PlainTransport),
		producers:      make(map[string]*Producer),
		consumers:      make(map[string]*Consumer),
		plainConsumers: make(map[string]*PlainConsumer),
	}
}

// CreateWebRtcTransport creates and registers a client-facing transport,
// evicting itself from the registry on close.
func (reg *Registry) CreateWebRtcTransport(ctx context.Context, worker *mediaworker.Worker, roomID, participantID string, direction Direction) (*WebRtcTransport, WebRtcTransportParams, error) {
	t, params, err := NewWebRtcTransport(ctx, worker, roomID, participantID, direction)
	if err != nil {
		return nil, WebRtcTransportParams{}, err
	}

	reg.mu.Lock()
	reg.transports[t.ID()] = t
	reg.mu.Unlock()

	t.OnClose(func() {
		reg.mu.Lock()
		delete(reg.transports, t.ID())
		reg.mu.Unlock()
		slog.Debug("transport evicted from registry", "id", t.ID())
	})

	return t, params, nil
}

// GetTransport returns the live transport for id, or ErrTransportNotFound.
func (reg *Registry) GetTransport(id string) (*WebRtcTransport, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	t, ok := reg.transports[id]
	if !ok {
		return nil, ErrTransportNotFound
	}
	return t, nil
}

// GetTransportForParticipant returns the live transport owned by
// participantID in the given direction, or ErrTransportNotFound. This is the
// server-side getRecvTransport() of spec.md §4.4: consume never trusts a
// client-supplied transport id, it scans the caller's own transports the same
// way CloseTransportsForParticipant does.
func (reg *Registry) GetTransportForParticipant(participantID string, direction Direction) (*WebRtcTransport, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, t := range reg.transports {
		if t.ParticipantID() == participantID && t.Direction() == direction {
			return t, nil
		}
	}
	return nil, ErrTransportNotFound
}

// ConnectTransport resolves id and performs the DTLS handshake against it.
func (reg *Registry) ConnectTransport(ctx context.Context, id string, remote webrtc.DTLSParameters) error {
	t, err := reg.GetTransport(id)
	if err != nil {
		return err
	}
	return t.Connect(ctx, remote)
}

// CreatePlainTransport registers a server-local transport used by the HLS
// pipeline controller; it is not reachable via GetTransport (it is never
// addressed by a client endpoint id over the signaling channel).
func (reg *Registry) CreatePlainTransport(roomID string, rtpPort, rtcpPort int) *PlainTransport {
	t := NewPlainTransport(roomID, rtpPort, rtcpPort)
	reg.mu.Lock()
	reg.plain[t.ID()] = t
	reg.mu.Unlock()
	t.OnClose(func() {
		reg.mu.Lock()
		delete(reg.plain, t.ID())
		reg.mu.Unlock()
	})
	return t
}

// CreatePlainConsumer resolves producerID and wires a PlainConsumer relaying
// its RTP onto transport's local UDP socket for the HLS pipeline controller
// (spec.md §4.9). Registered and evicted the same way as a regular Consumer.
func (reg *Registry) CreatePlainConsumer(producerID string, transport *PlainTransport) (*PlainConsumer, error) {
	p, err := reg.GetProducer(producerID)
	if err != nil {
		return nil, err
	}

	c, err := NewPlainConsumer(p, transport)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.plainConsumers[c.ID()] = c
	reg.mu.Unlock()

	p.OnClose(c.Close)
	c.OnClose(func() {
		reg.mu.Lock()
		delete(reg.plainConsumers, c.ID())
		reg.mu.Unlock()
	})

	return c, nil
}

// CreateProducer resolves the send transport, creates the producer, and
// registers it, evicting itself from the registry on close and cascading
// the close to every consumer currently forwarding it (spec.md §3: "closing
// a producer ... closes" its consumers).
func (reg *Registry) CreateProducer(ctx context.Context, worker *mediaworker.Worker, participantID string, params ProduceParams) (*Producer, error) {
	t, err := reg.GetTransport(params.TransportID)
	if err != nil {
		return nil, err
	}
	if t.Direction() != DirectionSend {
		return nil, fmt.Errorf("rtc: INVALID_DIRECTION: transport %s is not a send transport", t.ID())
	}

	p, err := NewProducer(ctx, worker, t, participantID, params)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.producers[p.ID()] = p
	reg.mu.Unlock()

	t.OnClose(p.Close)
	p.OnClose(func() {
		reg.mu.Lock()
		delete(reg.producers, p.ID())
		var dependents []*Consumer
		for _, c := range reg.consumers {
			if c.ProducerID() == p.ID() {
				dependents = append(dependents, c)
			}
		}
		reg.mu.Unlock()
		for _, c := range dependents {
			c.Close()
		}
		slog.Debug("producer evicted from registry", "id", p.ID())
	})

	return p, nil
}

// GetProducer returns the live producer for id, or ErrProducerNotFound.
func (reg *Registry) GetProducer(id string) (*Producer, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	p, ok := reg.producers[id]
	if !ok {
		return nil, ErrProducerNotFound
	}
	return p, nil
}

// CreateConsumer resolves the recv transport and producer, creates a paused
// consumer, and registers it, evicting itself from the registry on close.
func (reg *Registry) CreateConsumer(ctx context.Context, worker *mediaworker.Worker, recvTransportID, producerID, participantID string) (*Consumer, error) {
	t, err := reg.GetTransport(recvTransportID)
	if err != nil {
		return nil, err
	}
	if t.Direction() != DirectionRecv {
		return nil, fmt.Errorf("rtc: INVALID_DIRECTION: transport %s is not a recv transport", t.ID())
	}

	p, err := reg.GetProducer(producerID)
	if err != nil {
		return nil, err
	}

	c, err := NewConsumer(ctx, worker, t, participantID, p)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.consumers[c.ID()] = c
	reg.mu.Unlock()

	t.OnClose(c.Close)
	c.OnClose(func() {
		reg.mu.Lock()
		delete(reg.consumers, c.ID())
		reg.mu.Unlock()
		slog.Debug("consumer evicted from registry", "id", c.ID())
	})

	return c, nil
}

// GetConsumer returns the live consumer for id, if any.
func (reg *Registry) GetConsumer(id string) (*Consumer, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	c, ok := reg.consumers[id]
	return c, ok
}

// ProducersForRoom returns a stable-by-join-time-independent snapshot of the
// live producers belonging to roomID, used both by join-room's
// existing-producers snapshot (spec.md §4.7) and by the HLS pipeline
// controller's pipeline construction (spec.md §4.9). Ordering by join time
// is the caller's responsibility (internal/room), since this registry has
// no notion of participant join order.
func (reg *Registry) ProducersForRoom(roomID string) []*Producer {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var out []*Producer
	for _, p := range reg.producers {
		if p.roomID == roomID {
			out = append(out, p)
		}
	}
	return out
}

// CloseTransportsForParticipant closes every transport owned by
// participantID, cascading to their producers/consumers. Used by
// leave-room/disconnect handling (spec.md §4.7).
func (reg *Registry) CloseTransportsForParticipant(participantID string) {
	reg.mu.RLock()
	var owned []*WebRtcTransport
	for _, t := range reg.transports {
		if t.ParticipantID() == participantID {
			owned = append(owned, t)
		}
	}
	reg.mu.RUnlock()

	for _, t := range owned {
		t.Close()
	}
}
