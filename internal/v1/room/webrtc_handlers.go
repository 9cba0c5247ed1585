package room

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/participant"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/rtc"
	"github.com/pion/webrtc/v4"
)

// consumeResumeDelay is spec.md §4.8/§9's fixed deferred-resume timer: give
// the client's recv transport ~1s to finish its DTLS handshake before this
// server starts forwarding media, instead of waiting for an explicit
// consumer-ready ack (resolved open question, see DESIGN.md).
const consumeResumeDelay = 1 * time.Second

func (d *Dispatcher) handleCreateTransport(ctx context.Context, r *Room, p *participant.Participant, env Envelope) (any, error) {
	var req CreateTransportRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return nil, err
	}

	var direction rtc.Direction
	switch req.Direction {
	case "send":
		direction = rtc.DirectionSend
	case "recv":
		direction = rtc.DirectionRecv
	default:
		return nil, ErrInvalidDirection
	}

	router := r.Router()
	if router == nil {
		return nil, ErrRouterGone
	}

	_, params, err := r.registry.CreateWebRtcTransport(ctx, router.Worker(), r.ID, p.ID, direction)
	if err != nil {
		return nil, ErrProduceFailed
	}
	return params, nil
}

func (d *Dispatcher) handleConnectTransport(ctx context.Context, r *Room, p *participant.Participant, env Envelope) (any, error) {
	var req ConnectTransportRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return nil, err
	}

	dtlsBytes, err := json.Marshal(req.DTLSParameters)
	if err != nil {
		return nil, err
	}
	var dtlsParams webrtc.DTLSParameters
	if err := json.Unmarshal(dtlsBytes, &dtlsParams); err != nil {
		return nil, err
	}

	if err := r.registry.ConnectTransport(ctx, req.TransportID, dtlsParams); err != nil {
		switch err {
		case rtc.ErrTransportConnectTimeout:
			return nil, ErrTransportConnectTimeout
		case rtc.ErrTransportNotFound:
			return nil, ErrTransportNotFound
		default:
			return nil, err
		}
	}
	return map[string]bool{"connected": true}, nil
}

func (d *Dispatcher) handleProduce(ctx context.Context, r *Room, p *participant.Participant, env Envelope) (any, error) {
	var req ProduceRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return nil, err
	}

	if p.Role() == participant.RoleViewer {
		return nil, ErrViewerCannotConsumeWebRTC
	}

	router := r.Router()
	if router == nil {
		return nil, ErrRouterGone
	}

	kind := rtc.Kind(req.Kind)
	for _, existing := range r.registry.ProducersForRoom(r.ID) {
		if existing.ParticipantID() == p.ID && existing.Kind() == kind {
			return nil, ErrProduceFailed
		}
	}
	producer, err := r.registry.CreateProducer(ctx, router.Worker(), p.ID, rtc.ProduceParams{
		TransportID: req.TransportID,
		Kind:        kind,
		SSRC:        req.SSRC,
		PayloadType: webrtc.PayloadType(req.PayloadType),
	})
	if err != nil {
		return nil, ErrProduceFailed
	}

	// producer-closed (spec.md §6) must reach subscribers on every close
	// path, not just handleConsume's own cleanup, so it is wired here off
	// the producer's own @close cascade rather than any one caller.
	producer.OnClose(func() {
		r.Broadcast(context.Background(), EventProducerClosed, ProducerClosedEvent{
			ProducerID: producer.ID(),
		}, "")
	})

	if kind == rtc.KindVideo {
		p.SetHasVideo(true)
	} else {
		p.SetHasAudio(true)
	}

	r.Broadcast(ctx, EventNewProducer, NewProducerEvent{
		ProducerID:    producer.ID(),
		ParticipantID: p.ID,
		Kind:          string(kind),
	}, p.ID)

	if p.IsStreamer() && r.hls != nil {
		r.hls.OnProducerChange(ctx, r.ID)
	}

	return ProduceReply{ProducerID: producer.ID()}, nil
}

func (d *Dispatcher) handleConsume(ctx context.Context, r *Room, p *participant.Participant, env Envelope) (any, error) {
	var req ConsumeRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return nil, err
	}

	if p.Role() == participant.RoleViewer {
		return nil, ErrViewerCannotConsumeWebRTC
	}

	router := r.Router()
	if router == nil {
		return nil, ErrRouterGone
	}

	producer, err := r.registry.GetProducer(req.ProducerID)
	if err != nil {
		return nil, ErrProducerNotFound
	}

	// spec.md §4.4/§4.8: consume never trusts a client-supplied transport
	// id — the server picks the caller's own recv transport.
	recvTransport, err := r.registry.GetTransportForParticipant(p.ID, rtc.DirectionRecv)
	if err != nil {
		return nil, ErrTransportNotFound
	}

	consumer, err := r.registry.CreateConsumer(ctx, router.Worker(), recvTransport.ID(), req.ProducerID, p.ID)
	if err != nil {
		if err == rtc.ErrIncompatibleCapabilities {
			return nil, ErrIncompatibleCapabilities
		}
		return nil, ErrConsumeFailed
	}

	// Deferred resume (spec.md §4.8/§9): give the client's transport time to
	// finish its handshake before the server starts forwarding media.
	time.AfterFunc(consumeResumeDelay, consumer.Resume)

	return rtc.ConsumeParams{
		ID:          consumer.ID(),
		ProducerID:  consumer.ProducerID(),
		Kind:        consumer.Kind(),
		PayloadType: producer.PayloadType(),
	}, nil
}

func (d *Dispatcher) handleStartHLS(ctx context.Context, r *Room, p *participant.Participant, env Envelope) (any, error) {
	if p.Role() != participant.RoleHost {
		return nil, ErrNotAuthorized
	}
	if r.hls == nil {
		return nil, ErrHLSSpawnFailed
	}
	if r.hls.IsRunning(r.ID) {
		return nil, ErrHLSAlreadyRunning
	}
	r.hls.OnProducerChange(ctx, r.ID)
	return map[string]bool{"starting": true}, nil
}

func (d *Dispatcher) handleStopHLS(ctx context.Context, r *Room, p *participant.Participant, env Envelope) (any, error) {
	if p.Role() != participant.RoleHost {
		return nil, ErrNotAuthorized
	}
	if r.hls == nil || !r.hls.IsRunning(r.ID) {
		return nil, ErrHLSNotRunning
	}
	r.hls.Stop(ctx, r.ID)
	return map[string]bool{"stopped": true}, nil
}
