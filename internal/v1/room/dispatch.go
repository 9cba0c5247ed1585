package room

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/participant"
)

// Dispatcher is the Signaling Dispatcher (C6): routes an inbound Envelope to
// the matching handler and replies with either a result or a WireError
// (spec.md §5/§6), mirroring the teacher's Room.handleMessage switch
// generalized from chat/hand-raise events to the SFU signaling table.
type Dispatcher struct {
	orchestrator *Orchestrator
}

// NewDispatcher builds a Dispatcher bound to orchestrator.
func NewDispatcher(orchestrator *Orchestrator) *Dispatcher {
	return &Dispatcher{orchestrator: orchestrator}
}

// Dispatch implements participant.Dispatcher. It never panics out to the
// caller — handler errors are captured and replied as a WireError so one bad
// message never tears down the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, p *participant.Participant, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("dispatch: handler panicked", "participant_id", p.ID, "panic", rec)
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("dispatch: malformed envelope", "participant_id", p.ID, "error", err)
		return
	}

	reply, err := d.route(ctx, p, env)
	if err != nil {
		p.Send(Envelope{ID: env.ID, Event: env.Event, Error: toWireError(err)})
		return
	}
	if reply != nil {
		p.Send(Envelope{ID: env.ID, Event: env.Event, Payload: marshalPayload(reply)})
	}
}

// HandleDisconnect implements participant.Dispatcher, removing p from its
// room if it had joined one (spec.md §4.7's leave-on-disconnect rule).
func (d *Dispatcher) HandleDisconnect(p *participant.Participant) {
	roomID := p.GetRoomID()
	if roomID == "" {
		return
	}
	r, ok := d.orchestrator.GetRoomByID(roomID)
	if !ok {
		return
	}
	r.Leave(context.Background(), p.ID)
}

func (d *Dispatcher) route(ctx context.Context, p *participant.Participant, env Envelope) (any, error) {
	if env.Event == EventJoinRoom {
		return d.handleJoinRoom(ctx, p, env)
	}

	roomID := p.GetRoomID()
	if roomID == "" {
		return nil, ErrRoomNotFound
	}
	r, ok := d.orchestrator.GetRoomByID(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if _, ok := r.Participant(p.ID); !ok {
		return nil, ErrParticipantNotFound
	}

	switch env.Event {
	case EventLeaveRoom:
		r.Leave(ctx, p.ID)
		return nil, nil
	case EventCreateTransport:
		return d.handleCreateTransport(ctx, r, p, env)
	case EventConnectTransport:
		return d.handleConnectTransport(ctx, r, p, env)
	case EventProduce:
		return d.handleProduce(ctx, r, p, env)
	case EventConsume:
		return d.handleConsume(ctx, r, p, env)
	case EventStartHLS:
		return d.handleStartHLS(ctx, r, p, env)
	case EventStopHLS:
		return d.handleStopHLS(ctx, r, p, env)
	default:
		slog.Warn("dispatch: unknown event", "event", env.Event, "participant_id", p.ID)
		return nil, ErrInvalidDirection
	}
}

func (d *Dispatcher) handleJoinRoom(ctx context.Context, p *participant.Participant, env Envelope) (any, error) {
	var req JoinRoomRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return nil, err
	}

	_, reply, err := d.orchestrator.JoinRoom(ctx, req, p)
	if err != nil {
		return nil, err
	}
	p.SetRoomID(req.RoomID)
	return reply, nil
}

// toWireError maps a sentinel error to its wire code, falling back to a
// generic internal error for anything unrecognized (spec.md §7's closed set
// of error codes per category).
func toWireError(err error) *WireError {
	code, ok := errorCodes[err]
	if !ok {
		return &WireError{Code: "INTERNAL_ERROR", Message: err.Error()}
	}
	return &WireError{Code: code, Message: err.Error()}
}
