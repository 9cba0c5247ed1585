package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/bus"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/hls"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/participant"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/rtc"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/store"
)

// parseRole validates a wire-protocol role string against spec.md §3's
// closed set (host, guest, viewer).
func parseRole(s string) (participant.Role, bool) {
	switch participant.Role(s) {
	case participant.RoleHost, participant.RoleGuest, participant.RoleViewer:
		return participant.Role(s), true
	default:
		return "", false
	}
}

// Orchestrator is the Room Orchestrator (C7): the single owner of the rooms
// map, responsible for find-or-create-on-join and teardown-on-empty, and the
// RoomProvider the HLS controller resolves room ids against (breaking the
// construction-order cycle — see internal/v1/hls.RoomProvider's doc comment).
type Orchestrator struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	routers  *mediaworker.Registry
	registry *rtc.Registry
	hls      *hls.Controller
	store    *store.Store
	busSvc   *bus.Service
}

// NewOrchestrator constructs an Orchestrator. Call hlsController.SetRoomProvider(orch)
// immediately after, so the HLS controller can resolve rooms this Orchestrator owns.
func NewOrchestrator(routers *mediaworker.Registry, registry *rtc.Registry, hlsController *hls.Controller, st *store.Store, busSvc *bus.Service) *Orchestrator {
	return &Orchestrator{
		rooms:    make(map[string]*Room),
		routers:  routers,
		registry: registry,
		hls:      hlsController,
		store:    st,
		busSvc:   busSvc,
	}
}

// GetRoom satisfies internal/v1/hls's RoomProvider seam.
func (o *Orchestrator) GetRoom(roomID string) (hls.RoomInfo, bool) {
	o.mu.RLock()
	r, ok := o.rooms[roomID]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r, true
}

// getOrCreateRoom finds a live room or creates one, along with its router —
// spec.md §3's "room exists ⇔ it has at least one participant or a live
// router" invariant realized as find-or-create-on-join.
func (o *Orchestrator) getOrCreateRoom(ctx context.Context, roomID, displayName string) (*Room, error) {
	o.mu.Lock()
	r, ok := o.rooms[roomID]
	if ok {
		o.mu.Unlock()
		return r, nil
	}

	r = newRoom(roomID, displayName, o.routers, o.registry, o.hls, o.store, o.busSvc, o.onRoomEmpty)
	o.rooms[roomID] = r
	o.mu.Unlock()

	router, err := o.routers.CreateRouter(ctx, roomID, displayName)
	if err != nil {
		o.mu.Lock()
		delete(o.rooms, roomID)
		o.mu.Unlock()
		return nil, fmt.Errorf("room: create router for %s: %w", roomID, err)
	}
	r.setRouter(router)

	if o.store != nil {
		go func() { _ = o.store.UpsertRoom(context.Background(), roomID, displayName) }()
	}

	slog.Info("room created", "room_id", roomID)
	return r, nil
}

// JoinRoom implements spec.md §4.7's join-room operation end to end:
// find-or-create the room, admit the participant, and return the reply
// payload (role, codec capabilities, existing-producers snapshot).
func (o *Orchestrator) JoinRoom(ctx context.Context, req JoinRoomRequest, p *participant.Participant) (*Room, JoinRoomReply, error) {
	role, ok := parseRole(req.Role)
	if !ok {
		return nil, JoinRoomReply{}, fmt.Errorf("room: invalid role %q", req.Role)
	}

	r, err := o.getOrCreateRoom(ctx, req.RoomID, req.DisplayName)
	if err != nil {
		return nil, JoinRoomReply{}, err
	}

	assignedRole, err := r.Admit(ctx, p, role)
	if err != nil {
		return nil, JoinRoomReply{}, err
	}

	// A viewer owns no WebRTC endpoints, so it has nothing to negotiate
	// codecs for: routerRtpCapabilities is null for it (spec.md §8.4).
	var caps any
	if assignedRole != participant.RoleViewer {
		if c, ok := o.routers.GetCapabilities(req.RoomID); ok {
			caps = c
		}
	}

	reply := JoinRoomReply{
		Room: RoomSnapshot{
			ID:          r.ID,
			DisplayName: r.DisplayName,
			HLSURL:      r.HLSURL(),
		},
		ParticipantID:         p.ID,
		Role:                  string(assignedRole),
		RouterRTPCapabilities: caps,
		ExistingProducers:     r.ExistingProducers(),
	}

	r.Broadcast(ctx, EventNewParticipant, NewParticipantEvent{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		Role:          string(assignedRole),
	}, p.ID)

	return r, reply, nil
}

// onRoomEmpty evicts roomID from the map — called once teardown has already
// closed the router and persisted the deactivation (spec.md §3).
func (o *Orchestrator) onRoomEmpty(roomID string) {
	o.mu.Lock()
	delete(o.rooms, roomID)
	o.mu.Unlock()
	slog.Info("room evicted from orchestrator", "room_id", roomID)
}

// GetRoomByID looks a live room up directly, for handlers that already know
// the participant's room (spec.md §4.8's transport/produce/consume flow).
func (o *Orchestrator) GetRoomByID(roomID string) (*Room, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.rooms[roomID]
	return r, ok
}

// RoomCount reports the number of live rooms, for the reconciliation job and
// diagnostics endpoints.
func (o *Orchestrator) RoomCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.rooms)
}
