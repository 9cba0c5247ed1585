// Package room implements the Room Model (C5), the Signaling Dispatcher
// (C6), the Room Orchestrator (C7), and the WebRTC Handshake Flow (C8).
// Grounded on the teacher's session/room.go: the same single-mutex,
// ordered-participant, snapshot-then-release-broadcast shape, generalized
// from a video-conference room (chat/hand-raise/waiting-room) to an SFU
// room (router/transport/producer/consumer lifecycle, HLS state machine).
package room

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/bus"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/hls"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/metrics"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/participant"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/rtc"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/store"
)

// MaxStreamers is spec.md §3/§4.7's cap: at most two non-viewer participants
// (host + one guest) may hold WebRTC endpoints at once.
const MaxStreamers = 2

// HLSController is the seam the Room Orchestrator uses to drive the HLS
// Pipeline Controller (C9), implemented by internal/hls — kept as a small
// local interface rather than the concrete *hls.Controller type, the same "define it where it's
// consumed" seam the teacher uses for its Roomer/SFUChecker interfaces.
type HLSController interface {
	// OnProducerChange is called whenever a streamer's producer set changes
	// (produce, producer close, participant leave) so the controller can
	// decide OFF->STARTING, RUNNING->RESTARTING, or RUNNING->STOPPING per
	// spec.md §4.9's state machine.
	OnProducerChange(ctx context.Context, roomID string)
	// Stop tears the pipeline down immediately (stop-hls, room teardown).
	Stop(ctx context.Context, roomID string)
	// PlaylistURL returns the current playlist URL, or "" if not RUNNING.
	PlaylistURL(roomID string) string
	// IsRunning reports whether the pipeline is RUNNING or RESTARTING.
	IsRunning(roomID string) bool
}

// Room is one live or about-to-be-live conferencing room (spec.md §3).
type Room struct {
	ID          string
	DisplayName string

	mu           sync.RWMutex
	router       *mediaworker.Router
	participants map[string]*participant.Participant
	joinOrder    *list.List // elements are participant ids, oldest first
	elements     map[string]*list.Element

	registry *rtc.Registry
	routers  *mediaworker.Registry
	hls      HLSController
	store    *store.Store
	busSvc   *bus.Service

	onEmpty func(roomID string)
}

// newRoom constructs an empty Room. Callers must go through Orchestrator —
// this constructor is unexported so a Room is never created outside its
// registry's single-owner lock discipline.
func newRoom(id, displayName string, routers *mediaworker.Registry, registry *rtc.Registry, hls HLSController, st *store.Store, busSvc *bus.Service, onEmpty func(string)) *Room {
	return &Room{
		ID:           id,
		DisplayName:  displayName,
		participants: make(map[string]*participant.Participant),
		joinOrder:    list.New(),
		elements:     make(map[string]*list.Element),
		registry:     registry,
		routers:      routers,
		hls:          hls,
		store:        st,
		busSvc:       busSvc,
		onEmpty:      onEmpty,
	}
}

// IsLive reports whether the room currently has a router — spec.md's
// invariant `router.closed ⇔ room is not live`.
func (r *Room) IsLive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.router != nil && !r.router.Closed()
}

func (r *Room) streamerCount() int {
	n := 0
	for _, p := range r.participants {
		if p.IsStreamer() {
			n++
		}
	}
	return n
}

func (r *Room) hasHost() bool {
	for _, p := range r.participants {
		if p.Role() == participant.RoleHost {
			return true
		}
	}
	return false
}

// Admit implements spec.md §4.7's admission rules, returning the assigned
// role (which may differ from the requested one, per the first-joiner
// promotion rule) or an admission error.
func (r *Room) Admit(ctx context.Context, p *participant.Participant, requestedRole participant.Role) (participant.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch requestedRole {
	case participant.RoleHost:
		if r.hasHost() {
			return "", ErrHostExists
		}
	case participant.RoleGuest:
		if r.streamerCount() >= MaxStreamers {
			return "", ErrRoomFull
		}
	case participant.RoleViewer:
		// Viewers are always admitted — they own no endpoints.
	default:
		return "", fmt.Errorf("room: invalid role %q", requestedRole)
	}

	role := requestedRole
	if role != participant.RoleViewer && !r.hasHost() {
		// First non-viewer into a room with no host is promoted (spec.md §4.7).
		role = participant.RoleHost
	}
	p.SetRole(role)

	r.participants[p.ID] = p
	r.elements[p.ID] = r.joinOrder.PushBack(p.ID)

	if r.store != nil {
		go func() {
			_ = r.store.UpsertParticipant(context.Background(), store.Participant{
				ID:       p.ID,
				RoomID:   r.ID,
				SocketID: p.SocketID,
				IsHost:   role == participant.RoleHost,
				IsViewer: role == participant.RoleViewer,
				JoinedAt: p.JoinedAt,
			})
		}()
	}

	metrics.RoomParticipants.WithLabelValues(r.ID).Set(float64(len(r.participants)))
	slog.Info("participant admitted", "room_id", r.ID, "participant_id", p.ID, "role", role)
	return role, nil
}

// ExistingProducers returns the join-time-ordered snapshot of live producers
// sent to a newly-joined participant (spec.md §4.7).
func (r *Room) ExistingProducers() []ProducerSnapshot {
	r.mu.RLock()
	order := make([]string, 0, r.joinOrder.Len())
	for e := r.joinOrder.Front(); e != nil; e = e.Next() {
		order = append(order, e.Value.(string))
	}
	r.mu.RUnlock()

	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}

	producers := r.registry.ProducersForRoom(r.ID)
	snaps := make([]ProducerSnapshot, 0, len(producers))
	for _, p := range producers {
		snaps = append(snaps, ProducerSnapshot{
			ProducerID:    p.ID(),
			ParticipantID: p.ParticipantID(),
			Kind:          string(p.Kind()),
		})
	}
	sortByJoinRank(snaps, rank)
	return snaps
}

func sortByJoinRank(snaps []ProducerSnapshot, rank map[string]int) {
	for i := 1; i < len(snaps); i++ {
		j := i
		for j > 0 && rank[snaps[j-1].ParticipantID] > rank[snaps[j].ParticipantID] {
			snaps[j-1], snaps[j] = snaps[j], snaps[j-1]
			j--
		}
	}
}

// Leave removes a participant, closes its endpoints, and broadcasts
// participant-left. If the room becomes empty it schedules teardown
// (spec.md §3's "empty room ⇒ teardown scheduled" invariant).
func (r *Room) Leave(ctx context.Context, participantID string) {
	r.mu.Lock()
	p, ok := r.participants[participantID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.participants, participantID)
	if el, ok := r.elements[participantID]; ok {
		r.joinOrder.Remove(el)
		delete(r.elements, participantID)
	}
	empty := len(r.participants) == 0
	r.mu.Unlock()

	r.registry.CloseTransportsForParticipant(participantID)

	if r.store != nil {
		go func() { _ = r.store.DeleteParticipant(context.Background(), participantID) }()
	}

	metrics.RoomParticipants.WithLabelValues(r.ID).Set(float64(len(r.participants)))
	r.Broadcast(ctx, EventParticipantLeft, ParticipantLeftEvent{ParticipantID: participantID}, participantID)

	if p.IsStreamer() && r.hls != nil {
		r.hls.OnProducerChange(ctx, r.ID)
	}

	if empty {
		go r.teardown()
	}
}

func (r *Room) teardown() {
	slog.Info("room empty, scheduling teardown", "room_id", r.ID)
	if r.hls != nil {
		r.hls.Stop(context.Background(), r.ID)
	}
	r.routers.CloseRouter(r.ID)
	if r.store != nil {
		_ = r.store.DeactivateRoom(context.Background(), r.ID)
	}
	if r.onEmpty != nil {
		r.onEmpty(r.ID)
	}
}

// Broadcast sends an event to every participant in the room except
// (optionally) excludeParticipantID, taking a snapshot of the participant
// map under lock then releasing it before the per-participant sends — the
// teacher's broadcast-then-release-lock discipline (spec.md §5: broadcasts
// are not serialized with respect to each other).
func (r *Room) Broadcast(ctx context.Context, event string, payload any, excludeParticipantID string) {
	r.mu.RLock()
	targets := make([]*participant.Participant, 0, len(r.participants))
	for id, p := range r.participants {
		if id == excludeParticipantID {
			continue
		}
		targets = append(targets, p)
	}
	r.mu.RUnlock()

	env := Envelope{Event: event, Payload: marshalPayload(payload)}
	for _, p := range targets {
		p.Send(env)
	}

	if r.busSvc != nil {
		go func() {
			_ = r.busSvc.Publish(context.Background(), r.ID, event, payload, excludeParticipantID, nil)
		}()
	}
}

// Participant looks up a live participant by id.
func (r *Room) Participant(id string) (*participant.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	return p, ok
}

// Router returns the room's live router, if any.
func (r *Room) Router() *mediaworker.Router {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.router
}

func (r *Room) setRouter(rt *mediaworker.Router) {
	r.mu.Lock()
	r.router = rt
	r.mu.Unlock()
}

// ParticipantCount returns the current number of joined participants.
func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// StreamerCount returns the current number of streamer participants
// (host+guest), used by the HLS controller's pipeline construction.
func (r *Room) StreamerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streamerCount()
}

// RoomID satisfies internal/v1/hls's RoomInfo seam.
func (r *Room) RoomID() string { return r.ID }

// HLSURL returns the room's current playlist URL, or "" if no transcoder is
// running — spec.md §3's `room.hlsUrl ≠ ∅ iff` invariant, surfaced to clients
// via the join-room reply's room snapshot (spec.md §6).
func (r *Room) HLSURL() string {
	if r.hls == nil {
		return ""
	}
	return r.hls.PlaylistURL(r.ID)
}

// StreamerParticipants satisfies internal/v1/hls's RoomInfo seam: every
// non-viewer participant, in join order, for the HLS controller's producer
// selection (spec.md §4.9).
func (r *Room) StreamerParticipants() []hls.ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rank := make(map[string]int, r.joinOrder.Len())
	i := 0
	for e := r.joinOrder.Front(); e != nil; e = e.Next() {
		rank[e.Value.(string)] = i
		i++
	}

	out := make([]hls.ParticipantInfo, 0, len(r.participants))
	for id, p := range r.participants {
		if !p.IsStreamer() {
			continue
		}
		out = append(out, hls.ParticipantInfo{
			ID:       id,
			Role:     string(p.Role()),
			JoinRank: rank[id],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinRank < out[j].JoinRank })
	return out
}
