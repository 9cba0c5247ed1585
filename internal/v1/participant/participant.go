// Package participant implements the Participant Model (C4): the
// connection-facing counterpart of a joined user, distinct from its
// WebRTC endpoints (those live in internal/rtc, addressed by the
// participant's id). Grounded on the teacher's session.Client — same
// two-goroutine (readPump/writePump) connection shape, same buffered-send
// channel with drop-on-full backpressure policy — adapted from
// protobuf-over-binary-frames to the JSON wire protocol spec.md §6 mandates.
package participant

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/metrics"
	"github.com/gorilla/websocket"
)

// Role is a participant's role within a room (spec.md §3: host, guest,
// viewer — no waiting room, no screenshare role; every non-viewer is
// admitted immediately or rejected outright).
type Role string

const (
	RoleHost   Role = "host"
	RoleGuest  Role = "guest"
	RoleViewer Role = "viewer"
)

// Conn is the subset of *websocket.Conn a Participant needs, narrowed for
// testability the same way the teacher's wsConnection interface is.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Dispatcher routes an inbound message to the room's signaling handlers and
// is notified of disconnection — the Participant-side half of spec.md §4.6's
// Signaling Dispatcher, mirroring the teacher's Roomer seam.
type Dispatcher interface {
	Dispatch(ctx context.Context, p *Participant, raw []byte)
	HandleDisconnect(p *Participant)
}

// Participant is one joined user (spec.md §3). Its internal ID is stable
// for the lifetime of the room membership. Each signaling connection gets its
// own Participant: a reconnect creates a new one, and the disconnected one's
// producers, consumers and role are released when it leaves the room.
type Participant struct {
	ID          string // stable internal id
	SocketID    string // signaling-channel id of this connection
	RoomID      string
	DisplayName string
	JoinedAt    time.Time

	conn       Conn
	dispatcher Dispatcher
	send       chan []byte

	mu       sync.RWMutex
	role     Role
	hasVideo bool
	hasAudio bool

	closed atomic.Bool
}

// New creates a Participant bound to conn and wired to dispatcher. The
// caller (internal/room) still owns admission — this constructor does not
// decide the role, just carries it.
func New(id, socketID, roomID, displayName string, role Role, conn Conn, dispatcher Dispatcher) *Participant {
	return &Participant{
		ID:          id,
		SocketID:    socketID,
		RoomID:      roomID,
		DisplayName: displayName,
		JoinedAt:    time.Now(),
		conn:        conn,
		dispatcher:  dispatcher,
		send:        make(chan []byte, 64),
		role:        role,
	}
}

func (p *Participant) Role() Role {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.role
}

func (p *Participant) SetRole(r Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.role = r
}

// SetRoomID binds the participant to a room once join-room is admitted
// (spec.md §4.7: a connection belongs to no room until its first admitted
// join-room message).
func (p *Participant) SetRoomID(roomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RoomID = roomID
}

// GetRoomID returns the participant's current room id, or "" if unjoined.
func (p *Participant) GetRoomID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.RoomID
}

func (p *Participant) HasVideo() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasVideo
}

func (p *Participant) HasAudio() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasAudio
}

// SetHasVideo/SetHasAudio flip the media flags a produce call updates
// (spec.md §4.8: producing flips hasVideo/hasAudio and the new state is
// broadcast via new-producer). Same lock as Role — both the dispatcher
// goroutine and registry @close callbacks touch these fields (spec.md §5's
// "per-participant lock shared between the dispatcher and close-event
// handlers").
func (p *Participant) SetHasVideo(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasVideo = v
}

func (p *Participant) SetHasAudio(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasAudio = v
}

// IsStreamer reports whether this participant occupies one of the room's
// two streamer slots (spec.md §3/§4.7: host and guest are streamers, viewer
// never is).
func (p *Participant) IsStreamer() bool {
	r := p.Role()
	return r == RoleHost || r == RoleGuest
}

func (p *Participant) Closed() bool { return p.closed.Load() }

// Send enqueues a JSON-encoded message for delivery, matching the teacher's
// drop-rather-than-block backpressure policy so one slow client never stalls
// a broadcast.
func (p *Participant) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("participant: failed to marshal outbound message", "participant_id", p.ID, "error", err)
		return
	}
	select {
	case p.send <- data:
	default:
		slog.Warn("participant: send channel full, dropping message", "participant_id", p.ID)
	}
}

// ReadPump runs in its own goroutine, reading JSON text frames and handing
// each to the dispatcher, until the connection errors or closes.
func (p *Participant) ReadPump(ctx context.Context) {
	defer func() {
		p.dispatcher.HandleDisconnect(p)
		p.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		p.dispatcher.Dispatch(ctx, p, data)
	}
}

// WritePump drains the send channel to the wire until it is closed.
func (p *Participant) WritePump() {
	defer p.conn.Close()
	const writeWait = 10 * time.Second

	for message := range p.send {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			slog.Error("participant: error writing message", "participant_id", p.ID, "error", err)
			return
		}
	}
	_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Close tears down the connection and stops WritePump. Idempotent.
func (p *Participant) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.send)
}
