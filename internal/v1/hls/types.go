// Package hls implements the HLS Pipeline Controller (C9): the OFF ->
// STARTING -> RUNNING -> RESTARTING -> STOPPING state machine that drives
// plain-RTP transports and an ffmpeg-compatible transcoder subprocess to
// produce a live segmented playlist from a room's streamer producers
// (spec.md §4.9). Grounded on the teacher's session/hub.go supervision style
// (one goroutine per long-running external process, a done channel the
// supervisor watches) generalized from a websocket hub to a transcoder
// process; the per-room debounce timer is grounded on the same package's
// typing-indicator debounce pattern (a replaceable *time.Timer guarded by
// the owning mutex).
package hls

import "context"

// ParticipantInfo is the slice of a room participant's state this
// controller needs to decide whether to start (host-ness) and stable ordering
// (join rank) for pipeline construction, without importing internal/room.
type ParticipantInfo struct {
	ID       string
	Role     string // "host" | "guest" | "viewer"
	JoinRank int
}

// RoomInfo is the read-only view into a live room the controller needs:
// enough to select producers and broadcast state-change events, without
// internal/hls importing internal/room (which imports internal/hls for the
// Controller's small interface seam — see internal/v1/room/room.go's
// HLSController type).
type RoomInfo interface {
	RoomID() string
	// StreamerParticipants returns every non-viewer participant currently in
	// the room, in join order.
	StreamerParticipants() []ParticipantInfo
	// Broadcast sends event to every room member except excludeParticipantID
	// (spec.md §4.9's hls-started/hls-restarted/hls-stopped broadcasts).
	Broadcast(ctx context.Context, event string, payload any, excludeParticipantID string)
}

// RoomProvider resolves a room id to its live RoomInfo. Implemented by
// internal/room's Orchestrator and supplied to the Controller after both are
// constructed (breaking the natural construction-order cycle: the
// Orchestrator needs the Controller to build Rooms, and the Controller needs
// the Orchestrator to look rooms back up).
type RoomProvider interface {
	GetRoom(roomID string) (RoomInfo, bool)
}
