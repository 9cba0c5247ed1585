package room

import "errors"

// Error codes are the sentinel errors the Signaling Dispatcher maps onto the
// wire error codes spec.md §7 enumerates by category.

// Admission errors.
var (
	ErrHostExists    = errors.New("room: HOST_EXISTS")
	ErrRoomFull      = errors.New("room: ROOM_FULL")
	ErrRoomNotFound  = errors.New("room: ROOM_NOT_FOUND")
	ErrNotAuthorized = errors.New("room: NOT_AUTHORIZED")
)

// Protocol errors.
var (
	ErrParticipantNotFound       = errors.New("room: PARTICIPANT_NOT_FOUND")
	ErrInvalidDirection          = errors.New("room: INVALID_DIRECTION")
	ErrViewerCannotConsumeWebRTC = errors.New("room: VIEWER_CANNOT_CONSUME_WEBRTC")
	ErrTransportConnectTimeout   = errors.New("room: TRANSPORT_CONNECT_TIMEOUT")
	ErrIncompatibleCapabilities  = errors.New("room: INCOMPATIBLE_CAPABILITIES")
	ErrTransportNotFound         = errors.New("room: TRANSPORT_NOT_FOUND")
	ErrProducerNotFound          = errors.New("room: PRODUCER_NOT_FOUND")
)

// Media errors.
var (
	ErrProduceFailed = errors.New("room: PRODUCE_FAILED")
	ErrConsumeFailed = errors.New("room: CONSUME_FAILED")
)

// HLS errors.
var (
	ErrHLSAlreadyRunning = errors.New("room: HLS_ALREADY_RUNNING")
	ErrHLSNotRunning     = errors.New("room: HLS_NOT_RUNNING")
	ErrHLSSpawnFailed    = errors.New("room: HLS_SPAWN_FAILED")
	ErrNoAudioProducers  = errors.New("room: NO_AUDIO_PRODUCERS")
	ErrHLSBusy           = errors.New("room: HLS_BUSY")
)

// Infrastructure errors.
var (
	ErrWorkerDied = errors.New("room: WORKER_DIED")
	ErrRouterGone = errors.New("room: ROUTER_GONE")
)

// errorCodes maps each sentinel error to the wire protocol code the
// Signaling Dispatcher replies with (spec.md §7).
var errorCodes = map[error]string{
	ErrHostExists:                "HOST_EXISTS",
	ErrRoomFull:                  "ROOM_FULL",
	ErrRoomNotFound:              "ROOM_NOT_FOUND",
	ErrNotAuthorized:             "NOT_AUTHORIZED",
	ErrParticipantNotFound:       "PARTICIPANT_NOT_FOUND",
	ErrInvalidDirection:          "INVALID_DIRECTION",
	ErrViewerCannotConsumeWebRTC: "VIEWER_CANNOT_CONSUME_WEBRTC",
	ErrTransportConnectTimeout:   "TRANSPORT_CONNECT_TIMEOUT",
	ErrIncompatibleCapabilities:  "INCOMPATIBLE_CAPABILITIES",
	ErrTransportNotFound:         "TRANSPORT_NOT_FOUND",
	ErrProducerNotFound:          "PRODUCER_NOT_FOUND",
	ErrProduceFailed:             "PRODUCE_FAILED",
	ErrConsumeFailed:             "CONSUME_FAILED",
	ErrHLSAlreadyRunning:         "HLS_ALREADY_RUNNING",
	ErrHLSNotRunning:             "HLS_NOT_RUNNING",
	ErrHLSSpawnFailed:            "HLS_SPAWN_FAILED",
	ErrNoAudioProducers:          "NO_AUDIO_PRODUCERS",
	ErrHLSBusy:                   "HLS_BUSY",
	ErrWorkerDied:                "WORKER_DIED",
	ErrRouterGone:                "ROUTER_GONE",
}
