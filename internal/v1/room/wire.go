package room

import "encoding/json"

// Client-to-server event names (spec.md §6's signaling wire protocol table).
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventCreateTransport  = "create-transport"
	EventConnectTransport = "connect-transport"
	EventProduce          = "produce"
	EventConsume          = "consume"
	EventStartHLS         = "start-hls"
	EventStopHLS          = "stop-hls"
)

// Server-initiated event names (spec.md §6).
const (
	EventNewParticipant  = "new-participant"
	EventNewProducer     = "new-producer"
	EventProducerClosed  = "producer-closed"
	EventParticipantLeft = "participant-left"
	EventHLSStarted      = "hls-started"
	EventHLSRestarted    = "hls-restarted"
	EventHLSStopped      = "hls-stopped"
)

// Envelope is the wire-level JSON message shape. ID is a client-supplied
// correlation id: requests carry it, replies echo it, fire-and-forget server
// broadcasts omit it (spec.md §5's three dispatcher message shapes —
// request/reply, broadcast, fire-and-forget event).
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// WireError is the error shape of a failed reply (spec.md §7).
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Request payloads ---

type JoinRoomRequest struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"` // "host" | "guest" | "viewer"
}

type ProducerSnapshot struct {
	ProducerID    string `json:"producerId"`
	ParticipantID string `json:"participantId"`
	Kind          string `json:"kind"`
}

// RoomSnapshot is the `room` object of a join-room reply (spec.md §6): just
// enough for a viewer to render the room and discover its HLS playlist
// without having joined any WebRTC endpoint (spec.md §8.4).
type RoomSnapshot struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	HLSURL      string `json:"hlsUrl,omitempty"`
}

type JoinRoomReply struct {
	Room                  RoomSnapshot       `json:"room"`
	ParticipantID         string             `json:"participantId"`
	Role                  string             `json:"role"`
	RouterRTPCapabilities any                `json:"routerRtpCapabilities"`
	ExistingProducers     []ProducerSnapshot `json:"existingProducers"`
}

type CreateTransportRequest struct {
	Direction string `json:"direction"` // "send" | "recv"
}

type ConnectTransportRequest struct {
	TransportID    string `json:"transportId"`
	DTLSParameters any    `json:"dtlsParameters"`
}

type ProduceRequest struct {
	TransportID string `json:"transportId"`
	Kind        string `json:"kind"`
	SSRC        uint32 `json:"ssrc"`
	PayloadType uint8  `json:"payloadType"`
}

type ProduceReply struct {
	ProducerID string `json:"producerId"`
}

type ConsumeRequest struct {
	ProducerID      string `json:"producerId"`
	RTPCapabilities any    `json:"rtpCapabilities"`
}

type NewParticipantEvent struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Role          string `json:"role"`
}

type NewProducerEvent struct {
	ProducerID    string `json:"producerId"`
	ParticipantID string `json:"participantId"`
	Kind          string `json:"kind"`
}

type ProducerClosedEvent struct {
	ProducerID string `json:"producerId"`
}

type ParticipantLeftEvent struct {
	ParticipantID string `json:"participantId"`
}

type HLSStateEvent struct {
	RoomID      string `json:"roomId"`
	PlaylistURL string `json:"playlistUrl,omitempty"`
}

func marshalPayload(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
