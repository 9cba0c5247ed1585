package mediaworker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/metrics"
)

// CodecCapability is the wire shape of one entry in routerRtpCapabilities
// (spec.md §6's join-room reply), mirroring mediasoup's RtpCodecCapability.
type CodecCapability struct {
	Kind        string `json:"kind"`
	MimeType    string `json:"mimeType"`
	ClockRate   int    `json:"clockRate"`
	Channels    int    `json:"channels,omitempty"`
	PayloadType int    `json:"payloadType"`
	Parameters  string `json:"parameters,omitempty"`
}

// RTPCapabilities is the codec/feature set every router in this process
// exposes — spec.md §4.2's fixed codec set (Opus stereo, VP8, H.264
// baseline 42e01f packetization-mode=1, asymmetry allowed). It never varies
// per room, so it is computed once.
type RTPCapabilities struct {
	Codecs []CodecCapability `json:"codecs"`
}

var fixedCapabilities = RTPCapabilities{
	Codecs: []CodecCapability{
		{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PayloadType: 111, Parameters: "minptime=10;useinbandfec=1"},
		{Kind: "video", MimeType: "video/VP8", ClockRate: 90000, PayloadType: 96},
		{Kind: "video", MimeType: "video/H264", ClockRate: 90000, PayloadType: 102, Parameters: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"},
	},
}

// Router is exactly one per live room (spec.md §3). It owns no media
// endpoints directly — internal/rtc's registries own transports/producers/
// consumers created against this router's worker — it is purely a
// capability/lifecycle handle plus an app-data bag.
type Router struct {
	RoomID       string
	WorkerPID    int64
	Capabilities RTPCapabilities

	worker *Worker
	closed atomic.Bool

	// App-data bag (spec.md §3's "room-id, playlist URL, display name").
	DisplayName string
	PlaylistURL string
}

// Worker returns the owning worker, for internal/rtc to build transports on.
func (r *Router) Worker() *Worker {
	return r.worker
}

// Closed reports router.closed per spec.md's invariant `router.closed ⇒ room
// is not live`.
func (r *Router) Closed() bool {
	return r.closed.Load()
}

// Registry is the Router Registry (C2): one router per live room, keyed by
// room id.
type Registry struct {
	pool *Pool

	mu      sync.RWMutex
	routers map[string]*Router
}

// NewRegistry creates a Router Registry backed by the given worker pool.
func NewRegistry(pool *Pool) *Registry {
	return &Registry{
		pool:    pool,
		routers: make(map[string]*Router),
	}
}

// CreateRouter selects the next worker round-robin and creates a router for
// roomID using the fixed codec set. Returns the existing router if one is
// already live for this room (idempotent creation, matching spec.md's "one
// router per live room" invariant).
func (reg *Registry) CreateRouter(ctx context.Context, roomID, displayName string) (*Router, error) {
	reg.mu.Lock()
	if existing, ok := reg.routers[roomID]; ok && !existing.Closed() {
		reg.mu.Unlock()
		return existing, nil
	}
	reg.mu.Unlock()

	w, err := reg.pool.getNext()
	if err != nil {
		return nil, fmt.Errorf("mediaworker: createRouter(%s): %w", roomID, err)
	}

	router := &Router{
		RoomID:       roomID,
		WorkerPID:    w.PID(),
		Capabilities: fixedCapabilities,
		worker:       w,
		DisplayName:  displayName,
	}

	reg.mu.Lock()
	reg.routers[roomID] = router
	reg.mu.Unlock()

	metrics.ActiveRouters.Set(float64(reg.Count()))
	slog.Info("router created", "room_id", roomID, "worker_pid", w.PID())
	return router, nil
}

// GetRouter returns the live router for roomID, if any.
func (reg *Registry) GetRouter(roomID string) (*Router, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.routers[roomID]
	if !ok || r.Closed() {
		return nil, false
	}
	return r, true
}

// GetCapabilities exposes the router's codec capabilities, or ok=false if no
// router is live for this room.
func (reg *Registry) GetCapabilities(roomID string) (RTPCapabilities, bool) {
	r, ok := reg.GetRouter(roomID)
	if !ok {
		return RTPCapabilities{}, false
	}
	return r.Capabilities, true
}

// CloseRouter is idempotent — closing an already-closed or nonexistent
// router is a no-op, matching spec.md §4.2.
func (reg *Registry) CloseRouter(roomID string) {
	reg.mu.Lock()
	r, ok := reg.routers[roomID]
	if ok {
		delete(reg.routers, roomID)
	}
	reg.mu.Unlock()

	if !ok {
		return
	}
	if r.closed.CompareAndSwap(false, true) {
		metrics.ActiveRouters.Set(float64(reg.Count()))
		slog.Info("router closed", "room_id", roomID)
	}
}

// Count returns the number of live routers.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	n := 0
	for _, r := range reg.routers {
		if !r.Closed() {
			n++
		}
	}
	return n
}
