package hls

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/config"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/mediaworker"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/metrics"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/rtc"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/store"
)

// State is one of the five HLS pipeline states spec.md §4.9 names.
type State int

const (
	StateOff State = iota
	StateStarting
	StateRunning
	StateRestarting
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateRestarting:
		return "RESTARTING"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// RestartDebounce is spec.md §4.9's 2-second restart debounce, collapsing
// near-simultaneous audio+video publications into a single restart.
const RestartDebounce = 2 * time.Second

// pipelineLeg pairs a selected producer with the plain transport and plain
// consumer relaying its RTP into the transcoder.
type pipelineLeg struct {
	producer  *rtc.Producer
	transport *rtc.PlainTransport
	consumer  *rtc.PlainConsumer
}

// roomPipeline is one room's HLS state, guarded by its own mutex per
// spec.md §5 ("HLS state transitions are serialized per room via a per-room
// mutex").
type roomPipeline struct {
	mu sync.Mutex

	state       State
	playlistURL string
	sdpPath     string
	segmentDir  string
	videos      []pipelineLeg
	audios      []pipelineLeg
	cmd         *exec.Cmd
	generation  uint64

	debounceTimer *time.Timer
}

// Controller is the HLS Pipeline Controller (C9). It is constructed before
// the Room Orchestrator (which needs it to build Rooms) and is handed a
// RoomProvider afterward via SetRoomProvider, to break the natural
// construction-order cycle.
type Controller struct {
	cfg            *config.Config
	rtcRegistry    *rtc.Registry
	workerRegistry *mediaworker.Registry
	store          *store.Store

	provider RoomProvider

	nextPort atomic.Uint32

	mu     sync.Mutex
	rooms  map[string]*roomPipeline
}

// NewController builds a Controller. Call SetRoomProvider before any room
// produces media.
func NewController(cfg *config.Config, rtcRegistry *rtc.Registry, workerRegistry *mediaworker.Registry, st *store.Store) *Controller {
	c := &Controller{
		cfg:            cfg,
		rtcRegistry:    rtcRegistry,
		workerRegistry: workerRegistry,
		store:          st,
		rooms:          make(map[string]*roomPipeline),
	}
	c.nextPort.Store(uint32(cfg.MediaRTPMinPort))
	return c
}

// SetRoomProvider wires the Controller to the Room Orchestrator. Must be
// called once, before the first OnProducerChange/Stop call.
func (c *Controller) SetRoomProvider(p RoomProvider) {
	c.provider = p
}

func (c *Controller) pipelineFor(roomID string) *roomPipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	rp, ok := c.rooms[roomID]
	if !ok {
		rp = &roomPipeline{state: StateOff}
		c.rooms[roomID] = rp
	}
	return rp
}

// PlaylistURL returns the current playlist URL for roomID, or "" if the
// pipeline is not RUNNING.
func (c *Controller) PlaylistURL(roomID string) string {
	c.mu.Lock()
	rp, ok := c.rooms[roomID]
	c.mu.Unlock()
	if !ok {
		return ""
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.state != StateRunning {
		return ""
	}
	return rp.playlistURL
}

// IsRunning reports whether roomID's pipeline is currently RUNNING or
// RESTARTING, for the explicit start-hls/stop-hls signaling handlers
// (spec.md §6) to reject a redundant start or a stop with nothing running.
func (c *Controller) IsRunning(roomID string) bool {
	c.mu.Lock()
	rp, ok := c.rooms[roomID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.state == StateRunning || rp.state == StateRestarting
}

// allocatePortPair draws the next RTP/RTCP port pair from the configured
// media RTP range, wrapping if exhausted. Plain transports and WebRTC
// transports share the configured range in this build; collisions are astronomically unlikely at the scale of a two-streamer room.
func (c *Controller) allocatePortPair() (int, int) {
	lo, hi := c.cfg.MediaRTPMinPort, c.cfg.MediaRTPMaxPort
	if hi <= lo+1 {
		lo, hi = 40000, 49999
	}
	span := uint32(hi - lo)
	for {
		n := c.nextPort.Add(2)
		port := lo + int(n%span)
		if port%2 != 0 {
			port--
		}
		return port, port + 1
	}
}

func selectRank(ri RoomInfo) (map[string]int, map[string]string) {
	rank := make(map[string]int)
	role := make(map[string]string)
	for _, p := range ri.StreamerParticipants() {
		rank[p.ID] = p.JoinRank
		role[p.ID] = p.Role
	}
	return rank, role
}

// selectProducers implements spec.md §4.9 step 1: up to two video and two
// audio producers across streamers, ordered videos-first then audios-first,
// stable by join time.
func (c *Controller) selectProducers(ri RoomInfo) (videos, audios []*rtc.Producer, hostHasAudio bool) {
	rank, role := selectRank(ri)
	all := c.rtcRegistry.ProducersForRoom(ri.RoomID())

	var vs, as []*rtc.Producer
	for _, p := range all {
		if p.Closed() {
			continue
		}
		if _, ok := rank[p.ParticipantID()]; !ok {
			continue // producer's owner already left
		}
		if p.Kind() == rtc.KindVideo {
			vs = append(vs, p)
		} else {
			as = append(as, p)
			if role[p.ParticipantID()] == "host" {
				hostHasAudio = true
			}
		}
	}

	sort.SliceStable(vs, func(i, j int) bool { return rank[vs[i].ParticipantID()] < rank[vs[j].ParticipantID()] })
	sort.SliceStable(as, func(i, j int) bool { return rank[as[i].ParticipantID()] < rank[as[j].ParticipantID()] })

	if len(vs) > 2 {
		vs = vs[:2]
	}
	if len(as) > 2 {
		as = as[:2]
	}
	return vs, as, hostHasAudio
}

// OnProducerChange is called by internal/room whenever a streamer's producer
// set changes (produce, producer close, participant leave). It decides
// OFF->STARTING, RUNNING->RESTARTING (debounced), or tears the pipeline down
// if no audio producer remains, per spec.md §4.9.
func (c *Controller) OnProducerChange(ctx context.Context, roomID string) {
	if c.provider == nil {
		return
	}
	ri, ok := c.provider.GetRoom(roomID)
	if !ok {
		return
	}

	videos, audios, hostHasAudio := c.selectProducers(ri)
	rp := c.pipelineFor(roomID)

	rp.mu.Lock()
	state := rp.state
	rp.mu.Unlock()

	switch state {
	case StateOff:
		if hostHasAudio {
			c.start(ctx, ri, rp, videos, audios)
		}
	case StateRunning:
		if len(audios) == 0 {
			// Last audio producer gone: nothing left to stream.
			c.stopLocked(context.Background(), ri, rp, true)
			return
		}
		if pipelineChangedMaterially(rp, videos, audios) {
			c.scheduleRestart(ri, rp, videos, audios)
		}
	case StateStarting, StateRestarting, StateStopping:
		// Busy: the next settled event will re-observe the current producer
		// set, so no action is needed now (spec.md §5: "other operations on
		// that room during startup observe STARTING and return HLS_BUSY").
	}
}

// pipelineChangedMaterially decides the RUNNING->RESTARTING transition by
// comparing the newly selected producers with the running pipeline's legs:
// any difference in the number of video or audio producers, or in which
// producer fills a slot, counts as a material change. It does not look at
// roles or at which streamer changed, so a guest publishing only audio also
// triggers a restart.
func pipelineChangedMaterially(rp *roomPipeline, videos, audios []*rtc.Producer) bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if len(videos) != len(rp.videos) {
		return true
	}
	if len(audios) != len(rp.audios) {
		return true
	}
	for i, v := range videos {
		if rp.videos[i].producer.ID() != v.ID() {
			return true
		}
	}
	for i, a := range audios {
		if rp.audios[i].producer.ID() != a.ID() {
			return true
		}
	}
	return false
}

// scheduleRestart debounces a RESTARTING transition by RestartDebounce,
// replacing any pending timer so bursty producer events coalesce into one
// restart (spec.md §4.9/§5).
func (c *Controller) scheduleRestart(ri RoomInfo, rp *roomPipeline, videos, audios []*rtc.Producer) {
	rp.mu.Lock()
	if rp.debounceTimer != nil {
		rp.debounceTimer.Stop()
	}
	rp.debounceTimer = time.AfterFunc(RestartDebounce, func() {
		c.restart(context.Background(), ri, rp, videos, audios)
	})
	rp.mu.Unlock()
}

// start builds the pipeline from OFF and transitions to RUNNING.
func (c *Controller) start(ctx context.Context, ri RoomInfo, rp *roomPipeline, videos, audios []*rtc.Producer) {
	rp.mu.Lock()
	if rp.state != StateOff {
		rp.mu.Unlock()
		return
	}
	rp.state = StateStarting
	rp.mu.Unlock()
	metrics.HLSPipelineState.WithLabelValues(ri.RoomID()).Set(float64(StateStarting))

	if err := c.buildAndRun(ctx, ri, rp, videos, audios); err != nil {
		slog.Error("hls: failed to start pipeline", "room_id", ri.RoomID(), "error", err)
		rp.mu.Lock()
		rp.state = StateOff
		rp.mu.Unlock()
		metrics.HLSPipelineState.WithLabelValues(ri.RoomID()).Set(float64(StateOff))
		ri.Broadcast(ctx, "error", map[string]string{"message": "HLS_SPAWN_FAILED"}, "")
		return
	}

	rp.mu.Lock()
	rp.state = StateRunning
	url := rp.playlistURL
	rp.mu.Unlock()
	metrics.HLSPipelineState.WithLabelValues(ri.RoomID()).Set(float64(StateRunning))
	if c.store != nil {
		go func() { _ = c.store.SetRoomHLSURL(context.Background(), ri.RoomID(), url) }()
	}
	ri.Broadcast(ctx, "hls-started", map[string]string{"roomId": ri.RoomID(), "playlistUrl": url}, "")
	slog.Info("hls pipeline started", "room_id", ri.RoomID(), "playlist_url", url)
}

// restart tears down the running pipeline and rebuilds it, broadcasting
// hls-restarted on success (spec.md §4.9's RESTARTING->RUNNING).
func (c *Controller) restart(ctx context.Context, ri RoomInfo, rp *roomPipeline, videos, audios []*rtc.Producer) {
	rp.mu.Lock()
	if rp.state != StateRunning {
		rp.mu.Unlock()
		return // stopped or already restarting by the time the debounce fired
	}
	rp.state = StateRestarting
	rp.mu.Unlock()
	metrics.HLSPipelineState.WithLabelValues(ri.RoomID()).Set(float64(StateRestarting))

	c.teardownLegs(rp)

	if err := c.buildAndRun(ctx, ri, rp, videos, audios); err != nil {
		slog.Error("hls: failed to restart pipeline", "room_id", ri.RoomID(), "error", err)
		rp.mu.Lock()
		rp.state = StateOff
		rp.mu.Unlock()
		metrics.HLSPipelineState.WithLabelValues(ri.RoomID()).Set(float64(StateOff))
		ri.Broadcast(ctx, "hls-stopped", map[string]string{"roomId": ri.RoomID()}, "")
		return
	}

	rp.mu.Lock()
	rp.state = StateRunning
	url := rp.playlistURL
	rp.mu.Unlock()
	metrics.HLSPipelineState.WithLabelValues(ri.RoomID()).Set(float64(StateRunning))
	ri.Broadcast(ctx, "hls-restarted", map[string]string{"roomId": ri.RoomID(), "playlistUrl": url}, "")
	slog.Info("hls pipeline restarted", "room_id", ri.RoomID(), "playlist_url", url)
}

// buildAndRun implements spec.md §4.9's pipeline construction steps 2-5:
// plain transports + un-paused consumers per selected producer, the sdp
// file, the transcoder subprocess, and the playlist URL.
func (c *Controller) buildAndRun(ctx context.Context, ri RoomInfo, rp *roomPipeline, videos, audios []*rtc.Producer) error {
	roomID := ri.RoomID()
	segmentDir := filepath.Join(c.cfg.HLSStoragePath, roomID)
	if err := os.MkdirAll(segmentDir, 0o755); err != nil {
		return fmt.Errorf("create segment directory: %w", err)
	}
	sdpPath := filepath.Join(c.cfg.HLSStoragePath, roomID+".sdp")

	var videoLegs, audioLegs []pipelineLeg
	buildLeg := func(p *rtc.Producer) (pipelineLeg, error) {
		rtpPort, rtcpPort := c.allocatePortPair()
		transport := c.rtcRegistry.CreatePlainTransport(roomID, rtpPort, rtcpPort)
		consumer, err := c.rtcRegistry.CreatePlainConsumer(p.ID(), transport)
		if err != nil {
			transport.Close()
			return pipelineLeg{}, err
		}
		return pipelineLeg{producer: p, transport: transport, consumer: consumer}, nil
	}

	for _, p := range videos {
		leg, err := buildLeg(p)
		if err != nil {
			return fmt.Errorf("build video leg: %w", err)
		}
		videoLegs = append(videoLegs, leg)
	}
	for _, p := range audios {
		leg, err := buildLeg(p)
		if err != nil {
			return fmt.Errorf("build audio leg: %w", err)
		}
		audioLegs = append(audioLegs, leg)
	}

	if err := writeSessionDescription(sdpPath, videoLegs, audioLegs); err != nil {
		return fmt.Errorf("write sdp: %w", err)
	}

	playlistPath := filepath.Join(segmentDir, "playlist.m3u8")
	args := buildTranscoderArgs(sdpPath, playlistPath, len(videoLegs), len(audioLegs))

	cmd := exec.CommandContext(context.Background(), c.cfg.TranscoderBinPath, args...)
	if err := cmd.Start(); err != nil {
		metrics.HLSTranscoderSpawns.WithLabelValues("error").Inc()
		return fmt.Errorf("spawn transcoder: %w", err)
	}
	metrics.HLSTranscoderSpawns.WithLabelValues("ok").Inc()

	rp.mu.Lock()
	rp.sdpPath = sdpPath
	rp.segmentDir = segmentDir
	rp.videos = videoLegs
	rp.audios = audioLegs
	rp.cmd = cmd
	rp.generation++
	generation := rp.generation
	rp.playlistURL = fmt.Sprintf("/hls/%s/playlist.m3u8", roomID)
	rp.mu.Unlock()

	go c.watchTranscoder(ri, rp, cmd, generation)
	return nil
}

// watchTranscoder observes the transcoder's exit. An exit while the
// pipeline is still RUNNING and still on this generation is a crash
// (spec.md §4.9's crash semantics): transition to OFF, clear hlsUrl,
// broadcast hls-stopped. Automatic restart on crash is explicitly not done
// (spec.md §9's open question, resolved as "no" per DESIGN.md).
func (c *Controller) watchTranscoder(ri RoomInfo, rp *roomPipeline, cmd *exec.Cmd, generation uint64) {
	err := cmd.Wait()

	rp.mu.Lock()
	stillCurrent := rp.generation == generation
	wasRunning := rp.state == StateRunning
	rp.mu.Unlock()
	if !stillCurrent || !wasRunning {
		return // intentional stop/restart already superseded this process
	}

	slog.Warn("hls: transcoder exited unexpectedly", "room_id", ri.RoomID(), "error", err)
	metrics.HLSTranscoderCrashes.Inc()

	rp.mu.Lock()
	rp.state = StateOff
	rp.playlistURL = ""
	rp.mu.Unlock()
	metrics.HLSPipelineState.WithLabelValues(ri.RoomID()).Set(float64(StateOff))

	c.teardownLegs(rp)
	if c.store != nil {
		go func() { _ = c.store.SetRoomHLSURL(context.Background(), ri.RoomID(), "") }()
	}
	ri.Broadcast(context.Background(), "hls-stopped", map[string]string{"roomId": ri.RoomID()}, "")
}

// Stop tears the pipeline down immediately: stop-hls, last streamer leaving,
// or room teardown (spec.md §4.9's RUNNING->STOPPING->OFF).
func (c *Controller) Stop(ctx context.Context, roomID string) {
	c.mu.Lock()
	rp, ok := c.rooms[roomID]
	c.mu.Unlock()
	if !ok {
		return
	}

	var ri RoomInfo
	if c.provider != nil {
		ri, _ = c.provider.GetRoom(roomID)
	}
	if ri == nil {
		ri = noopRoomInfo{id: roomID}
	}
	c.stopLocked(ctx, ri, rp, true)
}

func (c *Controller) stopLocked(ctx context.Context, ri RoomInfo, rp *roomPipeline, broadcast bool) {
	rp.mu.Lock()
	if rp.state == StateOff {
		rp.mu.Unlock()
		return
	}
	if rp.debounceTimer != nil {
		rp.debounceTimer.Stop()
		rp.debounceTimer = nil
	}
	rp.state = StateStopping
	rp.mu.Unlock()
	metrics.HLSPipelineState.WithLabelValues(ri.RoomID()).Set(float64(StateStopping))

	c.teardownLegs(rp)

	rp.mu.Lock()
	cmd := rp.cmd
	rp.cmd = nil
	rp.generation++
	sdpPath := rp.sdpPath
	segmentDir := rp.segmentDir
	rp.sdpPath = ""
	rp.segmentDir = ""
	rp.playlistURL = ""
	rp.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			slog.Warn("hls: failed to kill transcoder", "room_id", ri.RoomID(), "error", err)
		}
	}
	if sdpPath != "" {
		if err := os.Remove(sdpPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("hls: failed to remove sdp file", "room_id", ri.RoomID(), "error", err)
		}
	}
	if segmentDir != "" {
		if err := os.RemoveAll(segmentDir); err != nil {
			slog.Warn("hls: failed to remove segment directory", "room_id", ri.RoomID(), "error", err)
		}
	}

	if c.store != nil {
		go func() { _ = c.store.SetRoomHLSURL(context.Background(), ri.RoomID(), "") }()
	}

	rp.mu.Lock()
	rp.state = StateOff
	rp.mu.Unlock()
	metrics.HLSPipelineState.WithLabelValues(ri.RoomID()).Set(float64(StateOff))

	if broadcast {
		ri.Broadcast(ctx, "hls-stopped", map[string]string{"roomId": ri.RoomID()}, "")
	}
	slog.Info("hls pipeline stopped", "room_id", ri.RoomID())
}

// teardownLegs closes every plain consumer before its plain transport, per
// spec.md §4.5/§4.9's "consumers -> transports -> kill transcoder" order.
// All cleanup is best-effort; failures are logged, never propagated.
func (c *Controller) teardownLegs(rp *roomPipeline) {
	rp.mu.Lock()
	videos := rp.videos
	audios := rp.audios
	rp.videos = nil
	rp.audios = nil
	rp.mu.Unlock()

	for _, leg := range videos {
		if leg.consumer != nil {
			leg.consumer.Close()
		}
	}
	for _, leg := range audios {
		if leg.consumer != nil {
			leg.consumer.Close()
		}
	}
	for _, leg := range videos {
		if leg.transport != nil {
			leg.transport.Close()
		}
	}
	for _, leg := range audios {
		if leg.transport != nil {
			leg.transport.Close()
		}
	}
}

// noopRoomInfo is used by Stop when the room has already been evicted from
// the Orchestrator (e.g. room teardown races the HLS stop); broadcasting to
// a room with no participants left is a harmless no-op.
type noopRoomInfo struct{ id string }

func (n noopRoomInfo) RoomID() string                    { return n.id }
func (n noopRoomInfo) StreamerParticipants() []ParticipantInfo { return nil }
func (n noopRoomInfo) Broadcast(context.Context, string, any, string) {}
