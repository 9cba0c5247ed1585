package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// PlainConsumer forwards a producer's raw RTP packets onto a local UDP
// socket feeding the HLS transcoder (spec.md §4.9's plain-transport
// pipeline). Unlike Consumer (which re-wraps RTP into a pion TrackLocal for
// a WebRTC peer), the transcoder input is comedia-style raw RTP/UDP, so this
// consumer writes the bytes it reads from the producer's TrackRemote
// straight through. Created un-paused, per spec.md §4.9 step 2 ("a consumer
// bound to that transport in the un-paused state").
type PlainConsumer struct {
	id         string
	producerID string
	kind       Kind
	roomID     string

	conn *net.UDPConn

	closed      atomic.Bool
	relayCancel context.CancelFunc

	mu      sync.Mutex
	onClose []func()
}

func (c *PlainConsumer) ID() string         { return c.id }
func (c *PlainConsumer) ProducerID() string { return c.producerID }
func (c *PlainConsumer) Kind() Kind         { return c.kind }
func (c *PlainConsumer) Closed() bool       { return c.closed.Load() }

func (c *PlainConsumer) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		c.mu.Unlock()
		fn()
		c.mu.Lock()
		return
	}
	c.onClose = append(c.onClose, fn)
}

// Close stops the relay goroutine, closes the UDP socket, and fires onClose
// exactly once. Idempotent.
func (c *PlainConsumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.relayCancel != nil {
		c.relayCancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Lock()
	callbacks := c.onClose
	c.onClose = nil
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// NewPlainConsumer dials a UDP socket to transport's local RTP port and
// relays producer's inbound RTP packets onto it unmodified.
func NewPlainConsumer(producer *Producer, transport *PlainTransport) (*PlainConsumer, error) {
	track := producer.Track()
	if track == nil {
		return nil, fmt.Errorf("rtc: producer %s has no inbound track", producer.ID())
	}

	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: transport.RTPPort()}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("rtc: dial plain transport RTP socket: %w", err)
	}

	c := &PlainConsumer{
		id:         newEndpointID("plain-consumer"),
		producerID: producer.ID(),
		kind:       producer.Kind(),
		roomID:     producer.RoomID(),
		conn:       conn,
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	c.relayCancel = cancel
	go c.relayLoop(relayCtx, track)

	slog.Debug("hls plain consumer created", "id", c.id, "producer_id", producer.ID(), "rtp_port", transport.RTPPort())
	return c, nil
}

func (c *PlainConsumer) relayLoop(ctx context.Context, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("hls plain consumer relay read error", "id", c.id, "error", err)
			}
			return
		}
		if _, err := c.conn.Write(buf[:n]); err != nil {
			slog.Debug("hls plain consumer relay write error", "id", c.id, "error", err)
			return
		}
	}
}
