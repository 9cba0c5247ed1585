package participant

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements Conn for testing, mirroring the teacher's
// MockWSConnection shape (a read queue, a write log, a closed flag).
type mockConn struct {
	mu            sync.Mutex
	readMessages  [][]byte
	readIndex     int
	writeMessages [][]byte
	closed        bool
	writeErr      error
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readIndex >= len(m.readMessages) {
		return 0, nil, websocket.ErrCloseSent
	}
	msg := m.readMessages[m.readIndex]
	m.readIndex++
	return websocket.TextMessage, msg, nil
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writeMessages = append(m.writeMessages, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

func (m *mockConn) written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writeMessages))
	copy(out, m.writeMessages)
	return out
}

// mockDispatcher records every Dispatch/HandleDisconnect call.
type mockDispatcher struct {
	mu           sync.Mutex
	dispatched   [][]byte
	disconnected bool
}

func (d *mockDispatcher) Dispatch(ctx context.Context, p *Participant, raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, raw)
}

func (d *mockDispatcher) HandleDisconnect(p *Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = true
}

func newTestParticipant(conn Conn, dispatcher Dispatcher) *Participant {
	return New("p1", "sock1", "", "Alice", RoleGuest, conn, dispatcher)
}

func TestNewParticipant(t *testing.T) {
	conn := &mockConn{}
	disp := &mockDispatcher{}
	p := newTestParticipant(conn, disp)

	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "", p.GetRoomID())
	assert.Equal(t, RoleGuest, p.Role())
	assert.False(t, p.HasVideo())
	assert.False(t, p.HasAudio())
	assert.False(t, p.Closed())
}

func TestSetRoomID(t *testing.T) {
	p := newTestParticipant(&mockConn{}, &mockDispatcher{})
	assert.Equal(t, "", p.GetRoomID())
	p.SetRoomID("room-123")
	assert.Equal(t, "room-123", p.GetRoomID())
}

func TestSetRoleAndStreamerStatus(t *testing.T) {
	p := newTestParticipant(&mockConn{}, &mockDispatcher{})
	assert.True(t, p.IsStreamer())

	p.SetRole(RoleViewer)
	assert.False(t, p.IsStreamer())

	p.SetRole(RoleHost)
	assert.True(t, p.IsStreamer())
}

func TestSetHasVideoAudio(t *testing.T) {
	p := newTestParticipant(&mockConn{}, &mockDispatcher{})
	p.SetHasVideo(true)
	p.SetHasAudio(true)
	assert.True(t, p.HasVideo())
	assert.True(t, p.HasAudio())
}

func TestSendMarshalsAndDelivers(t *testing.T) {
	conn := &mockConn{}
	p := newTestParticipant(conn, &mockDispatcher{})

	type payload struct {
		Foo string `json:"foo"`
	}
	p.Send(payload{Foo: "bar"})

	go p.WritePump()
	p.Close()

	time.Sleep(20 * time.Millisecond)
	written := conn.written()
	require.NotEmpty(t, written)

	var got payload
	require.NoError(t, json.Unmarshal(written[0], &got))
	assert.Equal(t, "bar", got.Foo)
}

func TestSendDropsWhenChannelFull(t *testing.T) {
	conn := &mockConn{}
	p := newTestParticipant(conn, &mockDispatcher{})

	// Fill the 64-slot buffer without draining it.
	for i := 0; i < 100; i++ {
		p.Send(map[string]int{"i": i})
	}
	// No panic, no block — drop-on-full backpressure policy.
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newTestParticipant(&mockConn{}, &mockDispatcher{})
	p.Close()
	assert.True(t, p.Closed())
	assert.NotPanics(t, func() { p.Close() })
}

func TestReadPumpDispatchesAndNotifiesDisconnect(t *testing.T) {
	conn := &mockConn{readMessages: [][]byte{[]byte(`{"event":"ping"}`)}}
	disp := &mockDispatcher{}
	p := newTestParticipant(conn, disp)

	done := make(chan struct{})
	go func() {
		p.ReadPump(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadPump did not return after read error")
	}

	disp.mu.Lock()
	defer disp.mu.Unlock()
	require.Len(t, disp.dispatched, 1)
	assert.JSONEq(t, `{"event":"ping"}`, string(disp.dispatched[0]))
	assert.True(t, disp.disconnected)
	assert.True(t, p.Closed())
}
