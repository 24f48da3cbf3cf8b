package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startManager(t *testing.T, maxConn int) (*Manager, context.CancelFunc) {
	t.Helper()

	m := NewManager(Options{MaxConnPerUser: maxConn}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return m, cancel
}

func register(t *testing.T, m *Manager, id, userID, deviceID string) *Client {
	t.Helper()

	c := NewClient(id, userID, deviceID, nil, m)
	require.True(t, m.Register(c))
	return c
}

func TestManager_BroadcastSkipsOriginDevice(t *testing.T) {
	m, _ := startManager(t, 5)

	laptop := register(t, m, "c1", "user-1", "laptop")
	phone := register(t, m, "c2", "user-1", "phone")
	other := register(t, m, "c3", "user-2", "tablet")

	require.Eventually(t, func() bool {
		return m.GetUserConnections("user-1") == 2 && m.GetUserConnections("user-2") == 1
	}, time.Second, 5*time.Millisecond)

	msg, err := NewMessage(TypeNoteUpdate, &NoteUpdatePayload{NoteID: "n1", Hash: "abc", DeviceID: "laptop"})
	require.NoError(t, err)
	require.NoError(t, m.BroadcastToUser("user-1", msg, "laptop"))

	select {
	case raw := <-phone.Send:
		var got Message
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, TypeNoteUpdate, got.Type)

		var payload NoteUpdatePayload
		require.NoError(t, got.UnmarshalPayload(&payload))
		assert.Equal(t, "n1", payload.NoteID)
		assert.Equal(t, "abc", payload.Hash)
	case <-time.After(time.Second):
		t.Fatal("phone did not receive the update")
	}

	assert.Empty(t, laptop.Send)
	assert.Empty(t, other.Send)
}

func TestManager_MaxConnectionsPerUser(t *testing.T) {
	m, _ := startManager(t, 1)

	register(t, m, "c1", "user-1", "laptop")
	rejected := register(t, m, "c2", "user-1", "phone")

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-rejected.Send:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.GetUserConnections("user-1"))
}

func TestManager_Unregister(t *testing.T) {
	m, _ := startManager(t, 5)

	c := register(t, m, "c1", "user-1", "laptop")
	require.Eventually(t, func() bool { return m.GetUserConnections("user-1") == 1 }, time.Second, 5*time.Millisecond)

	m.unregister(c)
	require.Eventually(t, func() bool { return m.GetUserConnections("user-1") == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestManager_ShutdownClosesClients(t *testing.T) {
	m, cancel := startManager(t, 5)

	c := register(t, m, "c1", "user-1", "laptop")
	require.Eventually(t, func() bool { return m.GetUserConnections("user-1") == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case _, ok := <-c.Send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on shutdown")
	}

	assert.False(t, m.Register(NewClient("c2", "user-1", "phone", nil, m)))

	msg, err := NewMessage(TypePong, nil)
	require.NoError(t, err)
	assert.NoError(t, m.BroadcastToUser("user-1", msg, ""))
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []MessageType
}

func (h *recordingHandler) HandleWebSocketMessage(_ context.Context, _ *Client, msg *Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg.Type)
	return nil
}

func (h *recordingHandler) types() []MessageType {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]MessageType(nil), h.seen...)
}

func TestManager_DispatchesInboundMessages(t *testing.T) {
	m, _ := startManager(t, 5)
	h := &recordingHandler{}
	m.SetMessageHandler(h)

	c := register(t, m, "c1", "user-1", "laptop")

	m.handleMessage <- &ClientMessage{Client: c, Message: []byte(`not json`)}
	m.handleMessage <- &ClientMessage{Client: c, Message: []byte(`{"type":"ping"}`)}

	require.Eventually(t, func() bool { return len(h.types()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []MessageType{TypePing}, h.types())
}
