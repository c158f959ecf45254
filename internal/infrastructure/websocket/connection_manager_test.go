package websocket

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"auction-marketplace/pkg/logger"
)

type fakeConn struct {
	id      string
	channel string
	full    bool

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeConn) ID() string      { return f.id }
func (f *fakeConn) Channel() string { return f.channel }

func (f *fakeConn) Send(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.sent = append(f.sent, payload)
	return true
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestConnectionManager_DeliverScopedToChannel(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	a := &fakeConn{id: "a", channel: "product:1"}
	b := &fakeConn{id: "b", channel: "product:1"}
	c := &fakeConn{id: "c", channel: "product:2"}
	cm.RegisterConnection(a)
	cm.RegisterConnection(b)
	cm.RegisterConnection(c)

	n := cm.Deliver("product:1", []byte(`{"type":"bid"}`))
	require.Equal(t, 2, n)
	require.Len(t, a.sent, 1)
	require.Len(t, b.sent, 1)
	require.Empty(t, c.sent)

	cm.UnregisterConnection(a)
	require.Equal(t, 1, cm.Deliver("product:1", []byte(`{}`)))
	require.Equal(t, 0, cm.Deliver("user:9", []byte(`{}`)))
}

func TestConnectionManager_SlowSubscriberMissesMessage(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	slow := &fakeConn{id: "slow", channel: "global", full: true}
	ok := &fakeConn{id: "ok", channel: "global"}
	cm.RegisterConnection(slow)
	cm.RegisterConnection(ok)

	require.Equal(t, 1, cm.Deliver("global", []byte(`{}`)))
	require.Empty(t, slow.sent)
	require.False(t, slow.closed)
	require.Len(t, ok.sent, 1)
	require.Len(t, cm.GetConnectionsForChannel("global"), 2)
}

func TestConnectionManager_CloseAll(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	a := &fakeConn{id: "a", channel: "product:1"}
	b := &fakeConn{id: "b", channel: "user:2"}
	cm.RegisterConnection(a)
	cm.RegisterConnection(b)
	require.Equal(t, 2, cm.Count())

	cm.CloseAll()
	require.True(t, a.closed)
	require.True(t, b.closed)
	require.Zero(t, cm.Count())
}

func TestWebSocketNotifier_RelayRejectsNonEvents(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	conn := &fakeConn{id: "a", channel: "user:2"}
	cm.RegisterConnection(conn)
	n := NewWebSocketNotifier(cm)

	require.Error(t, n.Relay("user:2", []byte(`not json`)))
	require.Error(t, n.Relay("user:2", []byte(`{"amount":1}`)))
	require.NoError(t, n.Relay("user:2", []byte(`{"type":"void_request","timestamp":1}`)))
	require.Len(t, conn.sent, 1)
}
