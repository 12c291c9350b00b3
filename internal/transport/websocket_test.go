package transport

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type level struct {
	Frame int       `json:"frame"`
	Peaks []float32 `json:"peaks"`
}

func dial(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	u := url.URL{Scheme: "ws", Host: wst.Addr().String(), Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return wst.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestWebSocketBroadcast(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer wst.Close()

	conn := dial(t, wst)
	defer conn.Close()

	require.NoError(t, wst.Send(level{Frame: 3, Peaks: []float32{0.5, 0.25}}))

	var got level
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, level{Frame: 3, Peaks: []float32{0.5, 0.25}}, got)
}

func TestWebSocketCloseStopsGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)
	conn := dial(t, wst)
	defer conn.Close()

	require.NoError(t, wst.Close())
	assert.ErrorIs(t, wst.Send(level{}), ErrClosed)
	assert.NoError(t, wst.Close(), "second close is a no-op")
	assert.Zero(t, wst.Clients())
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer wst.Close()

	conn := dial(t, wst)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return wst.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketListenError(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	require.NoError(t, err)
	defer wst.Close()

	_, err = NewWebSocketTransport(wst.Addr().String())
	assert.ErrorContains(t, err, "failed to listen")
}

type failing struct{ closed bool }

func (f *failing) Send(any) error { return errors.New("unreachable") }
func (f *failing) Close() error   { f.closed = true; return nil }

func TestMulti(t *testing.T) {
	lt := NewLoggingTransport()
	f := &failing{}
	m := Multi{f, lt}

	err := m.Send(level{Frame: 1})
	assert.EqualError(t, err, "unreachable")
	assert.EqualValues(t, 1, lt.Sent(), "later transports still receive the message")

	require.NoError(t, m.Close())
	assert.True(t, f.closed)
}
