package wsproto

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (*Conn, *websocket.Conn, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConnCh := make(chan *Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- New(ws, 1<<20)
	}))

	wsURL := "ws" + srv.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	serverConn := <-serverConnCh
	cleanup := func() {
		clientConn.Close()
		serverConn.Close()
		srv.Close()
	}
	return serverConn, clientConn, cleanup
}

func TestReadFrameDistinguishesTextFromBinary(t *testing.T) {
	serverConn, clientConn, cleanup := newPair(t)
	defer cleanup()

	require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	frame, err := serverConn.ReadFrame()
	require.NoError(t, err)
	assert.False(t, frame.Binary)
	assert.Equal(t, `{"type":"ping"}`, string(frame.Payload))

	require.NoError(t, clientConn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}))
	frame, err = serverConn.ReadFrame()
	require.NoError(t, err)
	assert.True(t, frame.Binary)
	assert.Equal(t, []byte{1, 2, 3, 4}, frame.Payload)
}

func TestWriteTextDeliversPayloadToPeer(t *testing.T) {
	serverConn, clientConn, cleanup := newPair(t)
	defer cleanup()

	require.NoError(t, serverConn.WriteText([]byte("hello")))
	_, payload, err := clientConn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(payload))
}

func TestUpgraderCheckOriginAcceptsAnyOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	assert.True(t, Upgrader.CheckOrigin(req))
}
