package dispatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ireoo/autotalk.core/session"
	"github.com/Ireoo/autotalk.core/wsproto"
)

func dialPair(t *testing.T) (*wsproto.Conn, *websocket.Conn, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConnCh := make(chan *wsproto.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- wsproto.New(ws, 0)
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

func TestEmitLivePrefixesWithL(t *testing.T) {
	serverConn, clientConn, cleanup := dialPair(t)
	defer cleanup()

	d := New()
	s := session.New("s1", serverConn)
	d.EmitLive(s, serverConn, "hello")

	_, payload, err := clientConn.ReadMessage()
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, "text_result", env.Type)
	assert.Equal(t, "L:hello", env.Data)
}

func TestEmitCommitPrefixesWithT(t *testing.T) {
	serverConn, clientConn, cleanup := dialPair(t)
	defer cleanup()

	d := New()
	s := session.New("s1", serverConn)
	d.EmitCommit(s, serverConn, "done.")

	_, payload, err := clientConn.ReadMessage()
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, "T:done.", env.Data)
}

func TestSendFailureTransitionsSessionToClosing(t *testing.T) {
	serverConn, clientConn, cleanup := dialPair(t)
	defer cleanup()
	clientConn.Close()

	d := New()
	s := session.New("s1", serverConn)
	serverConn.Close()

	d.EmitLive(s, serverConn, "hello")

	assert.Equal(t, session.Closing, s.State())
}
