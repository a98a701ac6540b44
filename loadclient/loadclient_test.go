package loadclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageClassification(t *testing.T) {
	live := Message{Type: "text_result", Data: "L:hello"}
	commit := Message{Type: "text_result", Data: "T:hello."}
	other := Message{Type: "error_response", Data: "bad request"}

	assert.True(t, live.IsLive())
	assert.False(t, live.IsCommit())
	assert.Equal(t, "hello", live.Text())

	assert.True(t, commit.IsCommit())
	assert.Equal(t, "hello.", commit.Text())

	assert.False(t, other.IsLive())
	assert.False(t, other.IsCommit())
	assert.Equal(t, "bad request", other.Text())
}

// fakeServer upgrades one connection, answers the first frame it receives
// with one live partial followed by one commit and then closes, exercising
// Run's send loop and read loop together without a real decoder.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, _, err = conn.ReadMessage()
		if err != nil {
			return
		}

		live, _ := json.Marshal(map[string]string{"type": "text_result", "data": "L:partial"})
		_ = conn.WriteMessage(websocket.TextMessage, live)
		commit, _ := json.Marshal(map[string]string{"type": "text_result", "data": "T:final."})
		_ = conn.WriteMessage(websocket.TextMessage, commit)
	}))
}

func TestRunCollectsLiveAndCommitMessages(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	url := "ws" + srv.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result := Run(ctx, Config{
		URL:           url,
		TotalDuration: 100 * time.Millisecond,
		ChunkDuration: 20 * time.Millisecond,
	})

	assert.Equal(t, 1, result.LiveCount)
	assert.Equal(t, 1, result.CommitCount)
}

func TestRunReportsDialErrorForUnreachableServer(t *testing.T) {
	result := Run(context.Background(), Config{URL: "ws://127.0.0.1:1/"})
	assert.Error(t, result.Err)
}
