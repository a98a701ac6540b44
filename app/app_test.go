package app

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ireoo/autotalk.core/config"
	"github.com/Ireoo/autotalk.core/decode"
	"github.com/Ireoo/autotalk.core/loadclient"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// TestEndToEndStreamProducesLiveThenCommit drives the full wire: a
// simulated client streams synthesized audio over a real WebSocket
// connection into a server wired with a scripted decoder, and asserts the
// client eventually observes both a live partial and a terminal commit.
func TestEndToEndStreamProducesLiveThenCommit(t *testing.T) {
	cfg := config.Default()
	cfg.Port = freePort(t)
	cfg.MetricsAddr = ""
	cfg.Tuning.MinDecodeSeconds = 0
	cfg.Tuning.TickMillis = 5
	cfg.Tuning.StallTicks = 1000

	scripted := decode.NewScripted(
		decode.Result{Segments: []decode.Segment{{Text: "partial"}}},
		decode.Result{Segments: []decode.Segment{{
			Text: "this is a finished sentence.",
			Tokens: []decode.Token{
				{Text: "this", EndMS: 100}, {Text: " is", EndMS: 200}, {Text: " a", EndMS: 300},
				{Text: " finished", EndMS: 400}, {Text: " sentence", EndMS: 500}, {Text: ".", EndMS: 600},
			},
		}}},
	)

	a, err := New(cfg, "", WithAdapter(scripted))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	url := fmt.Sprintf("ws://127.0.0.1:%d/", cfg.Port)
	result := loadclient.Run(ctx, loadclient.Config{
		URL:           url,
		TotalDuration: 500 * time.Millisecond,
		ChunkDuration: 20 * time.Millisecond,
	})

	assert.GreaterOrEqual(t, result.LiveCount, 1)
	assert.GreaterOrEqual(t, result.CommitCount, 1)
}
