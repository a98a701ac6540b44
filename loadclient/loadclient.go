// Package loadclient implements a synthetic WebSocket client used by the
// --simulate CLI mode and by integration tests to drive the server end to
// end without a real microphone or whisper binary. Grounded on
// bosley-libas/client/client.go's Launch connection-lifecycle shape
// (context cancellation, a connection-closed monitor goroutine, structured
// slog logging throughout) rewritten against gorilla/websocket and the
// streaming recognition wire contract (spec.md §6) instead of raw TLS/TCP
// and portaudio capture.
package loadclient

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Config describes one simulated client's talk pattern.
type Config struct {
	URL             string
	SampleRate      int
	ChunkDuration   time.Duration
	ToneHz          float64
	TotalDuration   time.Duration
	UseBinaryFrames bool
}

// Message is a decoded server-to-client transcript event: a text_result
// envelope whose Data carries the "L:"/"T:" live-or-commit prefix (spec.md
// §4.7, §6).
type Message struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// IsLive reports whether this message is a live partial.
func (m Message) IsLive() bool { return strings.HasPrefix(m.Data, "L:") }

// IsCommit reports whether this message is a stable commit.
func (m Message) IsCommit() bool { return strings.HasPrefix(m.Data, "T:") }

// Text strips the "L:"/"T:" prefix, returning the transcript text itself.
func (m Message) Text() string {
	if m.IsLive() || m.IsCommit() {
		return m.Data[2:]
	}
	return m.Data
}

// Result summarizes what one simulated session observed.
type Result struct {
	LiveCount   int
	CommitCount int
	Transcript  []Message
	Err         error
}

// Run connects to cfg.URL, streams a synthesized tone as audio_data frames
// until cfg.TotalDuration elapses or ctx is cancelled, and collects every
// message the server sends back. It never panics on a connection drop; the
// result's Err field reports the terminal condition instead, mirroring the
// teacher's "per-connection errors are never fatal to the caller" posture.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = 200 * time.Millisecond
	}
	if cfg.ToneHz <= 0 {
		cfg.ToneHz = 220
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("dial %s: %w", cfg.URL, err)}
	}
	defer conn.Close()

	closed := make(chan struct{})
	result := Result{}

	go func() {
		defer close(closed)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				slog.Debug("loadclient: ignoring unparseable message", "error", err)
				continue
			}
			result.Transcript = append(result.Transcript, msg)
			switch {
			case msg.IsLive():
				result.LiveCount++
			case msg.IsCommit():
				result.CommitCount++
			}
		}
	}()

	samplesPerChunk := int(float64(cfg.SampleRate) * cfg.ChunkDuration.Seconds())
	ticker := time.NewTicker(cfg.ChunkDuration)
	defer ticker.Stop()

	deadline := time.Now().Add(cfg.TotalDuration)
	phase := 0.0
	phaseStep := 2 * math.Pi * cfg.ToneHz / float64(cfg.SampleRate)

	for {
		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			return result
		case <-closed:
			result.Err = fmt.Errorf("server closed connection")
			return result
		case <-ticker.C:
			if !time.Now().Before(deadline) {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				<-closed
				return result
			}
			samples := make([]float32, samplesPerChunk)
			for i := range samples {
				samples[i] = float32(0.2 * math.Sin(phase))
				phase += phaseStep
				if i%37 == 0 {
					samples[i] += float32(0.01 * (rand.Float64() - 0.5))
				}
			}
			if err := sendChunk(conn, samples, cfg.UseBinaryFrames); err != nil {
				result.Err = err
				return result
			}
		}
	}
}

func sendChunk(conn *websocket.Conn, samples []float32, binaryFrame bool) error {
	if binaryFrame {
		payload := make([]byte, len(samples)*4)
		for i, v := range samples {
			binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
		}
		return conn.WriteMessage(websocket.BinaryMessage, payload)
	}

	envelope := struct {
		Type string    `json:"type"`
		Data []float32 `json:"data"`
	}{Type: "audio_data", Data: samples}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// RunMany launches n simulated clients concurrently against url and waits
// for them all to finish, for the --simulate N CLI surface (spec.md's CLI
// additions).
func RunMany(ctx context.Context, url string, n int, totalDuration time.Duration) []Result {
	results := make([]Result, n)
	done := make(chan int, n)

	for i := 0; i < n; i++ {
		go func(idx int) {
			results[idx] = Run(ctx, Config{URL: url, TotalDuration: totalDuration})
			done <- idx
		}(i)
	}

	for i := 0; i < n; i++ {
		<-done
	}
	return results
}
