// Package wsproto implements the Frame Codec component (spec.md §4.1) as a
// thin wrapper over gorilla/websocket, per the Design Notes mandate to use
// an existing WebSocket library rather than a hand-rolled RFC 6455
// implementation: gorilla/websocket already does the Sec-WebSocket-Accept
// handshake, masking, and extended-length frame parsing. This package just
// gives the rest of the system a narrow, decode-pipeline-shaped surface over
// *websocket.Conn so callers never reach for the library's lower-level
// frame API directly.
package wsproto

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// WriteWait bounds how long a single frame write may block.
	WriteWait = 10 * time.Second

	// PongWait is how long the connection tolerates silence from the peer
	// before its read deadline expires.
	PongWait = 60 * time.Second

	// PingPeriod is a ping interval that stays comfortably under PongWait.
	// Nothing in this package sends pings on it.
	PingPeriod = (PongWait * 9) / 10

	// maxControlPayload bounds PING/PONG/CLOSE payloads, matching RFC 6455's
	// own 125-byte control frame limit.
	maxControlPayload = 125
)

// Upgrader is the shared gorilla/websocket upgrader. CheckOrigin is
// permissive: origin/auth policy is a reverse-proxy concern (spec.md §1).
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame is a decoded WebSocket message handed up from Conn.ReadFrame: either a
// text payload (JSON envelope) or a binary payload (packed float32 PCM,
// §6 "Binary inbound").
type Frame struct {
	Binary  bool
	Payload []byte
}

// Conn wraps a *websocket.Conn with read/write helpers bounded by the
// deadlines above and with MAX_FRAME_BYTES enforcement (spec.md §4.1).
type Conn struct {
	ws            *websocket.Conn
	maxFrameBytes int64
}

// New wraps an already-upgraded gorilla connection. maxFrameBytes bounds the
// next incoming frame; 0 disables the limit on the gorilla side (the caller
// should supply Config.Tuning.MaxFrameBytes).
func New(ws *websocket.Conn, maxFrameBytes int64) *Conn {
	c := &Conn{ws: ws, maxFrameBytes: maxFrameBytes}
	if maxFrameBytes > 0 {
		ws.SetReadLimit(maxFrameBytes)
	}
	ws.SetReadDeadline(time.Now().Add(PongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})
	return c
}

// ReadFrame blocks for the next data or control frame. Control frames
// (PING/CLOSE) are answered inline by gorilla's handler machinery before
// ReadMessage ever returns them to us; only TEXT/BINARY reach the caller, or
// an error once the peer closes or a protocol violation occurs.
func (c *Conn) ReadFrame() (Frame, error) {
	messageType, payload, err := c.ws.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	c.ws.SetReadDeadline(time.Now().Add(PongWait))
	return Frame{Binary: messageType == websocket.BinaryMessage, Payload: payload}, nil
}

// WriteText sends a TEXT frame, per spec.md §4.1 "server→client is never
// masked" (gorilla never masks outbound server frames).
func (c *Conn) WriteText(payload []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(WriteWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// WritePong answers a PING with an identical-payload PONG (spec.md §4.1).
func (c *Conn) WritePong(payload []byte) error {
	if len(payload) > maxControlPayload {
		payload = payload[:maxControlPayload]
	}
	c.ws.SetWriteDeadline(time.Now().Add(WriteWait))
	return c.ws.WriteMessage(websocket.PongMessage, payload)
}

// WriteClose sends a CLOSE frame with the given close code and reason, then
// the caller is expected to tear the socket down.
func (c *Conn) WriteClose(code int, reason string) error {
	c.ws.SetWriteDeadline(time.Now().Add(WriteWait))
	msg := websocket.FormatCloseMessage(code, reason)
	return c.ws.WriteMessage(websocket.CloseMessage, msg)
}

// Close closes the underlying socket without a CLOSE handshake, for the
// abrupt-failure path.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// Underlying exposes the wrapped *websocket.Conn for callers (e.g. ping
// loops) that need gorilla's lower-level API directly.
func (c *Conn) Underlying() *websocket.Conn {
	return c.ws
}
