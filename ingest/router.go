// Package ingest implements the Ingest Router (spec.md §4.4): it decodes
// the inbound message envelope and routes audio payloads to the owning
// session's buffer, grounded on original_source/src/audio_server.cpp's
// handleIncomingMessage dual "JSON array or binary blob" path (spec.md §9).
package ingest

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"unicode/utf8"

	"github.com/Ireoo/autotalk.core/dispatch"
	"github.com/Ireoo/autotalk.core/postproc"
	"github.com/Ireoo/autotalk.core/session"
	"github.com/Ireoo/autotalk.core/wsproto"
)

// inbound mirrors the wire envelope from spec.md §6. Data is only populated
// for type=="audio_data"; other types never carry it.
type inbound struct {
	Type string    `json:"type"`
	Data []float32 `json:"data"`
}

type errorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ack struct {
	Type string `json:"type"`
}

// Router parses inbound frames and appends audio to the right session.
type Router struct {
	dispatcher       *dispatch.Dispatcher
	maxBufferSamples func() int
}

// New returns a Router. maxBufferSamples is read on every append so the
// config hot-reload path (config.Watcher) can change it without
// restarting the server.
func New(dispatcher *dispatch.Dispatcher, maxBufferSamples func() int) *Router {
	return &Router{dispatcher: dispatcher, maxBufferSamples: maxBufferSamples}
}

// HandleFrame routes one parsed WebSocket frame for s. It never returns an
// error that should close the session — protocol-level mistakes (bad JSON,
// bad UTF-8, unknown type) get an error_response reply instead, per
// spec.md §4.4 "do NOT close the session".
func (r *Router) HandleFrame(s *session.Session, conn *wsproto.Conn, frame wsproto.Frame) {
	if frame.Binary {
		r.handleBinaryAudio(s, conn, frame.Payload)
		return
	}
	r.handleTextFrame(s, conn, frame.Payload)
}

func (r *Router) handleBinaryAudio(s *session.Session, conn *wsproto.Conn, payload []byte) {
	if len(payload)%4 != 0 {
		r.replyError(conn, "binary audio payload length must be a multiple of 4")
		return
	}
	samples := make([]float32, len(payload)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(payload[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}
	r.appendAudio(s, conn, samples)
}

func (r *Router) handleTextFrame(s *session.Session, conn *wsproto.Conn, payload []byte) {
	if !utf8.Valid(payload) {
		r.replyError(conn, "invalid utf-8")
		return
	}

	var msg inbound
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.replyError(conn, "invalid json")
		return
	}

	switch msg.Type {
	case "audio_data":
		r.appendAudio(s, conn, msg.Data)
	case "ping":
		r.replyAck(conn)
	default:
		r.replyError(conn, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (r *Router) appendAudio(s *session.Session, conn *wsproto.Conn, samples []float32) {
	overflowText := s.Append(samples, r.maxBufferSamples())
	if overflowText == "" {
		return
	}

	commitText := postproc.RewriteFlush(overflowText)
	r.dispatcher.EmitCommit(s, conn, commitText)
	s.SetLastCommitText(commitText)
	slog.Debug("overflow flush", "sessionID", s.ID)
}

func (r *Router) replyAck(conn *wsproto.Conn) {
	payload, err := json.Marshal(ack{Type: "pong"})
	if err != nil {
		return
	}
	_ = conn.WriteText(payload)
}

func (r *Router) replyError(conn *wsproto.Conn, reason string) {
	payload, err := json.Marshal(errorResponse{Type: "error_response", Message: reason})
	if err != nil {
		return
	}
	_ = conn.WriteText(payload)
}
