// Package dispatch implements the Result Dispatcher (spec.md §4.7): it
// formats and sends the outbound "L:"/"T:" envelopes and transitions a
// session to Closing on write failure, grounded on
// bosley-libas/scribe/http.go's writePump send path.
package dispatch

import (
	"encoding/json"
	"log/slog"

	"github.com/Ireoo/autotalk.core/session"
	"github.com/Ireoo/autotalk.core/wsproto"
)

// envelope is the outbound wire message (spec.md §6): {"type":"text_result",
// "data":"L:..."} or {"type":"text_result","data":"T:..."}.
type envelope struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Dispatcher sends formatted results to their originating session's socket.
type Dispatcher struct{}

// New returns a Dispatcher. It carries no state: every call is addressed to
// a specific session's own wsproto.Conn.
func New() *Dispatcher {
	return &Dispatcher{}
}

// EmitLive sends a live partial, prefixed "L:" inside the data field per
// the existing-client wire contract (spec.md §4.7).
func (d *Dispatcher) EmitLive(s *session.Session, conn *wsproto.Conn, text string) {
	d.send(s, conn, "L:"+text)
}

// EmitCommit sends a stable commit, prefixed "T:".
func (d *Dispatcher) EmitCommit(s *session.Session, conn *wsproto.Conn, text string) {
	d.send(s, conn, "T:"+text)
}

func (d *Dispatcher) send(s *session.Session, conn *wsproto.Conn, data string) {
	payload, err := json.Marshal(envelope{Type: "text_result", Data: data})
	if err != nil {
		slog.Error("failed to marshal text_result envelope", "error", err, "sessionID", s.ID)
		return
	}
	if err := conn.WriteText(payload); err != nil {
		slog.Warn("write failed, closing session", "error", err, "sessionID", s.ID)
		s.SetState(session.Closing)
		return
	}
}
