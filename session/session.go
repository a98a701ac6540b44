// Package session implements the Client Session component: per-client
// identity, rolling audio buffer, live/commit memoization, and the registry
// that the Connection Manager, Ingest Router, and Recognition Scheduler all
// share a view of.
package session

import (
	"sync"
	"time"

	"github.com/Ireoo/autotalk.core/wsproto"
)

// State is the lifecycle state of a ClientSession.
type State int

const (
	Open State = iota
	Closing
	Closed
)

// Session is one connected client: its socket, its rolling audio buffer,
// and the text memoization the Token Post-Processor needs to dedupe
// emissions. All mutation of buffer/text fields goes through the session's
// own lock; the decoder only ever sees snapshots copied out under that
// lock.
type Session struct {
	ID string

	mu             sync.Mutex
	conn           *wsproto.Conn
	state          State
	buffer         []float32
	lastLiveText   string
	lastCommitText string
	idleTicks      int
	cursorLen      int
	inflight       bool
	createdAt      time.Time
	closedAt       time.Time
}

// New wraps a freshly upgraded WebSocket connection in a Session.
func New(id string, conn *wsproto.Conn) *Session {
	return &Session{
		ID:        id,
		conn:      conn,
		state:     Open,
		createdAt: time.Now(),
	}
}

// CreatedAt reports when the session was accepted.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// ClosedAt reports when the session transitioned to Closed, the zero time
// if it hasn't yet.
func (s *Session) ClosedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedAt
}

// Conn returns the underlying socket for use by the Result Dispatcher and
// Ingest Router. It never changes for the lifetime of the session.
func (s *Session) Conn() *wsproto.Conn {
	return s.conn
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session's lifecycle state.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if state == Closed && s.closedAt.IsZero() {
		s.closedAt = time.Now()
	}
}

// Append adds samples to the rolling buffer, then clears the whole buffer
// if it now exceeds maxSamples. Returns the text that must be
// flushed as a synthetic commit under the overflow rule (§4.6), or "" if no
// flush is needed.
func (s *Session) Append(samples []float32, maxSamples int) (overflowText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, samples...)
	s.idleTicks = 0

	if len(s.buffer) <= maxSamples {
		return ""
	}

	if s.lastLiveText != "" {
		overflowText = s.lastLiveText
		s.lastLiveText = ""
	}
	s.buffer = nil
	return overflowText
}

// Snapshot returns an owned copy of the current buffer, for handing to the
// decoder. The lock is held only for the copy itself.
func (s *Session) Snapshot() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float32, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// BufferLen returns the current buffer length under the lock, for the
// Scheduler's readiness check.
func (s *Session) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// TruncatePrefix drops the first n samples, clamped to the buffer length.
func (s *Session) TruncatePrefix(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.buffer) {
		s.buffer = nil
		return
	}
	if n <= 0 {
		return
	}
	s.buffer = append([]float32(nil), s.buffer[n:]...)
}

// Clear wipes the buffer entirely.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = nil
}

// CheckIdle compares the buffer's current length against the cursor left by
// the previous scheduler pass. If unchanged, idleTicks is incremented and
// returned; otherwise the cursor is advanced and idleTicks reset to 0.
func (s *Session) CheckIdle() (idleTicks int, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) == s.cursorLen {
		s.idleTicks++
		return s.idleTicks, false
	}
	s.cursorLen = len(s.buffer)
	s.idleTicks = 0
	return 0, true
}

// ResetIdle zeroes the idle-tick counter, e.g. after a stall-flush fires.
func (s *Session) ResetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleTicks = 0
}

// TryAcquireDecode sets the in-flight guard if not already set, enforcing
// invariant 2 (at most one decode per session). Returns false if a decode
// is already running.
func (s *Session) TryAcquireDecode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return false
	}
	s.inflight = true
	return true
}

// ReleaseDecode clears the in-flight guard.
func (s *Session) ReleaseDecode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false
}

// Inflight reports whether a decode is currently running for this session.
func (s *Session) Inflight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// LastLiveText returns the last live partial sent to this client.
func (s *Session) LastLiveText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLiveText
}

// SetLastLiveText records the live partial most recently sent.
func (s *Session) SetLastLiveText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLiveText = text
}

// LastCommitText returns the last commit sent to this client.
func (s *Session) LastCommitText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommitText
}

// SetLastCommitText records the commit most recently sent.
func (s *Session) SetLastCommitText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCommitText = text
}
