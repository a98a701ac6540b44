package decode

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a deterministic in-memory Adapter for tests and local smoke runs,
// grounded on internal/stt/mock_recognizer.go's style: no model is loaded,
// no subprocess is spawned, and the reported text simply names what it was
// given.
type Mock struct{}

// NewMock returns the default Mock adapter.
func NewMock() *Mock { return &Mock{} }

// Decode synthesizes a single no-terminator segment describing the
// snapshot it received. It never fails.
func (m *Mock) Decode(_ context.Context, snapshot []float32, sampleRate int) (Result, error) {
	text := fmt.Sprintf("[mock transcript samples=%d rate=%d]", len(snapshot), sampleRate)
	endMS := float32(len(snapshot)) / float32(sampleRate) * 1000
	return Result{
		Segments: []Segment{
			{
				Text: text,
				Tokens: []Token{
					{Text: text, BeginMS: 0, EndMS: endMS},
				},
			},
		},
	}, nil
}

// Scripted is a Mock variant that returns a pre-programmed sequence of
// Results, one per call, repeating the final entry once exhausted. It is
// the harness scenario tests (S1-S6) drive directly: each step names the
// exact DecodeResult the Token Post-Processor should see.
type Scripted struct {
	mu      sync.Mutex
	results []Result
	calls   int
}

// NewScripted returns an Adapter that replays results in order.
func NewScripted(results ...Result) *Scripted {
	return &Scripted{results: results}
}

// Decode returns the next scripted Result, ignoring the snapshot and
// sampleRate entirely. Once the script is exhausted it keeps returning the
// last entry, matching "decoder keeps returning no-terminator output" style
// scenarios (S3).
func (s *Scripted) Decode(_ context.Context, _ []float32, _ int) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.results) == 0 {
		return Result{}, nil
	}
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	return s.results[idx], nil
}

// Calls reports how many times Decode has been invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
