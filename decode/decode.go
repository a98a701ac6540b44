// Package decode defines the Decoder Adapter contract (spec.md §6) and the
// two concrete implementations a complete repo needs to be runnable
// end-to-end: a deterministic Mock for tests and an Exec adapter that shells
// out to a whisper-cli-style binary.
package decode

import "context"

// Token is a single decoded token with its timestamps relative to sample
// index 0 of the snapshot that produced it, in milliseconds.
type Token struct {
	Text     string
	BeginMS  float32
	EndMS    float32
}

// Segment is one decoded segment: its full text plus the tokens it was
// built from.
type Segment struct {
	Text   string
	Tokens []Token
}

// Result is the Decoder Adapter's output for one snapshot.
type Result struct {
	Segments []Segment
}

// Adapter is the contract every acoustic decoder backend satisfies. The
// core treats decoders as non-cancellable (spec.md §5): ctx bounds how long
// the caller will wait, not whether the backend can be interrupted mid-run.
type Adapter interface {
	Decode(ctx context.Context, snapshot []float32, sampleRate int) (Result, error)
}
