package decode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

// ExecConfig configures the Exec adapter: the whisper-cli-style binary and
// the model it should load, grounded on internal/stt/exec_recognizer.go's
// command-template shape.
type ExecConfig struct {
	// Command is the base command line, parsed with shellwords so it can
	// carry extra flags (e.g. "whisper-cli --no-gpu"). The first token is
	// the executable.
	Command string

	// ModelPath is passed to the binary as --model.
	ModelPath string

	// Language is fixed to "zh" for this deployment (spec.md §6) but stays
	// configurable so tests can exercise other values.
	Language string
}

type execOutput struct {
	Segments []execSegment `json:"segments"`
}

type execSegment struct {
	Text   string      `json:"text"`
	Tokens []execToken `json:"tokens"`
}

type execToken struct {
	Text    string  `json:"text"`
	BeginMS float32 `json:"t_begin_ms"`
	EndMS   float32 `json:"t_end_ms"`
}

// Exec shells out to a whisper-cli-style binary per snapshot, grounded on
// internal/stt/exec_recognizer.go and scribe/worker.go's exec pattern: it
// serializes the float32 snapshot to a temp WAV file, invokes the
// configured command with --output-json, and parses the result back into
// Segment/Token. A mutex serializes invocations because the underlying
// binary is typically not safe for concurrent use against the same model
// handle (spec.md §5 "if not [thread-safe], wrapped in a single-flight
// mutex").
type Exec struct {
	cmd []string
	cfg ExecConfig
	mu  sync.Mutex
}

// NewExec parses cfg.Command and returns an Exec adapter.
func NewExec(cfg ExecConfig) (*Exec, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse decoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("decoder command is empty")
	}
	return &Exec{cmd: args, cfg: cfg}, nil
}

// Decode writes the snapshot to a temp 16-bit WAV file and invokes the
// configured binary, blocking the calling worker for the duration of
// inference (spec.md §5).
func (e *Exec) Decode(ctx context.Context, snapshot []float32, sampleRate int) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.CreateTemp("", "autotalk_snapshot_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp snapshot file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writeSnapshotWav(file, snapshot, sampleRate); err != nil {
		return Result{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", file.Name(), "--output-json")
	if e.cfg.ModelPath != "" {
		args = append(args, "--model", e.cfg.ModelPath)
	}
	language := e.cfg.Language
	if language == "" {
		language = "zh"
	}
	args = append(args, "--language", language, "--no-translate", "--greedy")

	command := exec.CommandContext(ctx, base, args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("decoder command failed: %w: %s", err, stderr.String())
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Result{}, fmt.Errorf("decode decoder output: %w", err)
	}

	result := Result{Segments: make([]Segment, 0, len(out.Segments))}
	for _, seg := range out.Segments {
		tokens := make([]Token, 0, len(seg.Tokens))
		for _, t := range seg.Tokens {
			tokens = append(tokens, Token{Text: t.Text, BeginMS: t.BeginMS, EndMS: t.EndMS})
		}
		result.Segments = append(result.Segments, Segment{Text: seg.Text, Tokens: tokens})
	}
	return result, nil
}

// writeSnapshotWav encodes a mono float32 PCM snapshot as a 16-bit WAV file
// via go-audio/wav, the ecosystem library loqalabs-loqa-core uses in place
// of the teacher's hand-rolled WAV header struct (audio/wav.go).
func writeSnapshotWav(file *os.File, snapshot []float32, sampleRate int) error {
	samples := make([]int, len(snapshot))
	for i, s := range snapshot {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		samples[i] = int(s * 32767)
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   samples,
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
