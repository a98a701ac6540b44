// Package postproc implements the Token Post-Processor (spec.md §4.6): it
// turns one DecodeResult into at most one live partial and at most one
// commit, running the sentence-boundary scan, punctuation normalization,
// and dedup logic derived from original_source/src/main.cpp's
// processSpeechRecognition.
package postproc

import (
	"regexp"
	"strings"

	"github.com/Ireoo/autotalk.core/decode"
)

var (
	leadingComma  = regexp.MustCompile(`^[,，]+`)
	trailingIdeo  = regexp.MustCompile(`。+$`)
	trailingEllip = regexp.MustCompile(`\.\.\.$`)
)

// terminators are the token texts that end a sentence outright (spec.md
// Glossary "Terminator").
var terminators = map[string]bool{
	".": true, "!": true, "?": true,
	"。": true, "！": true, "？": true,
}

// Outcome is what Process decided to emit for one DecodeResult. At most one
// of HasLive/HasCommit fires live text, and HasCommit implies the caller
// must also truncate the session buffer by DropSamples and clear its live
// memo — Process itself never touches session state; the scheduler does,
// in its decodeAndDispatch step.
type Outcome struct {
	HasLive bool
	Live    string

	// CommitFired is true whenever the sentence-boundary guard passed, even
	// if Commit was deduped against lastCommit — the buffer truncation and
	// last-live-text clear still happen either way (spec.md §4.6 step 3).
	CommitFired bool
	HasCommit   bool
	Commit      string
	DropSamples int
}

// Tuning is the subset of config.TuningConfig Process needs, kept as its
// own small struct so this package never imports config directly (it is
// exercised heavily by tests that only care about these two numbers).
type Tuning struct {
	SampleRate          int
	TerminatorLookahead int
}

// Process runs the sentence-boundary scan against result and the session's
// current live/commit memo, and reports what should be emitted. lastLive
// and lastCommit are the session's memoized values; the caller (scheduler)
// is responsible for writing Outcome's results back via Apply-style
// session setters plus the Result Dispatcher.
func Process(result decode.Result, lastLive, lastCommit string, tuning Tuning) Outcome {
	endTokenIndex, segmentIndex, endMS, found := findTerminator(result)

	if found && commitGuardPasses(result, segmentIndex, endTokenIndex, tuning.TerminatorLookahead) {
		commitText := composeCommitText(result.Segments[segmentIndex], endTokenIndex)
		out := Outcome{
			CommitFired: true,
			DropSamples: int(endMS / 1000 * float32(tuning.SampleRate)),
		}
		if commitText != lastCommit {
			out.HasCommit = true
			out.Commit = commitText
		}
		return out
	}

	liveText := composeLiveText(result)
	if liveText == "" || liveText == "." {
		return Outcome{}
	}
	if liveText == lastLive {
		return Outcome{}
	}
	return Outcome{HasLive: true, Live: liveText}
}

// findTerminator scans every segment's tokens in order and returns the
// first terminator found anywhere in the result: its token index within
// its segment, which segment it was found in, and its t_end_ms.
func findTerminator(result decode.Result) (tokenIndex, segmentIndex int, endMS float32, found bool) {
	for si, seg := range result.Segments {
		tail := ""
		for ti, tok := range seg.Tokens {
			tail += tok.Text
			if len(tail) > 3 {
				tail = tail[len(tail)-3:]
			}
			if terminators[tok.Text] || strings.HasSuffix(tail, "。") || strings.HasSuffix(tail, "？") {
				return ti, si, tok.EndMS, true
			}
		}
	}
	return 0, 0, 0, false
}

// commitGuardPasses implements the two guards spec.md §4.6 requires beyond
// "a terminator was found": it isn't in the first 3 tokens of its segment,
// and there's either enough decoded lookahead after it or nothing left to
// decode. lookahead is the tunable derived from original_source's
// `j < n_tokens - 10` (Open Questions, SPEC_FULL.md §4).
func commitGuardPasses(result decode.Result, segmentIndex, tokenIndex int, lookahead int) bool {
	if tokenIndex < 3 {
		return false
	}
	isLastSegment := segmentIndex == len(result.Segments)-1
	if isLastSegment {
		return true
	}
	tokensAfter := 0
	for _, seg := range result.Segments[segmentIndex+1:] {
		tokensAfter += len(seg.Tokens)
	}
	return tokensAfter >= lookahead
}

// composeCommitText concatenates token texts up to and including
// endTokenIndex, then strips a leading comma run.
func composeCommitText(seg decode.Segment, endTokenIndex int) string {
	var b strings.Builder
	for i := 0; i <= endTokenIndex && i < len(seg.Tokens); i++ {
		b.WriteString(seg.Tokens[i].Text)
	}
	return leadingComma.ReplaceAllString(b.String(), "")
}

// composeLiveText concatenates every segment's full text, rewrites a
// trailing run of 。 to "...", and strips a leading comma.
func composeLiveText(result decode.Result) string {
	var b strings.Builder
	for _, seg := range result.Segments {
		b.WriteString(seg.Text)
	}
	text := trailingIdeo.ReplaceAllString(b.String(), "...")
	return leadingComma.ReplaceAllString(text, "")
}

// RewriteFlush converts a pending live partial into the commit text used by
// the overflow-flush and stall-flush paths (spec.md §4.6): the trailing
// "..." ellipsis a live partial normally carries is rewritten back to a
// terminal 。 so the flushed text reads as a finished sentence.
func RewriteFlush(liveText string) string {
	return trailingEllip.ReplaceAllString(liveText, "。")
}
