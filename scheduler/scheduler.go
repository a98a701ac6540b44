// Package scheduler implements the Recognition Scheduler (spec.md §4.5): a
// cooperative tick loop that decides which session to decode next, bounds
// decode concurrency to a worker pool, and forwards results to the Token
// Post-Processor and Result Dispatcher. Grounded on
// bosley-libas/scribe/scribe.go + worker.go for the worker-pool shape and
// loqalabs-loqa-core/internal/stt/service.go's scheduleTranscription /
// sessionState.Inflight for the per-session single-flight guard.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Ireoo/autotalk.core/decode"
	"github.com/Ireoo/autotalk.core/dispatch"
	"github.com/Ireoo/autotalk.core/postproc"
	"github.com/Ireoo/autotalk.core/session"
)

// Tuning is the live, hot-reloadable subset of config.TuningConfig the
// scheduler reads every tick.
type Tuning struct {
	SampleRate          int
	MinDecodeSamples    int
	StallTicks          int
	TickInterval        time.Duration
	TerminatorLookahead int
}

type task struct {
	s        *session.Session
	snapshot []float32
}

// Scheduler owns the tick loop and the bounded worker pool.
type Scheduler struct {
	registry   *session.Registry
	adapter    decode.Adapter
	dispatcher *dispatch.Dispatcher
	tuning     func() Tuning
	workers    int
	queue      chan task

	activeDecodes atomic.Int64
}

// New builds a Scheduler. tuning is called once per tick so config
// hot-reload (config.Watcher) takes effect without restarting the loop.
func New(registry *session.Registry, adapter decode.Adapter, dispatcher *dispatch.Dispatcher, workers int, tuning func() Tuning) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		registry:   registry,
		adapter:    adapter,
		dispatcher: dispatcher,
		tuning:     tuning,
		workers:    workers,
		queue:      make(chan task, workers),
	}
}

// Run starts the worker pool and the tick loop, blocking until ctx is
// cancelled.
func (sc *Scheduler) Run(ctx context.Context) {
	for i := 0; i < sc.workers; i++ {
		go sc.runWorker(ctx)
	}

	tuning := sc.tuning()
	ticker := time.NewTicker(tuning.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next := sc.tuning()
			sc.tick(next)
			if next.TickInterval > 0 && next.TickInterval != tuning.TickInterval {
				tuning = next
				ticker.Reset(tuning.TickInterval)
			}
		}
	}
}

// tick implements the per-tick algorithm of spec.md §4.5.
func (sc *Scheduler) tick(tuning Tuning) {
	for _, s := range sc.registry.Snapshot() {
		if s.State() != session.Open {
			continue
		}
		sc.tickSession(s, tuning)
	}
}

func (sc *Scheduler) tickSession(s *session.Session, tuning Tuning) {
	bufLen := s.BufferLen()
	if bufLen < tuning.MinDecodeSamples {
		return
	}

	idleTicks, changed := s.CheckIdle()
	if !changed {
		if idleTicks > tuning.StallTicks && s.LastLiveText() != "" {
			sc.stallFlush(s)
			s.ResetIdle()
		}
		return
	}

	if !s.TryAcquireDecode() {
		// Already queued or in-flight this tick; next pass will pick it up
		// once the worker releases the guard (spec.md §4.5 "refuses
		// duplicates").
		return
	}

	snapshot := s.Snapshot()
	select {
	case sc.queue <- task{s: s, snapshot: snapshot}:
	default:
		// Queue is full: back-pressure. The buffer keeps growing and the
		// next tick will retry.
		s.ReleaseDecode()
	}
}

// stallFlush implements the stall-flush path of spec.md §4.6: identical
// synthesis to the overflow rule, but the audio buffer is left untouched.
func (sc *Scheduler) stallFlush(s *session.Session) {
	live := s.LastLiveText()
	commitText := postproc.RewriteFlush(live)
	conn := s.Conn()
	if conn == nil {
		return
	}
	sc.dispatcher.EmitCommit(s, conn, commitText)
	s.SetLastCommitText(commitText)
	s.SetLastLiveText("")
	slog.Debug("stall flush", "sessionID", s.ID)
}

func (sc *Scheduler) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-sc.queue:
			if !ok {
				return
			}
			sc.decodeAndDispatch(ctx, t)
		}
	}
}

// QueueDepth reports the number of decode tasks waiting on a free worker,
// sampled by the Telemetry Probe.
func (sc *Scheduler) QueueDepth() int64 {
	return int64(len(sc.queue))
}

// ActiveDecodes reports how many decodes are currently running across all
// workers, sampled by the Telemetry Probe.
func (sc *Scheduler) ActiveDecodes() int64 {
	return sc.activeDecodes.Load()
}

func (sc *Scheduler) decodeAndDispatch(ctx context.Context, t task) {
	defer t.s.ReleaseDecode()
	sc.activeDecodes.Add(1)
	defer sc.activeDecodes.Add(-1)

	tuning := sc.tuning()
	result, err := sc.adapter.Decode(ctx, t.snapshot, tuning.SampleRate)
	if err != nil {
		slog.Error("decode failed, skipping snapshot", "error", err, "sessionID", t.s.ID)
		return
	}

	outcome := postproc.Process(result, t.s.LastLiveText(), t.s.LastCommitText(), postproc.Tuning{
		SampleRate:          tuning.SampleRate,
		TerminatorLookahead: tuning.TerminatorLookahead,
	})

	if t.s.State() != session.Open {
		// Socket is gone; the result dispatcher has nothing to send to
		// (spec.md §5 "its result is discarded by the dispatcher").
		return
	}
	conn := t.s.Conn()
	if conn == nil {
		return
	}

	if outcome.HasLive {
		sc.dispatcher.EmitLive(t.s, conn, outcome.Live)
		t.s.SetLastLiveText(outcome.Live)
	}
	if outcome.HasCommit {
		sc.dispatcher.EmitCommit(t.s, conn, outcome.Commit)
		t.s.SetLastCommitText(outcome.Commit)
	}
	if outcome.CommitFired {
		t.s.TruncatePrefix(outcome.DropSamples)
		t.s.SetLastLiveText("")
	}
}
