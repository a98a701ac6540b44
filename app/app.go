// Package app wires config, the session registry, the Ingest Router, the
// Recognition Scheduler, the Connection Manager, and telemetry into one
// running process. Grounded on bosley-libas/main.go's construct-then-Launch
// shape, generalized from its single flat main function into an explicit
// root-context constructor so tests can build the same graph with a
// substitute decoder and run it on an ephemeral port.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Ireoo/autotalk.core/config"
	"github.com/Ireoo/autotalk.core/decode"
	"github.com/Ireoo/autotalk.core/dispatch"
	"github.com/Ireoo/autotalk.core/ingest"
	"github.com/Ireoo/autotalk.core/scheduler"
	"github.com/Ireoo/autotalk.core/server"
	"github.com/Ireoo/autotalk.core/session"
	"github.com/Ireoo/autotalk.core/telemetry"
)

// App holds every long-lived component the process needs to run and shut
// down cleanly.
type App struct {
	cfg       config.Config
	registry  *session.Registry
	router    *ingest.Router
	scheduler *scheduler.Scheduler
	server    *server.Server
	watcher   *config.Watcher

	metricsAddr   string
	metricsHTTP   *http.Server
	telemetryStop telemetry.Shutdown
}

// Option customizes the App graph, primarily so tests can swap in a
// decode.Adapter other than the one New would build from cfg.Whisper.
type Option func(*buildState)

type buildState struct {
	adapter decode.Adapter
}

// WithAdapter overrides the Decoder Adapter, e.g. with decode.Mock or
// decode.Scripted in tests instead of shelling out to a whisper binary.
func WithAdapter(adapter decode.Adapter) Option {
	return func(b *buildState) { b.adapter = adapter }
}

// New constructs the full component graph from cfg without starting any
// goroutines.
func New(cfg config.Config, configPath string, opts ...Option) (*App, error) {
	b := &buildState{}
	for _, opt := range opts {
		opt(b)
	}
	if b.adapter == nil {
		if cfg.Whisper.BinPath == "" {
			slog.Warn("no whisper.bin_path configured, using mock decoder")
			b.adapter = decode.NewMock()
		} else {
			exec, err := decode.NewExec(decode.ExecConfig{
				Command:   cfg.Whisper.BinPath,
				ModelPath: cfg.Whisper.ModelPath,
				Language:  cfg.Whisper.Language,
			})
			if err != nil {
				return nil, fmt.Errorf("build exec decoder: %w", err)
			}
			b.adapter = exec
		}
	}

	registry := session.NewRegistry()
	dispatcher := dispatch.New()

	var mu sync.RWMutex
	tuning := cfg.Tuning
	router := ingest.New(dispatcher, func() int {
		mu.RLock()
		defer mu.RUnlock()
		return tuning.MaxBufferSamples()
	})
	schedulerTuning := func() scheduler.Tuning {
		mu.RLock()
		defer mu.RUnlock()
		return scheduler.Tuning{
			SampleRate:          tuning.SampleRate,
			MinDecodeSamples:    tuning.MinDecodeSamples(),
			StallTicks:          tuning.StallTicks,
			TickInterval:        time.Duration(tuning.TickMillis) * time.Millisecond,
			TerminatorLookahead: tuning.TerminatorLookahead,
		}
	}

	sched := scheduler.New(registry, b.adapter, dispatcher, cfg.Whisper.Workers, schedulerTuning)

	srv := server.New(server.Config{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		ReaperInterval: 5 * time.Second,
		MaxFrameBytes: func() int64 {
			mu.RLock()
			defer mu.RUnlock()
			return int64(tuning.MaxFrameBytes)
		},
	}, registry, router)

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		return nil, fmt.Errorf("build config watcher: %w", err)
	}

	a := &App{
		cfg:         cfg,
		registry:    registry,
		router:      router,
		scheduler:   sched,
		server:      srv,
		watcher:     watcher,
		metricsAddr: cfg.MetricsAddr,
	}

	go func() {
		for update := range watcher.Updates {
			mu.Lock()
			tuning = update
			mu.Unlock()
		}
	}()

	return a, nil
}

// Registry exposes the session registry, mainly for tests that want to
// assert on session count/state directly.
func (a *App) Registry() *session.Registry {
	return a.registry
}

// Run starts telemetry, the scheduler, the config watcher, and the
// WebSocket server, blocking until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	shutdown, metricsHandler, err := telemetry.Setup(telemetry.Config{
		ServiceName: "autotalk-core",
		Environment: "default",
	}, telemetry.Gauges{
		SessionsOpen: func() int64 {
			var open int64
			for _, s := range a.registry.Snapshot() {
				if s.State() == session.Open {
					open++
				}
			}
			return open
		},
		QueueDepth:    a.scheduler.QueueDepth,
		ActiveDecodes: a.scheduler.ActiveDecodes,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	a.telemetryStop = shutdown

	if metricsHandler != nil && a.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		a.metricsHTTP = &http.Server{Addr: a.metricsAddr, Handler: mux}
		go func() {
			if err := a.metricsHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics listener failed", "error", err, "addr", a.metricsAddr)
			}
		}()
	}

	go a.watcher.Run(ctx)
	go a.scheduler.Run(ctx)

	err = a.server.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.metricsHTTP != nil {
		_ = a.metricsHTTP.Shutdown(shutdownCtx)
	}
	if a.telemetryStop != nil {
		_ = a.telemetryStop(shutdownCtx)
	}

	return err
}
