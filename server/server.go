// Package server implements the Connection Manager (spec.md §4.2): the
// acceptor, per-connection handshake and receive task, and the background
// reaper that sweeps dead sessions. Grounded on
// bosley-libas/scribe/scribe.go + http.go's Start/Stop and
// startHTTP/handleWebSocket lifecycle, generalized from gorilla/mux +
// TLS-file serving to the streaming recognition wire contract.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Ireoo/autotalk.core/ingest"
	"github.com/Ireoo/autotalk.core/session"
	"github.com/Ireoo/autotalk.core/wsproto"
)

// Config holds the Connection Manager's own tunables — not the whole
// server config, just what this package needs.
type Config struct {
	Addr           string
	ReaperInterval time.Duration
	MaxFrameBytes  func() int64
}

// Server owns the HTTP listener, the session registry, and the reaper.
type Server struct {
	cfg      Config
	registry *session.Registry
	router   *ingest.Router
	http     *http.Server
}

// New builds a Server. It does not start listening until Run is called.
func New(cfg Config, registry *session.Registry, router *ingest.Router) *Server {
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = 5 * time.Second
	}
	return &Server{cfg: cfg, registry: registry, router: router}
}

// Registry exposes the session registry, e.g. so the scheduler can
// enumerate sessions and the telemetry package can report gauges.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Run accepts connections at any path (spec.md §6 "Accepts HTTP Upgrade at
// any path") until ctx is cancelled, then shuts the listener down
// gracefully. Accept errors during shutdown are silent; others are logged
// and never fatal to the process (spec.md §4.2 Failure semantics).
func (s *Server) Run(ctx context.Context) error {
	router := mux.NewRouter()
	router.PathPrefix("/").HandlerFunc(s.handleUpgrade)

	s.http = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: router,
	}

	go s.runReaper(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := wsproto.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err, "remoteAddr", r.RemoteAddr)
		return
	}

	maxFrameBytes := int64(0)
	if s.cfg.MaxFrameBytes != nil {
		maxFrameBytes = s.cfg.MaxFrameBytes()
	}
	conn := wsproto.New(ws, maxFrameBytes)
	sess := s.registry.Register(conn)

	slog.Debug("session opened", "sessionID", sess.ID, "remoteAddr", r.RemoteAddr)
	go s.readPump(sess, conn)
}

// readPump is the per-connection receive task (spec.md §4.2 step 3): it
// parses frames via the codec and hands them to the Ingest Router until
// the socket errors, at which point the session transitions to Closing and,
// once the socket is closed, to Closed.
// Per-session receive errors are never fatal to the server.
func (s *Server) readPump(sess *session.Session, conn *wsproto.Conn) {
	defer func() {
		sess.SetState(session.Closed)
		conn.Close()
		slog.Debug("session closed", "sessionID", sess.ID)
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			sess.SetState(session.Closing)
			return
		}
		s.router.HandleFrame(sess, conn, frame)
	}
}

func (s *Server) runReaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.registry.Reap(); n > 0 {
				slog.Debug("reaper removed closed sessions", "count", n)
			}
		}
	}
}
