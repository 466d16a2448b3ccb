// Package api provides HTTP handlers and the main API server logic for NudgePipe.
//
// It exposes RESTful endpoints for nudge orchestration, response telemetry,
// insight-queue uploads, and the per-session insight delivery lifecycle. The
// API integrates with the nudge, insight, genai, scheduler, and store modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/NudgePipe/internal/genai"
	"github.com/BTreeMap/NudgePipe/internal/insight"
	"github.com/BTreeMap/NudgePipe/internal/nudge"
	"github.com/BTreeMap/NudgePipe/internal/scheduler"
	"github.com/BTreeMap/NudgePipe/internal/store"
)

// Defaults for server configuration.
const (
	DefaultAddr          = ":8080"
	DefaultSweepSchedule = "*/15 * * * *"
	DefaultIdleThreshold = 30 * time.Minute
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	SweepSchedule string
	IdleThreshold time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSweepSchedule sets the cron expression driving the idle-session sweep.
func WithSweepSchedule(expr string) Option {
	return func(o *Opts) { o.SweepSchedule = expr }
}

// WithIdleThreshold sets how long a session may sit idle before the sweep
// flushes and ends it.
func WithIdleThreshold(d time.Duration) Option {
	return func(o *Opts) { o.IdleThreshold = d }
}

// Server holds the dependencies for API handlers.
type Server struct {
	st       store.Store
	orch     *nudge.Orchestrator
	sessions *insight.Manager
	agent    *genai.Client // nil when no API key is configured
	sched    *scheduler.Scheduler
	opts     Opts
}

// NewServer constructs an API server over the given store. The GenAI agent
// is optional; without it the conversation-turn endpoint reports unavailable.
func NewServer(st store.Store, agent *genai.Client, opts ...Option) *Server {
	cfg := Opts{
		Addr:          DefaultAddr,
		SweepSchedule: DefaultSweepSchedule,
		IdleThreshold: DefaultIdleThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating API server", "addr", cfg.Addr, "sweep_schedule", cfg.SweepSchedule, "idle_threshold", cfg.IdleThreshold)
	return &Server{
		st:       st,
		orch:     nudge.NewOrchestrator(st),
		sessions: insight.NewManager(st),
		agent:    agent,
		opts:     cfg,
	}
}

// routes registers all endpoints on a fresh mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/nudges/orchestrate", s.orchestrateHandler)
	mux.HandleFunc("/nudges/response", s.nudgeResponseHandler)
	mux.HandleFunc("/nudges/reset", s.nudgeResetHandler)
	mux.HandleFunc("/insights/queue", s.insightQueueHandler)
	mux.HandleFunc("/sessions", s.createSessionHandler)
	mux.HandleFunc("/sessions/", s.sessionsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the idle-session sweep and serves the API until the context is
// canceled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.sched = scheduler.NewScheduler()
	defer s.sched.Stop()

	if err := s.sched.AddJob(s.opts.SweepSchedule, func() {
		swept := s.sessions.SweepIdle(context.Background(), s.opts.IdleThreshold)
		if swept > 0 {
			slog.Info("Idle-session sweep completed", "swept", swept)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule idle-session sweep: %w", err)
	}

	srv := &http.Server{Addr: s.opts.Addr, Handler: s.routes()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("NudgePipe API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed", "error", err)
			return err
		}
		return nil
	}
}
