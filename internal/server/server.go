// Package server provides HTTP server wiring and lifecycle management
// for the webhook endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wecom-tools/quarkbot/internal/config"
	"github.com/wecom-tools/quarkbot/internal/conversation"
	"github.com/wecom-tools/quarkbot/internal/dedup"
	"github.com/wecom-tools/quarkbot/internal/platform/logutil"
	"github.com/wecom-tools/quarkbot/internal/quark"
	"github.com/wecom-tools/quarkbot/internal/search"
	"github.com/wecom-tools/quarkbot/internal/store"
	"github.com/wecom-tools/quarkbot/internal/transfer"
	"github.com/wecom-tools/quarkbot/internal/wecom"
)

var ErrMissingDep = errors.New("missing required dependency")

// Deps holds all server dependencies.
type Deps struct {
	// Required.
	Verifier     *wecom.Verifier
	Gateway      *wecom.Gateway
	Guard        *dedup.Guard
	States       *conversation.Store
	Orchestrator *transfer.Orchestrator
	Search       *search.Engine
	Drive        quark.Drive

	// Optional: nil when callback encryption is disabled.
	Crypt *wecom.MsgCrypt

	// Optional: persistence for credentials and keywords.
	Store store.Store

	// Optional: swaps the drive credential at runtime.
	SetCookie func(string)
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	deps       *Deps
	dispatcher *Dispatcher
	handler    http.Handler
	httpServer *http.Server
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	logger = logutil.NoopIfNil(logger)

	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		deps:   deps,
		dispatcher: NewDispatcher(DispatcherConfig{
			SearchRoot: cfg.Drive.SearchFolderID,
			PageSize:   cfg.Search.PageSize,
		}, deps, logger),
	}

	s.handler = s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.cfg.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.Verifier == nil {
		return fmt.Errorf("%w: Verifier", ErrMissingDep)
	}
	if deps.Gateway == nil {
		return fmt.Errorf("%w: Gateway", ErrMissingDep)
	}
	if deps.Guard == nil {
		return fmt.Errorf("%w: Guard", ErrMissingDep)
	}
	if deps.States == nil {
		return fmt.Errorf("%w: States", ErrMissingDep)
	}
	if deps.Orchestrator == nil {
		return fmt.Errorf("%w: Orchestrator", ErrMissingDep)
	}
	if deps.Search == nil {
		return fmt.Errorf("%w: Search", ErrMissingDep)
	}
	if deps.Drive == nil {
		return fmt.Errorf("%w: Drive", ErrMissingDep)
	}
	return nil
}
