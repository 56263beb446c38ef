// Package server exposes the RepoChat operations as an HTTP JSON API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/repochat/repochat/internal/metrics"
	"github.com/repochat/repochat/internal/models"
)

// Ingestor starts and inspects repository ingestion jobs.
type Ingestor interface {
	Start(ctx context.Context, assistantID, repoURL string) (*models.Repo, error)
	Restart(ctx context.Context, threadID string) (*models.Repo, error)
	Check(ctx context.Context, threadID string) (*models.Repo, error)
}

// Converser runs conversation turns.
type Converser interface {
	Send(ctx context.Context, threadID, message string) (*models.Thread, error)
	Result(ctx context.Context, threadID string) (*models.Thread, error)
}

// AssistantStore manages assistant records.
type AssistantStore interface {
	UpsertAssistant(ctx context.Context, name, model string) (*models.Assistant, error)
	GetAssistant(ctx context.Context, id string) (*models.Assistant, error)
}

// Server wraps the HTTP server with dependencies and lifecycle management.
type Server struct {
	http       *http.Server
	assistants AssistantStore
	ingestor   Ingestor
	converser  Converser
	stats      *metrics.Collector
	logger     *slog.Logger
}

// New creates a server listening on addr. The stats collector may be nil.
func New(addr string, assistants AssistantStore, ingestor Ingestor, converser Converser, stats *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		assistants: assistants,
		ingestor:   ingestor,
		converser:  converser,
		stats:      stats,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/assistant/create", s.handleAssistantCreate)
	mux.HandleFunc("POST /api/v1/repo/process", s.handleRepoProcess)
	mux.HandleFunc("GET /api/v1/repo/check", s.handleRepoCheck)
	mux.HandleFunc("POST /api/v1/conversation/message", s.handleConversationMessage)
	mux.HandleFunc("GET /api/v1/conversation/result", s.handleConversationResult)
	mux.HandleFunc("GET /api/v1/conversation/watch", s.handleConversationWatch)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("server listening", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
