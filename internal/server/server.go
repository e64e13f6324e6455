package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"curator/internal/config"
	"curator/internal/database"
	"curator/internal/dataset"
	"curator/internal/metadata"
	"curator/internal/watcher"

	"github.com/sirupsen/logrus"
)

// Server exposes one dataset session over a local HTTP API for a browser
// front end. Every handler holds mu while it touches the session.
type Server struct {
	config    *config.Config
	session   *dataset.Session
	extractor *metadata.Extractor
	db        *database.Database
	logger    *logrus.Logger

	mu         sync.Mutex
	startedAt  time.Time
	httpServer *http.Server
}

// NewServer creates a server for an already opened session. db may be nil
// when the recent-datasets registry is unavailable.
func NewServer(cfg *config.Config, session *dataset.Session, extractor *metadata.Extractor, db *database.Database, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		config:    cfg,
		session:   session,
		extractor: extractor,
		db:        db,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Locker returns the lock guarding the session, for other goroutines such
// as the folder watcher.
func (s *Server) Locker() sync.Locker {
	return &s.mu
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	var h http.Handler = mux
	h = s.basicAuthMiddleware(h)
	h = s.corsMiddleware(h)
	h = s.requestLoggingMiddleware(h)
	h = s.panicRecoveryMiddleware(h)
	return h
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealthCheck)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)

	mux.HandleFunc("GET /api/dataset", s.handleGetDataset)
	mux.HandleFunc("PUT /api/dataset", s.handleUpdateDataset)

	mux.HandleFunc("GET /api/tracks", s.handleGetTracks)
	mux.HandleFunc("GET /api/tracks/{id}", s.handleGetTrack)
	mux.HandleFunc("PUT /api/tracks/{id}", s.handleUpdateTrack)
	mux.HandleFunc("DELETE /api/tracks/{id}", s.handleDeleteTrack)
	mux.HandleFunc("GET /api/tracks/{id}/tags", s.handleGetTrackTags)

	mux.HandleFunc("POST /api/save", s.handleSave)
	mux.HandleFunc("POST /api/backup", s.handleBackup)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/apply", s.handleApply)
	mux.HandleFunc("POST /api/merge-paragraphs", s.handleMergeParagraphs)
	mux.HandleFunc("POST /api/durations", s.handleFillDurations)

	mux.HandleFunc("GET /stream/{id}", s.handleStreamTrack)
}

// Start serves until ctx is canceled, then shuts down gracefully. When
// watch is true the dataset folder is watched for new and removed audio
// files for as long as the server runs.
func (s *Server) Start(ctx context.Context, watch bool) error {
	s.httpServer = &http.Server{
		Addr:        s.config.GetAddress(),
		Handler:     s.Handler(),
		ReadTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if watch {
		go s.runWatcher(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.mu.Lock()
	s.logger.WithFields(logrus.Fields{
		"address": fmt.Sprintf("http://%s", s.config.GetAddress()),
		"folder":  s.session.Folder(),
		"samples": s.session.Len(),
		"auth":    s.config.Server.PasswordHash != "",
	}).Info("Curator server starting")
	s.mu.Unlock()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down curator server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	s.logger.Info("Curator server shutdown complete")
	return nil
}

func (s *Server) runWatcher(ctx context.Context) {
	s.mu.Lock()
	folder := s.session.Folder()
	s.mu.Unlock()

	handler := &watcher.SessionHandler{
		Session:  s.session,
		AutoSave: s.config.Watch.AutoSave,
		Lock:     s.Locker(),
		Logger:   s.logger,
	}
	debounce := time.Duration(s.config.Watch.DebounceMS) * time.Millisecond

	w := watcher.New(folder, s.extractor.IsAudioFile, handler, debounce, s.logger)
	if err := w.Run(ctx); err != nil {
		s.logger.WithError(err).Warn("Could not start file watcher")
	}
}
