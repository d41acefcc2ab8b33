// Package server is the authoritative side of progress sync: it issues
// session keys, serves the aggregate and applies merge requests.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/example/cscsync/internal/database"
	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/internal/merge"
	"github.com/example/cscsync/pkg/models"
)

// ErrMissingIdentity is returned when the platform identity header is absent.
var ErrMissingIdentity = errors.New("missing identity header")

// Config configures a Server.
type Config struct {
	IdentityHeader string
	Location       *time.Location
	MaxPolicy      merge.Policy
	// MergeRate is the per-identity merge budget per second. Zero disables limiting.
	MergeRate  float64
	MergeBurst int
}

// Server serves the sync API.
type Server struct {
	db         *sqlx.DB
	sessions   *database.SessionRepository
	aggregates *database.AggregateRepository
	today      *database.TodayUniqueRepository
	limiters   *limiterSet
	cfg        Config
	now        func() time.Time
	log        *zap.SugaredLogger
}

// New creates a Server over db.
func New(db *sqlx.DB, cfg Config, log *zap.SugaredLogger) *Server {
	if cfg.IdentityHeader == "" {
		cfg.IdentityHeader = "X-Auth-Request-Email"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Server{
		db:         db,
		sessions:   database.NewSessionRepository(db),
		aggregates: database.NewAggregateRepository(db, cfg.MaxPolicy),
		today:      database.NewTodayUniqueRepository(db),
		limiters:   newLimiterSet(cfg.MergeRate, cfg.MergeBurst),
		cfg:        cfg,
		now:        time.Now,
		log:        logger.Named(log, "server"),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/sync", func(r chi.Router) {
		r.Use(s.requireIdentity)
		r.Post("/init", s.handleInit)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/state", s.handleState)
			r.With(s.rateLimit).Post("/merge", s.handleMerge)
		})
	})
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("Sync server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "sync server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Infow("Shutting down sync server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) currentDay() models.Day {
	return models.DayOf(s.now(), s.cfg.Location)
}
