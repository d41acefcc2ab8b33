package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/cscsync/internal/database"
	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/pkg/models"
)

type ctxKey int

const identityKey ctxKey = iota

func identityFrom(ctx context.Context) string {
	id, _ := ctx.Value(identityKey).(string)
	return id
}

// requireIdentity rejects requests without the platform identity header.
func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := strings.TrimSpace(r.Header.Get(s.cfg.IdentityHeader))
		if identity == "" {
			s.log.Warnw("Rejected request", logger.FieldPath, r.URL.Path, logger.FieldError, ErrMissingIdentity)
			writeError(w, http.StatusUnauthorized, ErrMissingIdentity.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

// requireSession checks the session key against the caller's identity.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFrom(r.Context())
		key := r.Header.Get(models.HeaderKey)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing session key")
			return
		}

		err := s.sessions.Authenticate(r.Context(), identity, key)
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, database.ErrNotFound):
			s.log.Warnw("Unknown session", logger.FieldIdentity, identity)
			writeError(w, http.StatusUnauthorized, "unknown session")
		case errors.Is(err, database.ErrKeyMismatch):
			s.log.Warnw("Session key does not match identity", logger.FieldIdentity, identity)
			writeError(w, http.StatusForbidden, "session key does not match identity")
		default:
			s.log.Errorw("Session lookup failed", logger.FieldIdentity, identity, logger.FieldError, err)
			writeError(w, http.StatusInternalServerError, "session lookup failed")
		}
	})
}

// rateLimit applies the per-identity merge budget.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFrom(r.Context())
		if !s.limiters.allow(identity) {
			s.log.Warnw("Merge rate limited", logger.FieldIdentity, identity)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many merge requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debugw("Request",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, ww.Status(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	})
}
