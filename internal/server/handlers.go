package server

import (
	"context"
	"net/http"
	"time"

	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/internal/merge"
	"github.com/example/cscsync/pkg/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.log.Errorw("Health check failed", logger.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleInit exchanges the platform identity for a session key. A malformed
// or absent body means force=false.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	var req models.InitRequest
	if err := readJSON(w, r, &req); err != nil {
		s.log.Debugw("Ignoring malformed init body", logger.FieldIdentity, identity, logger.FieldError, err)
		req = models.InitRequest{}
	}

	sess, issued, err := s.sessions.Issue(r.Context(), identity, req.Force)
	if err != nil {
		s.log.Errorw("Failed to issue session", logger.FieldIdentity, identity, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	reissued := issued && req.Force

	w.Header().Set(models.HeaderKey, sess.Key)
	w.Header().Set(models.HeaderUser, identity)
	s.log.Infow("Session ready", logger.FieldIdentity, identity, "issued", issued, "reissued", reissued)
	writeJSON(w, http.StatusOK, models.InitResponse{
		OK:       true,
		User:     identity,
		Key:      sess.Key,
		Reissued: reissued,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := identityFrom(ctx)

	counters, err := s.aggregates.ListByIdentity(ctx, identity)
	if err != nil {
		s.log.Errorw("Failed to load state", logger.FieldIdentity, identity, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load state")
		return
	}

	day := s.currentDay()
	resp := models.StateResponse{OK: true, User: identity, Counters: counters}
	if resp.Streak3Today, err = s.today.Summary(ctx, identity, models.TodayStreak3, day); err == nil {
		resp.Streak3WrongToday, err = s.today.Summary(ctx, identity, models.TodayStreak3Wrong, day)
	}
	if err != nil {
		s.log.Errorw("Failed to load today-unique sets", logger.FieldIdentity, identity, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load state")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := identityFrom(ctx)

	var req models.MergeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := merge.Validate(&req); err != nil {
		s.log.Warnw("Rejected merge", logger.FieldIdentity, identity, logger.FieldError, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.aggregates.Merge(ctx, identity, &req)
	if err != nil {
		s.log.Errorw("Merge failed", logger.FieldIdentity, identity, logger.FieldSubmissionID, req.SubmissionID, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "merge failed")
		return
	}

	resp := models.MergeResponse{OK: true, Duplicate: res.Duplicate, Counters: res.Counters}
	if v, ok := res.Today[models.TodayStreak3]; ok {
		resp.Streak3Today = &v
	}
	if v, ok := res.Today[models.TodayStreak3Wrong]; ok {
		resp.Streak3WrongToday = &v
	}

	if res.Duplicate {
		s.log.Infow("Duplicate submission skipped", logger.FieldIdentity, identity, logger.FieldSubmissionID, req.SubmissionID)
	} else {
		s.log.Debugw("Merged",
			logger.FieldIdentity, identity,
			logger.FieldSubmissionID, req.SubmissionID,
			logger.FieldCount, len(res.Counters),
		)
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		s.log.Warnw("Failed to write merge reply", logger.FieldIdentity, identity, logger.FieldError, err)
	}
}
