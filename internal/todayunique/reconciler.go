// Package todayunique tracks the day-scoped "completed a streak today" sets
// and reconciles them with the server by set union.
//
// Union is idempotent on the server, so a set is simply re-sent until the
// server has confirmed every member. No submission ids are needed.
package todayunique

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/example/cscsync/internal/bootstrap"
	"github.com/example/cscsync/internal/localstore"
	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/internal/syncclient"
	"github.com/example/cscsync/pkg/models"
)

// Gate hands out a verified session once bootstrap is ready.
type Gate interface {
	Await(ctx context.Context) (bootstrap.Session, error)
}

// Merger submits a merge request.
type Merger interface {
	Merge(ctx context.Context, sess bootstrap.Session, req models.MergeRequest) (models.MergeResponse, error)
}

// ErrOffline is returned when a submission is short-circuited by the
// connectivity check.
var ErrOffline = errors.New("offline")

// ErrInvalidInput is returned by Submit for a malformed day or qid.
var ErrInvalidInput = errors.New("invalid today-unique input")

// Reconciler owns the local today-unique sets.
type Reconciler struct {
	store  *localstore.Store
	gate   Gate
	merger Merger
	online func() bool
	log    *zap.SugaredLogger

	mu sync.Mutex
	// Latest server summaries, by kind.
	summaries map[models.TodayKind]models.TodayUniqueSummary
}

// New creates a Reconciler. online may be nil, meaning always online.
func New(store *localstore.Store, merger Merger, gate Gate, online func() bool, log *zap.SugaredLogger) *Reconciler {
	if online == nil {
		online = func() bool { return true }
	}
	return &Reconciler{
		store:     store,
		gate:      gate,
		merger:    merger,
		online:    online,
		log:       logger.Named(log, "todayunique"),
		summaries: make(map[models.TodayKind]models.TodayUniqueSummary),
	}
}

// Qualify adds qid to the local set of kind for day. Malformed input is
// logged and ignored.
func (r *Reconciler) Qualify(kind models.TodayKind, day models.Day, qid string) {
	if err := validate(day, []string{qid}); err != nil {
		r.log.Warnw("Ignoring today-unique qualification", logger.FieldKind, kind, logger.FieldError, err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := localstore.TodayKey(kind, day)
	set := r.load(key)
	if add(&set, qid) {
		r.store.SetJSON(key, set)
		r.log.Debugw("Qualified for today", logger.FieldKind, kind, logger.FieldDay, day, logger.FieldQID, qid)
	}
}

// Local returns the locally qualified qids of kind for day, sorted.
func (r *Reconciler) Local(kind models.TodayKind, day models.Day) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(localstore.TodayKey(kind, day))
}

// Pending returns the local qids the server has not confirmed yet.
func (r *Reconciler) Pending(kind models.TodayKind, day models.Day) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending(kind, day)
}

// Summary returns the last server count seen for kind, if any.
func (r *Reconciler) Summary(kind models.TodayKind) (models.TodayUniqueSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[kind]
	return s, ok
}

// Submit unions qids into the local set of kind for day and sends the
// resulting union payload.
func (r *Reconciler) Submit(ctx context.Context, kind models.TodayKind, day models.Day, qids []string) error {
	if err := validate(day, qids); err != nil {
		return err
	}
	for _, qid := range qids {
		r.Qualify(kind, day, qid)
	}
	_, err := r.send(ctx, day, []models.TodayKind{kind}, true)
	return err
}

// Flush sends every unconfirmed qid of both kinds for day. It reports
// whether a request was made.
func (r *Reconciler) Flush(ctx context.Context, day models.Day) (bool, error) {
	return r.send(ctx, day, models.TodayKinds, false)
}

// UnconfirmedDays returns every day that still has qids the server has not
// confirmed, in either kind, sorted.
func (r *Reconciler) UnconfirmedDays() []models.Day {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[models.Day]bool)
	var days []models.Day
	for _, kind := range models.TodayKinds {
		for _, day := range r.store.TodayDays(kind) {
			if !seen[day] && len(r.pending(kind, day)) > 0 {
				seen[day] = true
				days = append(days, day)
			}
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// FlushAll flushes every day with unconfirmed qids, oldest first. It stops
// at the first error and reports how many days were sent.
func (r *Reconciler) FlushAll(ctx context.Context) (int, error) {
	sent := 0
	for _, day := range r.UnconfirmedDays() {
		ok, err := r.Flush(ctx, day)
		if ok {
			sent++
		}
		if err != nil {
			return sent, err
		}
	}
	return sent, nil
}

func (r *Reconciler) send(ctx context.Context, day models.Day, kinds []models.TodayKind, full bool) (bool, error) {
	req := models.MergeRequest{}
	payload := make(map[models.TodayKind][]string)

	r.mu.Lock()
	for _, kind := range kinds {
		r.prune(kind, day)
		qids := r.pending(kind, day)
		if full {
			qids = r.load(localstore.TodayKey(kind, day))
		}
		if len(qids) == 0 {
			continue
		}
		payload[kind] = qids
		req.SetToday(kind, &models.TodayUniqueDelta{Day: day, QIDs: qids})
	}
	r.mu.Unlock()

	if len(payload) == 0 {
		return false, nil
	}
	if !r.online() {
		r.log.Infow("Offline, today-unique submission deferred", logger.FieldDay, day)
		return false, ErrOffline
	}

	sess, err := r.gate.Await(ctx)
	if err != nil {
		return false, err
	}
	resp, err := r.merger.Merge(ctx, sess, req)
	if errors.Is(err, syncclient.ErrBadRequest) {
		// Resending the same members cannot succeed.
		r.drop(day, payload)
		r.log.Errorw("Today-unique set rejected, members dropped", logger.FieldDay, day, logger.FieldError, err)
		return true, errors.Wrap(err, "today-unique set rejected")
	}
	if errors.Is(err, syncclient.ErrUnauthorized) || errors.Is(err, syncclient.ErrForbidden) {
		r.store.ClearSessionKey()
	}
	if err != nil {
		r.log.Warnw("Today-unique submission failed", logger.FieldDay, day, logger.FieldError, err)
		return true, errors.Wrap(err, "failed to submit today-unique set")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, qids := range payload {
		key := localstore.TodaySentKey(kind, day)
		sent := r.load(key)
		for _, qid := range qids {
			add(&sent, qid)
		}
		r.store.SetJSON(key, sent)
	}
	if resp.Streak3Today != nil {
		r.summaries[models.TodayStreak3] = *resp.Streak3Today
	}
	if resp.Streak3WrongToday != nil {
		r.summaries[models.TodayStreak3Wrong] = *resp.Streak3WrongToday
	}
	r.log.Infow("Today-unique set confirmed", logger.FieldDay, day, logger.FieldCount, len(payload))
	return true, nil
}

// prune removes malformed members from the local set of kind for day.
// Callers hold r.mu.
func (r *Reconciler) prune(kind models.TodayKind, day models.Day) {
	key := localstore.TodayKey(kind, day)
	set := r.load(key)
	kept := set[:0:0]
	for _, qid := range set {
		if day.Valid() && models.ValidQID(qid) {
			kept = append(kept, qid)
		}
	}
	if len(kept) == len(set) {
		return
	}
	r.log.Warnw("Pruned malformed today-unique members", logger.FieldKind, kind, logger.FieldDay, day,
		logger.FieldCount, len(set)-len(kept))
	if len(kept) == 0 {
		r.store.Delete(key)
		return
	}
	r.store.SetJSON(key, kept)
}

// drop removes the rejected members from the local sets.
func (r *Reconciler) drop(day models.Day, payload map[models.TodayKind][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, rejected := range payload {
		key := localstore.TodayKey(kind, day)
		var kept []string
		for _, qid := range r.load(key) {
			if !contains(rejected, qid) {
				kept = append(kept, qid)
			}
		}
		if len(kept) == 0 {
			r.store.Delete(key)
			continue
		}
		r.store.SetJSON(key, kept)
	}
}

func validate(day models.Day, qids []string) error {
	if !day.Valid() {
		return errors.Mark(errors.Newf("invalid day %q", day), ErrInvalidInput)
	}
	for _, qid := range qids {
		if !models.ValidQID(qid) {
			return errors.Mark(errors.Newf("invalid qid %q", qid), ErrInvalidInput)
		}
	}
	return nil
}

func (r *Reconciler) pending(kind models.TodayKind, day models.Day) []string {
	sent := r.load(localstore.TodaySentKey(kind, day))
	var out []string
	for _, qid := range r.load(localstore.TodayKey(kind, day)) {
		if !contains(sent, qid) {
			out = append(out, qid)
		}
	}
	return out
}

func (r *Reconciler) load(key string) []string {
	var set []string
	r.store.GetJSON(key, &set)
	return set
}

// add inserts qid into the sorted set, reporting whether it was new.
func add(set *[]string, qid string) bool {
	s := *set
	i := sort.SearchStrings(s, qid)
	if i < len(s) && s[i] == qid {
		return false
	}
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = qid
	*set = s
	return true
}

func contains(set []string, qid string) bool {
	i := sort.SearchStrings(set, qid)
	return i < len(set) && set[i] == qid
}
