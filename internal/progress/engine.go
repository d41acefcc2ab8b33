// Package progress is the client-side Progress Synchronization Engine.
//
// The UI calls RecordAnswer when a question is answered and Flush when the
// page settles. Flush repairs baselines, computes a delta per question,
// waits for the bootstrap handshake and submits one merge request. The
// baseline only moves after the server confirms the merge.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/cscsync/internal/bootstrap"
	"github.com/example/cscsync/internal/delta"
	"github.com/example/cscsync/internal/guard"
	"github.com/example/cscsync/internal/localstore"
	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/internal/syncclient"
	"github.com/example/cscsync/pkg/models"
)

// ErrInvalidQID is returned for question identifiers not shaped "<day>-<ordinal>".
var ErrInvalidQID = errors.New("invalid question id")

// Gate hands out a verified session once bootstrap is ready.
type Gate interface {
	Await(ctx context.Context) (bootstrap.Session, error)
}

// Transport issues authenticated sync calls.
type Transport interface {
	Merge(ctx context.Context, sess bootstrap.Session, req models.MergeRequest) (models.MergeResponse, error)
	State(ctx context.Context, sess bootstrap.Session) (models.StateResponse, error)
}

// Connectivity reports whether the client is online.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func() bool

func (f ConnectivityFunc) Online() bool { return f() }

// Qualifier receives qids that completed a streak today.
type Qualifier interface {
	Qualify(kind models.TodayKind, day models.Day, qid string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = logger.Named(l, "progress") }
}

// WithConnectivity sets the online check. The default is always online.
func WithConnectivity(c Connectivity) Option {
	return func(e *Engine) { e.online = c }
}

// WithClock sets the time source and the timezone used for day stamps.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(e *Engine) {
		e.now = now
		e.loc = loc
	}
}

// WithQualifier forwards completed streaks to a today-unique tracker.
func WithQualifier(q Qualifier) Option {
	return func(e *Engine) { e.qualifier = q }
}

// WithSubmissionIDs toggles idempotent submissions. When on (the default)
// each batch carries a submission id and is parked as pending until the
// server confirms it; a batch whose reply was lost is re-sent verbatim so the
// server can drop the duplicate. When off, a lost reply makes the next cycle
// recompute and re-apply the same increments.
func WithSubmissionIDs(on bool) Option {
	return func(e *Engine) { e.submissionIDs = on }
}

// Engine is the client-side sync engine for one identity.
type Engine struct {
	store     *localstore.Store
	guard     *guard.Guard
	gate      Gate
	transport Transport
	online    Connectivity
	qualifier Qualifier
	now       func() time.Time
	loc       *time.Location
	newID     func() string
	log       *zap.SugaredLogger

	submissionIDs bool

	// Serializes flush cycles so two cycles never compute from the same baseline.
	flushMu sync.Mutex
	// Serializes read-modify-write of counters.
	writeMu sync.Mutex
}

// New creates an Engine.
func New(store *localstore.Store, transport Transport, gate Gate, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		gate:          gate,
		transport:     transport,
		online:        ConnectivityFunc(func() bool { return true }),
		now:           time.Now,
		loc:           time.UTC,
		newID:         func() string { return uuid.NewString() },
		log:           logger.Named(nil, "progress"),
		submissionIDs: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.guard = guard.New(store, e.log)
	return e
}

// Today returns the current day stamp.
func (e *Engine) Today() models.Day {
	return models.DayOf(e.now(), e.loc)
}

// RecordAnswer updates the local counters of qid for one answer.
func (e *Engine) RecordAnswer(qid string, correct bool) (Outcome, error) {
	if !models.ValidQID(qid) {
		return Outcome{}, errors.Wrapf(ErrInvalidQID, "%q", qid)
	}
	today := e.Today()

	e.writeMu.Lock()
	out := ApplyAnswer(e.store.Current(qid), correct, today)
	e.store.SetCurrent(qid, out.Counters)
	e.writeMu.Unlock()

	if out.Streak3Completed && e.qualifier != nil {
		kind := models.TodayStreak3
		if !correct {
			kind = models.TodayStreak3Wrong
		}
		e.qualifier.Qualify(kind, today, qid)
	}
	return out, nil
}

// ResetQuestion clears the correct/wrong totals of qid. The baseline is left
// as is and repaired by the guard on the next Flush.
func (e *Engine) ResetQuestion(qid string) error {
	if !models.ValidQID(qid) {
		return errors.Wrapf(ErrInvalidQID, "%q", qid)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.store.ResetQuestion(qid)
	e.log.Infow("Question reset", logger.FieldQID, qid)
	return nil
}

// View is what the UI shows for one question.
type View struct {
	QID    string
	Local  models.CounterFamily
	Server *models.CounterFamily
}

// View returns local counters plus the last authoritative slice, if any.
func (e *Engine) View(qid string) View {
	v := View{QID: qid, Local: e.store.Current(qid)}
	var server models.CounterFamily
	if e.store.GetJSON(localstore.ServerSliceKey(qid), &server) {
		v.Server = &server
	}
	return v
}

// FlushReport is the observable outcome of one Flush.
type FlushReport struct {
	Status       models.SyncStatus
	SubmissionID string
	// QIDs maps every known qid to its outcome in this cycle.
	QIDs        map[string]models.SyncStatus
	Corrections map[string][]guard.Correction
	// Request is nil when no merge request was sent.
	Request  *models.MergeRequest
	Response *models.MergeResponse
	// Resent is set when a pending batch from an earlier cycle was re-sent.
	Resent bool
}

// pendingBatch is a submitted batch not yet confirmed by the server.
type pendingBatch struct {
	ID        string                          `json:"id"`
	Request   models.MergeRequest             `json:"request"`
	Snapshots map[string]models.CounterFamily `json:"snapshots"`
}

// Flush runs one sync cycle. Transient failures are logged and reported
// through the returned status; only bootstrap and authentication failures
// are returned as errors.
func (e *Engine) Flush(ctx context.Context) (FlushReport, error) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	report := FlushReport{
		QIDs:        make(map[string]models.SyncStatus),
		Corrections: make(map[string][]guard.Correction),
	}

	var pending pendingBatch
	hasPending := e.submissionIDs && e.store.GetJSON(localstore.PendingKey(), &pending)
	if hasPending {
		report.Resent = true
		status, err := e.send(ctx, &report, pending)
		if status != models.StatusSynced {
			report.Status = status
			return report, err
		}
	}

	batch := e.computeBatch(&report)
	if batch.Empty() {
		if !report.Resent {
			report.Status = models.StatusSkipped
			e.log.Debugw("Nothing to report, no request sent", logger.FieldCount, len(report.QIDs))
		} else {
			report.Status = models.StatusSynced
		}
		return report, nil
	}

	snapshots := make(map[string]models.CounterFamily, len(batch.Results))
	for _, r := range batch.Results {
		snapshots[r.QID] = r.Snapshot
	}
	var id string
	if e.submissionIDs {
		id = e.newID()
	}
	next := pendingBatch{
		ID:        id,
		Request:   batch.Request(e.now().UnixMilli(), id),
		Snapshots: snapshots,
	}

	status, err := e.send(ctx, &report, next)
	report.Status = status
	return report, err
}

func (e *Engine) computeBatch(report *FlushReport) *delta.Batch {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	batch := &delta.Batch{}
	for _, qid := range e.store.QIDs() {
		current := e.store.Current(qid)
		baseline, corrections := e.guard.Check(qid, current)
		if len(corrections) > 0 {
			report.Corrections[qid] = corrections
		}

		in := delta.Input{QID: qid, Current: current, Baseline: baseline}
		in.SentCorrectMax, in.SentCorrectMaxKnown = e.store.Sent(qid, models.FieldCorrectStreakMax, models.FieldCorrectStreakMaxDay)
		in.SentWrongMax, in.SentWrongMaxKnown = e.store.Sent(qid, models.FieldWrongStreakMax, models.FieldWrongStreakMaxDay)

		if batch.Add(delta.Compute(in)) {
			report.QIDs[qid] = models.StatusFailed
		} else {
			report.QIDs[qid] = models.StatusSkipped
		}
	}
	return batch
}

// send submits one batch and commits it on confirmed success.
func (e *Engine) send(ctx context.Context, report *FlushReport, batch pendingBatch) (models.SyncStatus, error) {
	qids := make([]string, 0, len(batch.Snapshots))
	for qid := range batch.Snapshots {
		qids = append(qids, qid)
	}
	mark := func(s models.SyncStatus) {
		for _, qid := range qids {
			report.QIDs[qid] = s
		}
	}

	if !e.online.Online() {
		e.log.Infow("Offline, skipping submission", logger.FieldCount, len(qids))
		mark(models.StatusOffline)
		return models.StatusOffline, nil
	}

	sess, err := e.gate.Await(ctx)
	if err != nil {
		if errors.Is(err, bootstrap.ErrBootstrapFailed) {
			mark(models.StatusRejected)
			return models.StatusRejected, err
		}
		// The wait was abandoned; the handshake may still succeed later.
		mark(models.StatusFailed)
		return models.StatusFailed, nil
	}

	if batch.ID != "" {
		e.store.SetJSON(localstore.PendingKey(), batch)
	}

	req := batch.Request
	report.Request = &req
	report.SubmissionID = batch.ID

	resp, err := e.transport.Merge(ctx, sess, req)
	if err != nil {
		if syncclient.IsProtocolError(err) {
			e.log.Errorw("Merge rejected", logger.FieldSubmissionID, batch.ID, logger.FieldError, err)
			if errors.Is(err, syncclient.ErrBadRequest) && batch.ID != "" {
				// A refused payload is never re-sent.
				e.store.Delete(localstore.PendingKey())
			}
			e.forgetSession(err)
			mark(models.StatusRejected)
			return models.StatusRejected, err
		}
		e.log.Warnw("Merge failed, baseline kept for retry", logger.FieldSubmissionID, batch.ID, logger.FieldError, err)
		mark(models.StatusFailed)
		return models.StatusFailed, nil
	}
	report.Response = &resp

	e.commit(batch, resp)
	mark(models.StatusSynced)
	e.log.Infow("Merge confirmed",
		logger.FieldSubmissionID, batch.ID,
		logger.FieldCount, len(qids),
		"duplicate", resp.Duplicate,
	)
	return models.StatusSynced, nil
}

// commit advances the baseline of every field the batch carried.
func (e *Engine) commit(batch pendingBatch, resp models.MergeResponse) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	req := batch.Request
	for qid, snap := range batch.Snapshots {
		for _, f := range models.AdditiveFields {
			if _, ok := req.IntMap(f)[qid]; ok {
				e.store.SetBaseline(qid, f, snap.Int(f))
			}
		}
		if _, ok := req.IntMap(models.FieldCorrectStreakMax)[qid]; ok {
			e.store.SetSent(qid, models.FieldCorrectStreakMax, models.FieldCorrectStreakMaxDay, snap.CorrectMax())
		}
		if _, ok := req.IntMap(models.FieldWrongStreakMax)[qid]; ok {
			e.store.SetSent(qid, models.FieldWrongStreakMax, models.FieldWrongStreakMaxDay, snap.WrongMax())
		}
	}
	for qid, agg := range resp.Counters {
		e.store.SetJSON(localstore.ServerSliceKey(qid), agg)
	}
	if batch.ID != "" {
		e.store.Delete(localstore.PendingKey())
	}
}

// forgetSession drops the cached session key after the server refused it.
func (e *Engine) forgetSession(err error) {
	if errors.Is(err, syncclient.ErrUnauthorized) || errors.Is(err, syncclient.ErrForbidden) {
		e.store.ClearSessionKey()
		e.log.Infow("Cached session key discarded", logger.FieldError, err)
	}
}

// RefreshState fetches the authoritative aggregate and caches it for View.
func (e *Engine) RefreshState(ctx context.Context) (models.StateResponse, error) {
	if !e.online.Online() {
		return models.StateResponse{}, errors.New("offline")
	}
	sess, err := e.gate.Await(ctx)
	if err != nil {
		return models.StateResponse{}, err
	}
	state, err := e.transport.State(ctx, sess)
	if err != nil {
		e.forgetSession(err)
		return state, errors.Wrap(err, "failed to fetch sync state")
	}
	for qid, agg := range state.Counters {
		e.store.SetJSON(localstore.ServerSliceKey(qid), agg)
	}
	return state, nil
}
