// Package guard repairs last-synced baselines that ran ahead of the local
// counters, so that deltas can never be stuck at zero after a local reset.
package guard

import (
	"go.uber.org/zap"

	"github.com/example/cscsync/internal/localstore"
	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/pkg/models"
)

// Correction describes one clamped baseline field.
type Correction struct {
	Field models.Field
	From  int64
	To    int64
}

// Repair clamps lastSynced to current when it exceeds it.
func Repair(lastSynced, current int64) (int64, bool) {
	if lastSynced > current {
		return current, true
	}
	return lastSynced, false
}

// Sanitize applies Repair to every additive field. It is pure and idempotent.
func Sanitize(baseline, current models.CounterFamily) (models.CounterFamily, []Correction) {
	var corrections []Correction
	for _, f := range models.AdditiveFields {
		from := baseline.Int(f)
		to, changed := Repair(from, current.Int(f))
		if changed {
			baseline.SetInt(f, to)
			corrections = append(corrections, Correction{Field: f, From: from, To: to})
		}
	}
	return baseline, corrections
}

// Guard runs Sanitize against the local store and persists corrections.
type Guard struct {
	store *localstore.Store
	log   *zap.SugaredLogger
}

// New creates a Guard over store.
func New(store *localstore.Store, log *zap.SugaredLogger) *Guard {
	return &Guard{store: store, log: logger.Named(log, "guard")}
}

// Check loads the baseline of qid, repairs it against current and writes
// every correction back immediately. It returns the repaired baseline.
func (g *Guard) Check(qid string, current models.CounterFamily) (models.CounterFamily, []Correction) {
	baseline, corrections := Sanitize(g.store.Baseline(qid), current)
	for _, c := range corrections {
		g.store.SetBaseline(qid, c.Field, c.To)
		g.log.Warnw("Baseline ahead of local counter, clamped",
			logger.FieldQID, qid,
			logger.FieldField, c.Field,
			"baseline", c.From,
			"current", c.To,
		)
	}
	return baseline, corrections
}
