// Package delta turns local counters and their last-synced baseline into a
// sparse merge payload.
//
// Additive fields travel as increments (current - baseline, only when > 0).
// Streak lengths travel as absolute values. The max/max-day pair travels only
// when it differs from what this client last transmitted.
package delta

import (
	"sort"

	"github.com/example/cscsync/pkg/models"
)

// Input is everything needed to compute the delta of one qid.
type Input struct {
	QID      string
	Current  models.CounterFamily
	Baseline models.CounterFamily

	SentCorrectMax      models.MaxRecord
	SentCorrectMaxKnown bool
	SentWrongMax        models.MaxRecord
	SentWrongMaxKnown   bool
}

// Result is the delta of one qid.
type Result struct {
	QID string
	// Additive holds only the fields whose increment is > 0.
	Additive       map[models.Field]int64
	StreakLen      int64
	WrongStreakLen int64
	// CorrectMax and WrongMax are nil unless the record changed.
	CorrectMax *models.MaxRecord
	WrongMax   *models.MaxRecord
	// Snapshot is the current counters the delta was computed from. It becomes
	// the new baseline once the server confirms the merge.
	Snapshot models.CounterFamily
}

// NonNegative is max(0, current - lastSynced).
func NonNegative(current, lastSynced int64) int64 {
	if d := current - lastSynced; d > 0 {
		return d
	}
	return 0
}

// Compute builds the delta of one qid.
func Compute(in Input) Result {
	r := Result{
		QID:            in.QID,
		Additive:       make(map[models.Field]int64),
		StreakLen:      in.Current.CorrectStreakLen,
		WrongStreakLen: in.Current.WrongStreakLen,
		Snapshot:       in.Current,
	}
	for _, f := range models.AdditiveFields {
		if d := NonNegative(in.Current.Int(f), in.Baseline.Int(f)); d > 0 {
			r.Additive[f] = d
		}
	}
	if rec := in.Current.CorrectMax(); maxChanged(rec, in.SentCorrectMax, in.SentCorrectMaxKnown) {
		r.CorrectMax = &rec
	}
	if rec := in.Current.WrongMax(); maxChanged(rec, in.SentWrongMax, in.SentWrongMaxKnown) {
		r.WrongMax = &rec
	}
	return r
}

func maxChanged(cur, sent models.MaxRecord, known bool) bool {
	if !known {
		return cur.Max > 0 || cur.Day != ""
	}
	return cur != sent
}

// Empty reports the explicit "nothing to report" case: no additive
// increment, both streak lengths zero and no max change.
func (r Result) Empty() bool {
	return len(r.Additive) == 0 &&
		r.StreakLen == 0 &&
		r.WrongStreakLen == 0 &&
		r.CorrectMax == nil &&
		r.WrongMax == nil
}

// AppendTo writes the delta into req. Empty results write nothing.
func (r Result) AppendTo(req *models.MergeRequest) {
	if r.Empty() {
		return
	}
	for f, d := range r.Additive {
		req.SetInt(f, r.QID, d)
	}
	req.SetInt(models.FieldCorrectStreakLen, r.QID, r.StreakLen)
	req.SetInt(models.FieldWrongStreakLen, r.QID, r.WrongStreakLen)
	if r.CorrectMax != nil {
		req.SetInt(models.FieldCorrectStreakMax, r.QID, r.CorrectMax.Max)
		req.SetDay(models.FieldCorrectStreakMaxDay, r.QID, r.CorrectMax.Day)
	}
	if r.WrongMax != nil {
		req.SetInt(models.FieldWrongStreakMax, r.QID, r.WrongMax.Max)
		req.SetDay(models.FieldWrongStreakMaxDay, r.QID, r.WrongMax.Day)
	}
}

// Batch is a set of per-qid results that go out in one request.
type Batch struct {
	Results []Result
}

// Add appends r unless it is empty. It reports whether r was kept.
func (b *Batch) Add(r Result) bool {
	if r.Empty() {
		return false
	}
	b.Results = append(b.Results, r)
	return true
}

// Empty reports whether the batch has nothing to send.
func (b *Batch) Empty() bool {
	return len(b.Results) == 0
}

// Request builds the merge request for the batch.
func (b *Batch) Request(updatedAt int64, submissionID string) models.MergeRequest {
	req := models.MergeRequest{UpdatedAt: updatedAt, SubmissionID: submissionID}
	for _, r := range b.Results {
		r.AppendTo(&req)
	}
	return req
}

// QIDs returns the qids in the batch, sorted.
func (b *Batch) QIDs() []string {
	qids := make([]string, 0, len(b.Results))
	for _, r := range b.Results {
		qids = append(qids, r.QID)
	}
	sort.Strings(qids)
	return qids
}
