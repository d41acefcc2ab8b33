// Package merge holds the server-side merge rules. Additive fields are
// summed, latest-value fields are replaced and day-scoped sets are unioned.
// Everything here is pure; persistence lives in internal/database.
package merge

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/example/cscsync/pkg/models"
)

// Policy decides how the max/max-day pair is merged.
type Policy string

const (
	// PolicyReplace overwrites the stored pair with whatever arrives last.
	PolicyReplace Policy = "replace"
	// PolicyMonotonic keeps the larger max; the day moves with it.
	PolicyMonotonic Policy = "monotonic"
)

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyReplace, PolicyMonotonic:
		return p, nil
	case "":
		return PolicyReplace, nil
	}
	return "", errors.Newf("unknown max policy %q", s)
}

// ErrInvalidRequest marks merge requests refused by Validate.
var ErrInvalidRequest = errors.New("invalid merge request")

func invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidRequest)
}

// Validate checks the shape of req before anything is applied.
func Validate(req *models.MergeRequest) error {
	for _, f := range models.AdditiveFields {
		for qid, v := range req.IntMap(f) {
			if !models.ValidQID(qid) {
				return invalid("%s: invalid qid %q", f, qid)
			}
			if v <= 0 {
				return invalid("%s[%s]: increment must be positive, got %d", f, qid, v)
			}
		}
	}
	for _, f := range []models.Field{
		models.FieldCorrectStreakLen, models.FieldWrongStreakLen,
		models.FieldCorrectStreakMax, models.FieldWrongStreakMax,
	} {
		for qid, v := range req.IntMap(f) {
			if !models.ValidQID(qid) {
				return invalid("%s: invalid qid %q", f, qid)
			}
			if v < 0 {
				return invalid("%s[%s]: negative value %d", f, qid, v)
			}
		}
	}
	for _, f := range []models.Field{models.FieldCorrectStreakMaxDay, models.FieldWrongStreakMaxDay} {
		for qid, d := range req.DayMap(f) {
			if !models.ValidQID(qid) {
				return invalid("%s: invalid qid %q", f, qid)
			}
			if d != "" && !d.Valid() {
				return invalid("%s[%s]: invalid day %q", f, qid, d)
			}
		}
	}
	for _, kind := range models.TodayKinds {
		d := req.Today(kind)
		if d == nil {
			continue
		}
		if !d.Day.Valid() {
			return invalid("%s today: invalid day %q", kind, d.Day)
		}
		for _, qid := range d.QIDs {
			if !models.ValidQID(qid) {
				return invalid("%s today: invalid qid %q", kind, qid)
			}
		}
	}
	return nil
}

// Apply merges the fields req carries for qid into agg.
func (p Policy) Apply(agg models.CounterFamily, qid string, req *models.MergeRequest) models.CounterFamily {
	for _, f := range models.AdditiveFields {
		if d, ok := req.IntMap(f)[qid]; ok {
			agg = ApplyAdditive(agg, f, d)
		}
	}
	if v, ok := req.StreakLenDelta[qid]; ok {
		agg.CorrectStreakLen = v
	}
	if v, ok := req.StreakWrongLenDelta[qid]; ok {
		agg.WrongStreakLen = v
	}

	rec, day, hasMax, hasDay := incoming(req.StreakMaxDelta, req.StreakMaxDayDelta, qid)
	agg.CorrectStreakMax, agg.CorrectStreakMaxDay = p.max(agg.CorrectMax(), rec, day, hasMax, hasDay)
	rec, day, hasMax, hasDay = incoming(req.StreakWrongMaxDelta, req.StreakWrongMaxDayDelta, qid)
	agg.WrongStreakMax, agg.WrongStreakMaxDay = p.max(agg.WrongMax(), rec, day, hasMax, hasDay)
	return agg
}

// ApplyAdditive adds delta to field f. Non-positive deltas are ignored.
func ApplyAdditive(agg models.CounterFamily, f models.Field, delta int64) models.CounterFamily {
	if delta > 0 && models.KindOf(f) == models.KindAdditive {
		agg.SetInt(f, agg.Int(f)+delta)
	}
	return agg
}

func incoming(maxes map[string]int64, days map[string]models.Day, qid string) (int64, models.Day, bool, bool) {
	v, hasMax := maxes[qid]
	d, hasDay := days[qid]
	return v, d, hasMax, hasDay
}

func (p Policy) max(cur models.MaxRecord, v int64, d models.Day, hasMax, hasDay bool) (int64, models.Day) {
	if p == PolicyMonotonic {
		switch {
		case hasMax && v > cur.Max:
			if !hasDay {
				d = cur.Day
			}
			return v, d
		case hasDay && cur.Day == "" && (!hasMax || v == cur.Max):
			return cur.Max, d
		}
		return cur.Max, cur.Day
	}
	if hasMax {
		cur.Max = v
	}
	if hasDay {
		cur.Day = d
	}
	return cur.Max, cur.Day
}

// Union returns the sorted set union of existing and incoming.
func Union(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, qid := range list {
			if _, ok := seen[qid]; ok {
				continue
			}
			seen[qid] = struct{}{}
			out = append(out, qid)
		}
	}
	sort.Strings(out)
	return out
}
