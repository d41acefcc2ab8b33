package models

import (
	"regexp"
	"time"
)

// DayLayout is the calendar stamp format used for days and MaxDay fields.
const DayLayout = "20060102"

// Day is a calendar stamp like "20250131".
type Day string

// DayOf returns the calendar stamp of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return Day(t.In(loc).Format(DayLayout))
}

// Valid reports whether d is a real calendar stamp.
func (d Day) Valid() bool {
	_, err := time.Parse(DayLayout, string(d))
	return err == nil
}

var qidPattern = regexp.MustCompile(`^\d{8}-\d+$`)

// ValidQID reports whether qid has the "<day>-<ordinal>" shape.
func ValidQID(qid string) bool {
	return qidPattern.MatchString(qid)
}

// Field names one counter of a CounterFamily.
type Field string

const (
	FieldCorrectTotal        Field = "correctTotal"
	FieldWrongTotal          Field = "wrongTotal"
	FieldCorrectStreak3Total Field = "correctStreak3Total"
	FieldWrongStreak3Total   Field = "wrongStreak3Total"
	FieldCorrectStreakLen    Field = "correctStreakLen"
	FieldWrongStreakLen      Field = "wrongStreakLen"
	FieldCorrectStreakMax    Field = "correctStreakMax"
	FieldCorrectStreakMaxDay Field = "correctStreakMaxDay"
	FieldWrongStreakMax      Field = "wrongStreakMax"
	FieldWrongStreakMaxDay   Field = "wrongStreakMaxDay"
)

// FieldKind tells how a field travels over the wire and how the server merges it.
type FieldKind int

const (
	// KindAdditive fields are sent as increments and merged by summation.
	KindAdditive FieldKind = iota + 1
	// KindAbsolute fields are sent as snapshots and merged by replacement.
	KindAbsolute
	// KindUnion payloads are qid sets merged by set union.
	KindUnion
)

func (k FieldKind) String() string {
	switch k {
	case KindAdditive:
		return "additive"
	case KindAbsolute:
		return "absolute"
	case KindUnion:
		return "union"
	default:
		return "unknown"
	}
}

// AdditiveFields are the monotonic counters transmitted as deltas.
var AdditiveFields = []Field{
	FieldCorrectTotal,
	FieldWrongTotal,
	FieldCorrectStreak3Total,
	FieldWrongStreak3Total,
}

// IntFields lists every integer field in a stable order.
var IntFields = []Field{
	FieldCorrectTotal,
	FieldWrongTotal,
	FieldCorrectStreak3Total,
	FieldWrongStreak3Total,
	FieldCorrectStreakLen,
	FieldWrongStreakLen,
	FieldCorrectStreakMax,
	FieldWrongStreakMax,
}

// KindOf returns the merge kind of f.
func KindOf(f Field) FieldKind {
	switch f {
	case FieldCorrectTotal, FieldWrongTotal, FieldCorrectStreak3Total, FieldWrongStreak3Total:
		return KindAdditive
	default:
		return KindAbsolute
	}
}

// CounterFamily holds the per-question counters. Client and server each keep a copy.
type CounterFamily struct {
	CorrectTotal        int64 `json:"correct_total" db:"correct_total"`
	WrongTotal          int64 `json:"wrong_total" db:"wrong_total"`
	CorrectStreak3Total int64 `json:"streak3_total" db:"streak3_total"`
	WrongStreak3Total   int64 `json:"wrong_streak3_total" db:"wrong_streak3_total"`
	CorrectStreakLen    int64 `json:"streak_len" db:"streak_len"`
	WrongStreakLen      int64 `json:"wrong_streak_len" db:"wrong_streak_len"`
	CorrectStreakMax    int64 `json:"streak_max" db:"streak_max"`
	CorrectStreakMaxDay Day   `json:"streak_max_day,omitempty" db:"streak_max_day"`
	WrongStreakMax      int64 `json:"wrong_streak_max" db:"wrong_streak_max"`
	WrongStreakMaxDay   Day   `json:"wrong_streak_max_day,omitempty" db:"wrong_streak_max_day"`
}

// Int returns the value of an integer field. Day fields and unknown names yield 0.
func (c CounterFamily) Int(f Field) int64 {
	switch f {
	case FieldCorrectTotal:
		return c.CorrectTotal
	case FieldWrongTotal:
		return c.WrongTotal
	case FieldCorrectStreak3Total:
		return c.CorrectStreak3Total
	case FieldWrongStreak3Total:
		return c.WrongStreak3Total
	case FieldCorrectStreakLen:
		return c.CorrectStreakLen
	case FieldWrongStreakLen:
		return c.WrongStreakLen
	case FieldCorrectStreakMax:
		return c.CorrectStreakMax
	case FieldWrongStreakMax:
		return c.WrongStreakMax
	}
	return 0
}

// SetInt assigns an integer field. Negative values are clamped to 0.
func (c *CounterFamily) SetInt(f Field, v int64) {
	if v < 0 {
		v = 0
	}
	switch f {
	case FieldCorrectTotal:
		c.CorrectTotal = v
	case FieldWrongTotal:
		c.WrongTotal = v
	case FieldCorrectStreak3Total:
		c.CorrectStreak3Total = v
	case FieldWrongStreak3Total:
		c.WrongStreak3Total = v
	case FieldCorrectStreakLen:
		c.CorrectStreakLen = v
	case FieldWrongStreakLen:
		c.WrongStreakLen = v
	case FieldCorrectStreakMax:
		c.CorrectStreakMax = v
	case FieldWrongStreakMax:
		c.WrongStreakMax = v
	}
}

// MaxRecord is a streak maximum and the day it was set.
type MaxRecord struct {
	Max int64 `json:"max"`
	Day Day   `json:"day,omitempty"`
}

// CorrectMax returns the correct-streak record.
func (c CounterFamily) CorrectMax() MaxRecord {
	return MaxRecord{Max: c.CorrectStreakMax, Day: c.CorrectStreakMaxDay}
}

// WrongMax returns the wrong-streak record.
func (c CounterFamily) WrongMax() MaxRecord {
	return MaxRecord{Max: c.WrongStreakMax, Day: c.WrongStreakMaxDay}
}

// Additive returns the additive fields as a map.
func (c CounterFamily) Additive() map[Field]int64 {
	out := make(map[Field]int64, len(AdditiveFields))
	for _, f := range AdditiveFields {
		out[f] = c.Int(f)
	}
	return out
}
