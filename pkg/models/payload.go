package models

// TodayKind identifies one of the day-scoped unique sets.
type TodayKind string

const (
	TodayStreak3      TodayKind = "streak3"
	TodayStreak3Wrong TodayKind = "streak3Wrong"
)

// TodayKinds lists both day-scoped sets.
var TodayKinds = []TodayKind{TodayStreak3, TodayStreak3Wrong}

// TodayUniqueDelta is a union payload: the qids that qualified on day.
type TodayUniqueDelta struct {
	Day  Day      `json:"day"`
	QIDs []string `json:"qids"`
}

// TodayUniqueSummary is the server view of one day-scoped set.
type TodayUniqueSummary struct {
	Day         Day `json:"day"`
	UniqueCount int `json:"unique_count"`
}

// MergeRequest is the body of POST /api/sync/merge.
// A nil map or pointer means the field is absent from the request.
type MergeRequest struct {
	CorrectDelta           map[string]int64  `json:"correctDelta,omitempty"`
	IncorrectDelta         map[string]int64  `json:"incorrectDelta,omitempty"`
	Streak3Delta           map[string]int64  `json:"streak3Delta,omitempty"`
	Streak3WrongDelta      map[string]int64  `json:"streak3WrongDelta,omitempty"`
	StreakLenDelta         map[string]int64  `json:"streakLenDelta,omitempty"`
	StreakWrongLenDelta    map[string]int64  `json:"streakWrongLenDelta,omitempty"`
	StreakMaxDelta         map[string]int64  `json:"streakMaxDelta,omitempty"`
	StreakMaxDayDelta      map[string]Day    `json:"streakMaxDayDelta,omitempty"`
	StreakWrongMaxDelta    map[string]int64  `json:"streakWrongMaxDelta,omitempty"`
	StreakWrongMaxDayDelta map[string]Day    `json:"streakWrongMaxDayDelta,omitempty"`
	Streak3TodayDelta      *TodayUniqueDelta `json:"streak3TodayDelta,omitempty"`
	Streak3WrongTodayDelta *TodayUniqueDelta `json:"streak3WrongTodayDelta,omitempty"`
	UpdatedAt              int64             `json:"updatedAt,omitempty"`
	SubmissionID           string            `json:"submissionId,omitempty"`
}

// IntMap returns the integer map carrying f, or nil when absent.
func (r *MergeRequest) IntMap(f Field) map[string]int64 {
	switch f {
	case FieldCorrectTotal:
		return r.CorrectDelta
	case FieldWrongTotal:
		return r.IncorrectDelta
	case FieldCorrectStreak3Total:
		return r.Streak3Delta
	case FieldWrongStreak3Total:
		return r.Streak3WrongDelta
	case FieldCorrectStreakLen:
		return r.StreakLenDelta
	case FieldWrongStreakLen:
		return r.StreakWrongLenDelta
	case FieldCorrectStreakMax:
		return r.StreakMaxDelta
	case FieldWrongStreakMax:
		return r.StreakWrongMaxDelta
	}
	return nil
}

// SetInt records value for qid under f, allocating the map on first use.
func (r *MergeRequest) SetInt(f Field, qid string, value int64) {
	m := r.IntMap(f)
	if m == nil {
		m = make(map[string]int64)
		switch f {
		case FieldCorrectTotal:
			r.CorrectDelta = m
		case FieldWrongTotal:
			r.IncorrectDelta = m
		case FieldCorrectStreak3Total:
			r.Streak3Delta = m
		case FieldWrongStreak3Total:
			r.Streak3WrongDelta = m
		case FieldCorrectStreakLen:
			r.StreakLenDelta = m
		case FieldWrongStreakLen:
			r.StreakWrongLenDelta = m
		case FieldCorrectStreakMax:
			r.StreakMaxDelta = m
		case FieldWrongStreakMax:
			r.StreakWrongMaxDelta = m
		default:
			return
		}
	}
	m[qid] = value
}

// DayMap returns the day map carrying f, or nil when absent.
func (r *MergeRequest) DayMap(f Field) map[string]Day {
	switch f {
	case FieldCorrectStreakMaxDay:
		return r.StreakMaxDayDelta
	case FieldWrongStreakMaxDay:
		return r.StreakWrongMaxDayDelta
	}
	return nil
}

// SetDay records a day stamp for qid under f.
func (r *MergeRequest) SetDay(f Field, qid string, day Day) {
	switch f {
	case FieldCorrectStreakMaxDay:
		if r.StreakMaxDayDelta == nil {
			r.StreakMaxDayDelta = make(map[string]Day)
		}
		r.StreakMaxDayDelta[qid] = day
	case FieldWrongStreakMaxDay:
		if r.StreakWrongMaxDayDelta == nil {
			r.StreakWrongMaxDayDelta = make(map[string]Day)
		}
		r.StreakWrongMaxDayDelta[qid] = day
	}
}

// Today returns the union payload for kind, or nil when absent.
func (r *MergeRequest) Today(kind TodayKind) *TodayUniqueDelta {
	switch kind {
	case TodayStreak3:
		return r.Streak3TodayDelta
	case TodayStreak3Wrong:
		return r.Streak3WrongTodayDelta
	}
	return nil
}

// SetToday sets the union payload for kind.
func (r *MergeRequest) SetToday(kind TodayKind, d *TodayUniqueDelta) {
	switch kind {
	case TodayStreak3:
		r.Streak3TodayDelta = d
	case TodayStreak3Wrong:
		r.Streak3WrongTodayDelta = d
	}
}

// QIDs returns every qid referenced by a counter field, deduplicated.
func (r *MergeRequest) QIDs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(qid string) {
		if !seen[qid] {
			seen[qid] = true
			out = append(out, qid)
		}
	}
	for _, f := range IntFields {
		for qid := range r.IntMap(f) {
			add(qid)
		}
	}
	for _, f := range []Field{FieldCorrectStreakMaxDay, FieldWrongStreakMaxDay} {
		for qid := range r.DayMap(f) {
			add(qid)
		}
	}
	return out
}

// Empty reports whether the request carries nothing to merge.
func (r *MergeRequest) Empty() bool {
	return len(r.QIDs()) == 0 && r.Streak3TodayDelta == nil && r.Streak3WrongTodayDelta == nil
}

// MergeResponse mirrors the merged aggregate slice for the submitted qids.
type MergeResponse struct {
	OK                bool                     `json:"ok"`
	Duplicate         bool                     `json:"duplicate,omitempty"`
	Counters          map[string]CounterFamily `json:"counters"`
	Streak3Today      *TodayUniqueSummary      `json:"streak3Today,omitempty"`
	Streak3WrongToday *TodayUniqueSummary      `json:"streak3WrongToday,omitempty"`
}

// StateResponse is the full authoritative aggregate for one identity.
type StateResponse struct {
	OK                bool                     `json:"ok"`
	User              string                   `json:"user"`
	Counters          map[string]CounterFamily `json:"counters"`
	Streak3Today      TodayUniqueSummary       `json:"streak3Today"`
	Streak3WrongToday TodayUniqueSummary       `json:"streak3WrongToday"`
}

// InitRequest is the body of POST /api/sync/init.
type InitRequest struct {
	Force bool `json:"force"`
}

// InitResponse is the bootstrap handshake reply.
type InitResponse struct {
	OK       bool   `json:"ok"`
	User     string `json:"user"`
	Key      string `json:"key"`
	Reissued bool   `json:"reissued"`
}

// Headers shared by client and server.
const (
	HeaderKey  = "X-CSCS-Key"
	HeaderUser = "X-CSCS-User"
)

// API paths.
const (
	PathInit  = "/api/sync/init"
	PathState = "/api/sync/state"
	PathMerge = "/api/sync/merge"
)
