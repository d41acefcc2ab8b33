package localstore

import (
	"github.com/example/cscsync/pkg/models"
)

// Key layout. Everything is namespaced by qid or day so components never
// share a key.
const (
	prefix          = "cscs:"
	qidsKey         = prefix + "qids"
	sessionKeyKey   = prefix + "session:key"
	sessionUserKey  = prefix + "session:user"
	pendingKey      = prefix + "pending"
	currentPrefix   = prefix + "cur:"
	baselinePrefix  = prefix + "base:"
	sentPrefix      = prefix + "sent:"
	todayPrefix     = prefix + "today:"
	todaySentPrefix = prefix + "today-sent:"
	serverPrefix    = prefix + "server:"
)

// CurrentKey holds the live local value of a counter.
func CurrentKey(f models.Field, qid string) string {
	return currentPrefix + string(f) + ":" + qid
}

// BaselineKey holds the last confirmed value of an additive counter.
func BaselineKey(f models.Field, qid string) string {
	return baselinePrefix + string(f) + ":" + qid
}

// SentKey holds the last transmitted value of a max or max-day field.
func SentKey(f models.Field, qid string) string {
	return sentPrefix + string(f) + ":" + qid
}

// TodayKey holds the locally qualified qids of a day-scoped set.
func TodayKey(kind models.TodayKind, day models.Day) string {
	return todayPrefix + string(kind) + ":" + string(day)
}

// TodaySentKey holds the qids of a day-scoped set the server confirmed.
func TodaySentKey(kind models.TodayKind, day models.Day) string {
	return todaySentPrefix + string(kind) + ":" + string(day)
}

// ServerSliceKey holds the last authoritative counters returned for qid.
func ServerSliceKey(qid string) string {
	return serverPrefix + qid
}
