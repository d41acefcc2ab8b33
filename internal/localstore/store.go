package localstore

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/pkg/models"
)

// Store is the Local Counter Store: typed, best-effort access over a KV.
// Reads never fail (missing or unparsable values yield the zero value) and
// write failures are logged and swallowed.
type Store struct {
	kv  KV
	log *zap.SugaredLogger
}

// New wraps kv.
func New(kv KV, log *zap.SugaredLogger) *Store {
	return &Store{kv: kv, log: logger.Named(log, "localstore")}
}

// GetInt returns a non-negative integer stored at key, or 0.
func (s *Store) GetInt(key string) int64 {
	raw, ok := s.get(key)
	if !ok {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.log.Warnw("Unparsable counter, using 0", logger.FieldKey, key, "raw", raw)
		return 0
	}
	if v < 0 {
		s.log.Warnw("Negative counter, using 0", logger.FieldKey, key, "raw", raw)
		return 0
	}
	return v
}

// SetInt stores v at key. Negative values are stored as 0.
func (s *Store) SetInt(key string, v int64) {
	if v < 0 {
		v = 0
	}
	s.set(key, strconv.FormatInt(v, 10))
}

// GetDay returns the day stamp stored at key, or "".
func (s *Store) GetDay(key string) models.Day {
	raw, ok := s.get(key)
	if !ok {
		return ""
	}
	if _, err := strconv.Atoi(raw); err != nil || len(raw) != len(models.DayLayout) {
		s.log.Warnw("Unparsable day stamp, ignoring", logger.FieldKey, key, "raw", raw)
		return ""
	}
	return models.Day(raw)
}

// SetDay stores a day stamp at key.
func (s *Store) SetDay(key string, d models.Day) {
	s.set(key, string(d))
}

// GetString returns the raw string at key.
func (s *Store) GetString(key string) string {
	v, _ := s.get(key)
	return v
}

// SetString stores a raw string at key.
func (s *Store) SetString(key, v string) {
	s.set(key, v)
}

// GetJSON decodes the value at key into v. It reports false when the key is
// missing or cannot be decoded.
func (s *Store) GetJSON(key string, v any) bool {
	raw, ok := s.get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.log.Warnw("Unparsable JSON value, ignoring", logger.FieldKey, key, logger.FieldError, err)
		return false
	}
	return true
}

// SetJSON encodes v and stores it at key.
func (s *Store) SetJSON(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Warnw("Failed to encode value", logger.FieldKey, key, logger.FieldError, err)
		return
	}
	s.set(key, string(b))
}

// Delete removes key. Failures are logged.
func (s *Store) Delete(key string) {
	if err := s.kv.Delete(key); err != nil {
		s.log.Warnw("Failed to delete key", logger.FieldKey, key, logger.FieldError, err)
	}
}

func (s *Store) get(key string) (string, bool) {
	v, ok, err := s.kv.Get(key)
	if err != nil {
		s.log.Warnw("Local store read failed, using default", logger.FieldKey, key, logger.FieldError, err)
		return "", false
	}
	if !ok {
		s.log.Debugw("Local store miss", logger.FieldKey, key)
	}
	return v, ok
}

func (s *Store) set(key, value string) {
	if err := s.kv.Set(key, value); err != nil {
		s.log.Warnw("Local store write failed", logger.FieldKey, key, logger.FieldError, err)
	}
}

// Current reads the live counter family of qid.
func (s *Store) Current(qid string) models.CounterFamily {
	var c models.CounterFamily
	for _, f := range models.IntFields {
		c.SetInt(f, s.GetInt(CurrentKey(f, qid)))
	}
	c.CorrectStreakMaxDay = s.GetDay(CurrentKey(models.FieldCorrectStreakMaxDay, qid))
	c.WrongStreakMaxDay = s.GetDay(CurrentKey(models.FieldWrongStreakMaxDay, qid))
	return c
}

// SetCurrent writes every field of c. Fields are written one key at a time.
func (s *Store) SetCurrent(qid string, c models.CounterFamily) {
	for _, f := range models.IntFields {
		s.SetInt(CurrentKey(f, qid), c.Int(f))
	}
	if c.CorrectStreakMaxDay != "" {
		s.SetDay(CurrentKey(models.FieldCorrectStreakMaxDay, qid), c.CorrectStreakMaxDay)
	}
	if c.WrongStreakMaxDay != "" {
		s.SetDay(CurrentKey(models.FieldWrongStreakMaxDay, qid), c.WrongStreakMaxDay)
	}
	s.AddQID(qid)
}

// Baseline reads the last-synced additive counters of qid.
func (s *Store) Baseline(qid string) models.CounterFamily {
	var c models.CounterFamily
	for _, f := range models.AdditiveFields {
		c.SetInt(f, s.GetInt(BaselineKey(f, qid)))
	}
	return c
}

// SetBaseline writes one baseline field.
func (s *Store) SetBaseline(qid string, f models.Field, v int64) {
	s.SetInt(BaselineKey(f, qid), v)
}

// Sent reads the max pair last transmitted for the given fields. ok is false
// when nothing has been transmitted yet.
func (s *Store) Sent(qid string, maxField, dayField models.Field) (models.MaxRecord, bool) {
	_, ok := s.get(SentKey(maxField, qid))
	return models.MaxRecord{
		Max: s.GetInt(SentKey(maxField, qid)),
		Day: s.GetDay(SentKey(dayField, qid)),
	}, ok
}

// SetSent records a transmitted max pair.
func (s *Store) SetSent(qid string, maxField, dayField models.Field, rec models.MaxRecord) {
	s.SetInt(SentKey(maxField, qid), rec.Max)
	s.SetDay(SentKey(dayField, qid), rec.Day)
}

// QIDs returns every qid the client has recorded progress for.
func (s *Store) QIDs() []string {
	var qids []string
	s.GetJSON(qidsKey, &qids)
	return qids
}

// AddQID registers qid as known.
func (s *Store) AddQID(qid string) {
	qids := s.QIDs()
	i := sort.SearchStrings(qids, qid)
	if i < len(qids) && qids[i] == qid {
		return
	}
	qids = append(qids, "")
	copy(qids[i+1:], qids[i:])
	qids[i] = qid
	s.SetJSON(qidsKey, qids)
}

// ResetQuestion deletes the correct/wrong total pair of qid. Baselines are
// kept; the guard repairs them on the next cycle.
func (s *Store) ResetQuestion(qid string) {
	s.Delete(CurrentKey(models.FieldCorrectTotal, qid))
	s.Delete(CurrentKey(models.FieldWrongTotal, qid))
}

// TodayDays returns every day with a local day-scoped set of kind, sorted.
func (s *Store) TodayDays(kind models.TodayKind) []models.Day {
	keyPrefix := todayPrefix + string(kind) + ":"
	keys, err := s.kv.Keys(keyPrefix)
	if err != nil {
		s.log.Warnw("Failed to list day-scoped sets", logger.FieldKind, kind, logger.FieldError, err)
		return nil
	}
	days := make([]models.Day, 0, len(keys))
	for _, k := range keys {
		days = append(days, models.Day(strings.TrimPrefix(k, keyPrefix)))
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// SessionKey returns the cached session key and identity.
func (s *Store) SessionKey() (key, user string) {
	return s.GetString(sessionKeyKey), s.GetString(sessionUserKey)
}

// SetSessionKey caches a verified session key.
func (s *Store) SetSessionKey(key, user string) {
	s.SetString(sessionKeyKey, key)
	s.SetString(sessionUserKey, user)
}

// CachedSession returns the cached key when it was issued to identity. An
// empty identity matches any cached user.
func (s *Store) CachedSession(identity string) (key, user string, ok bool) {
	key, user = s.SessionKey()
	if key == "" || (identity != "" && user != identity) {
		return "", "", false
	}
	return key, user, true
}

// ClearSessionKey forgets the cached session so the next handshake asks the
// server again.
func (s *Store) ClearSessionKey() {
	s.Delete(sessionKeyKey)
	s.Delete(sessionUserKey)
}

// PendingKey is where an in-flight submission is parked until confirmed.
func PendingKey() string { return pendingKey }
