package models

import "time"

// SyncSession binds a learner identity to an opaque session key.
type SyncSession struct {
	Identity   string    `json:"identity" db:"identity"`
	Key        string    `json:"key" db:"session_key"`
	IssuedAt   time.Time `json:"issued_at" db:"issued_at"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// AggregateRow is one server-side counter family scoped by identity.
type AggregateRow struct {
	Identity string `json:"identity" db:"identity"`
	QID      string `json:"qid" db:"qid"`
	CounterFamily
	ClientUpdatedAt int64     `json:"client_updated_at" db:"client_updated_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// IdentitySummary is the per-identity rollup used by digests and exports.
type IdentitySummary struct {
	Identity          string `json:"identity" db:"identity"`
	Questions         int    `json:"questions" db:"questions"`
	CorrectTotal      int64  `json:"correct_total" db:"correct_total"`
	WrongTotal        int64  `json:"wrong_total" db:"wrong_total"`
	Streak3Total      int64  `json:"streak3_total" db:"streak3_total"`
	Streak3Today      int    `json:"streak3_today" db:"streak3_today"`
	WrongStreak3Today int    `json:"wrong_streak3_today" db:"wrong_streak3_today"`
}
