package database

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/example/cscsync/pkg/models"
)

// ErrKeyMismatch is returned when a session key does not belong to the caller.
var ErrKeyMismatch = errors.New("session key does not match identity")

// SessionRepository binds identities to session keys. The server is the
// source of truth for that binding.
type SessionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSessionRepository creates a new repository instance
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// GetByIdentity returns the session of identity, or ErrNotFound.
func (r *SessionRepository) GetByIdentity(ctx context.Context, identity string) (*models.SyncSession, error) {
	var s models.SyncSession
	query := r.db.Rebind("SELECT identity, session_key, issued_at, last_seen_at FROM sync_sessions WHERE identity = ?")
	if err := r.db.GetContext(ctx, &s, query, identity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get session")
	}
	return &s, nil
}

// Issue returns the session of identity, minting a key when none exists or
// when force is set. issued reports whether a new key was minted.
func (r *SessionRepository) Issue(ctx context.Context, identity string, force bool) (*models.SyncSession, bool, error) {
	existing, err := r.GetByIdentity(ctx, identity)
	switch {
	case err == nil && !force:
		if err := r.Touch(ctx, identity); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	key, err := newSessionKey()
	if err != nil {
		return nil, false, err
	}
	now := r.now().UTC()
	query := r.db.Rebind(`
		INSERT INTO sync_sessions (identity, session_key, issued_at, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (identity) DO UPDATE SET
			session_key = excluded.session_key,
			issued_at = excluded.issued_at,
			last_seen_at = excluded.last_seen_at`)
	if _, err := r.db.ExecContext(ctx, query, identity, key, now, now); err != nil {
		return nil, false, errors.Wrap(err, "failed to issue session")
	}
	return &models.SyncSession{Identity: identity, Key: key, IssuedAt: now, LastSeenAt: now}, true, nil
}

// Authenticate checks that key is the current key of identity. It returns
// ErrNotFound when identity has no session and ErrKeyMismatch when the key
// differs.
func (r *SessionRepository) Authenticate(ctx context.Context, identity, key string) error {
	s, err := r.GetByIdentity(ctx, identity)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(s.Key), []byte(key)) != 1 {
		return ErrKeyMismatch
	}
	return r.Touch(ctx, identity)
}

// Touch updates last_seen_at.
func (r *SessionRepository) Touch(ctx context.Context, identity string) error {
	query := r.db.Rebind("UPDATE sync_sessions SET last_seen_at = ? WHERE identity = ?")
	if _, err := r.db.ExecContext(ctx, query, r.now().UTC(), identity); err != nil {
		return errors.Wrap(err, "failed to touch session")
	}
	return nil
}

func newSessionKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "failed to generate session key")
	}
	return hex.EncodeToString(b), nil
}
