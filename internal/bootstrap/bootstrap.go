// Package bootstrap performs the one-time handshake that exchanges the
// ambient identity for a session key.
//
// A Bootstrapper is created once per client lifetime. The first caller of
// Start or Await launches the handshake; every other caller waits on the same
// outcome. The outcome is recorded exactly once and never changes: a failed
// Bootstrapper stays failed, and a new one must be created to try again.
package bootstrap

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/example/cscsync/internal/logger"
)

var (
	// ErrBootstrapFailed wraps every handshake failure.
	ErrBootstrapFailed = errors.New("sync bootstrap failed")
	// ErrNotReady is returned when a Session that did not come from a
	// successful bootstrap is used for an authenticated call.
	ErrNotReady = errors.New("sync bootstrap not ready")
)

// State of a Bootstrapper.
type State int

const (
	Unstarted State = iota
	InFlight
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case InFlight:
		return "in_flight"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Credentials is what the handshake returns.
type Credentials struct {
	User     string
	Key      string
	Reissued bool
}

// Handshake exchanges the ambient identity for credentials.
type Handshake func(ctx context.Context) (Credentials, error)

// Cached returns a handshake that reuses credentials from lookup when it has
// them and calls fallback otherwise.
func Cached(lookup func() (Credentials, bool), fallback Handshake) Handshake {
	return func(ctx context.Context) (Credentials, error) {
		if creds, ok := lookup(); ok && creds.Key != "" {
			return creds, nil
		}
		return fallback(ctx)
	}
}

// Session is a verified session key. Only a Bootstrapper can produce a valid
// Session; the zero value is rejected by authenticated calls.
type Session struct {
	User     string
	Key      string
	Reissued bool
	verified bool
}

// Valid reports whether s came from a successful bootstrap.
func (s Session) Valid() bool {
	return s.verified && s.Key != ""
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(b *Bootstrapper) { b.log = logger.Named(l, "bootstrap") }
}

// OnReady registers a callback run once, before readiness fires, with the
// verified session. It is used to cache the key locally.
func OnReady(fn func(Session)) Option {
	return func(b *Bootstrapper) { b.onReady = fn }
}

// Bootstrapper is a single-assignment future around the handshake.
type Bootstrapper struct {
	handshake Handshake
	onReady   func(Session)
	log       *zap.SugaredLogger

	mu      sync.Mutex
	state   State
	done    chan struct{} // closed once the outcome is known
	ready   chan struct{} // closed only on success
	session Session
	err     error
}

// New creates a Bootstrapper in the Unstarted state.
func New(handshake Handshake, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		handshake: handshake,
		log:       logger.Named(nil, "bootstrap"),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state.
func (b *Bootstrapper) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ready is the readiness signal. It is closed exactly once, when the
// handshake succeeds, and never closed if it fails.
func (b *Bootstrapper) Ready() <-chan struct{} {
	return b.ready
}

// Start launches the handshake if nobody has yet. It does not wait.
// The handshake is not canceled when ctx is.
func (b *Bootstrapper) Start(ctx context.Context) {
	b.mu.Lock()
	if b.state != Unstarted {
		b.mu.Unlock()
		return
	}
	b.state = InFlight
	b.mu.Unlock()

	b.log.Debugw("Starting sync handshake")
	go b.run(context.WithoutCancel(ctx))
}

func (b *Bootstrapper) run(ctx context.Context) {
	creds, err := b.handshake(ctx)
	if err == nil && creds.Key == "" {
		err = errors.New("handshake returned an empty session key")
	}

	if err != nil {
		b.mu.Lock()
		b.state = Failed
		b.err = errors.Mark(errors.Wrap(err, "sync bootstrap"), ErrBootstrapFailed)
		b.mu.Unlock()
		b.log.Warnw("Sync handshake failed", logger.FieldError, err)
		close(b.done)
		return
	}

	sess := Session{User: creds.User, Key: creds.Key, Reissued: creds.Reissued, verified: true}
	if b.onReady != nil {
		b.onReady(sess)
	}

	b.mu.Lock()
	b.state = Ready
	b.session = sess
	b.mu.Unlock()
	b.log.Infow("Sync handshake complete", logger.FieldIdentity, creds.User, "reissued", creds.Reissued)
	close(b.ready)
	close(b.done)
}

// Await starts the handshake if needed and waits for its outcome. ctx only
// bounds the wait; the handshake itself keeps running.
func (b *Bootstrapper) Await(ctx context.Context) (Session, error) {
	b.Start(ctx)
	select {
	case <-b.done:
	case <-ctx.Done():
		return Session{}, errors.Wrap(ctx.Err(), "waiting for sync bootstrap")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return Session{}, b.err
	}
	return b.session, nil
}
