package bootstrap

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockingHandshake(calls *int32, release <-chan struct{}, creds Credentials, err error) Handshake {
	return func(ctx context.Context) (Credentials, error) {
		atomic.AddInt32(calls, 1)
		<-release
		return creds, err
	}
}

func TestSingleFlight(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	b := New(blockingHandshake(&calls, release, Credentials{User: "a@example.com", Key: "k1"}, nil))

	var wg sync.WaitGroup
	sessions := make([]Session, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = b.Await(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return b.State() == InFlight }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := range sessions {
		require.NoError(t, errs[i])
		assert.True(t, sessions[i].Valid())
		assert.Equal(t, "k1", sessions[i].Key)
	}
	assert.Equal(t, Ready, b.State())

	select {
	case <-b.Ready():
	default:
		t.Fatal("readiness signal did not fire")
	}

	// Later callers reuse the outcome.
	_, err := b.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFailureIsSticky(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	close(release)
	b := New(blockingHandshake(&calls, release, Credentials{}, errors.New("401 Unauthorized")))

	_, err := b.Await(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBootstrapFailed))
	assert.Equal(t, Failed, b.State())

	_, err = b.Await(context.Background())
	assert.True(t, errors.Is(err, ErrBootstrapFailed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	select {
	case <-b.Ready():
		t.Fatal("readiness must not fire on failure")
	default:
	}
}

func TestEmptyKeyIsFailure(t *testing.T) {
	b := New(func(ctx context.Context) (Credentials, error) {
		return Credentials{User: "a@example.com"}, nil
	})
	_, err := b.Await(context.Background())
	assert.True(t, errors.Is(err, ErrBootstrapFailed))
}

func TestOnReadyRunsBeforeSignal(t *testing.T) {
	var cached string
	b := New(
		func(ctx context.Context) (Credentials, error) {
			return Credentials{User: "a@example.com", Key: "k2", Reissued: true}, nil
		},
		OnReady(func(s Session) { cached = s.Key }),
	)

	sess, err := b.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, sess.Reissued)
	assert.Equal(t, "k2", cached)
}

func TestAwaitRespectsContextButHandshakeContinues(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	b := New(blockingHandshake(&calls, release, Credentials{User: "a", Key: "k"}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Await(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBootstrapFailed))

	close(release)
	sess, err := b.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k", sess.Key)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestZeroSessionInvalid(t *testing.T) {
	assert.False(t, Session{}.Valid())
	assert.False(t, Session{Key: "forged"}.Valid())
}

func TestCachedCredentialsSkipHandshake(t *testing.T) {
	var calls int32
	fallback := func(context.Context) (Credentials, error) {
		atomic.AddInt32(&calls, 1)
		return Credentials{User: "a@example.com", Key: "fresh"}, nil
	}

	hit := New(Cached(func() (Credentials, bool) {
		return Credentials{User: "a@example.com", Key: "cached"}, true
	}, fallback))
	sess, err := hit.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", sess.Key)
	assert.True(t, sess.Valid())
	assert.Zero(t, atomic.LoadInt32(&calls))

	miss := New(Cached(func() (Credentials, bool) { return Credentials{}, false }, fallback))
	sess, err = miss.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", sess.Key)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
