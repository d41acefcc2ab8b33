package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cscsync/internal/bootstrap"
	"github.com/example/cscsync/pkg/models"
)

const identityHeader = "X-Auth-Request-Email"

type fakeServer struct {
	requests int32
	lastBody models.MergeRequest
	status   int
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(models.PathInit, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.requests, 1)
		user := r.Header.Get(identityHeader)
		if user == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(models.InitResponse{OK: true, User: user, Key: "key-" + user})
	})
	mux.HandleFunc(models.PathMerge, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.requests, 1)
		if f.status != 0 {
			w.WriteHeader(f.status)
			w.Write([]byte(`{"error":"nope"}`))
			return
		}
		assert.Equal(t, "key-a@example.com", r.Header.Get(models.HeaderKey))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		json.NewEncoder(w).Encode(models.MergeResponse{
			OK:       true,
			Counters: map[string]models.CounterFamily{"20250101-1": {CorrectTotal: 9}},
		})
	})
	mux.HandleFunc(models.PathState, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.requests, 1)
		json.NewEncoder(w).Encode(models.StateResponse{OK: true, User: "a@example.com"})
	})
	return mux
}

func setup(t *testing.T, identity string) (*fakeServer, *Client) {
	f := &fakeServer{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return f, New(srv.URL, WithHTTPClient(srv.Client()), WithIdentity(identityHeader, identity))
}

func session(t *testing.T, c *Client) bootstrap.Session {
	sess, err := bootstrap.New(c.Handshake(false)).Await(context.Background())
	require.NoError(t, err)
	return sess
}

func TestInitSendsIdentity(t *testing.T) {
	_, c := setup(t, "a@example.com")
	resp, err := c.Init(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", resp.User)
	assert.Equal(t, "key-a@example.com", resp.Key)
}

func TestInitWithoutIdentityIsUnauthorized(t *testing.T) {
	_, c := setup(t, "")
	_, err := c.Init(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, IsProtocolError(err))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
}

func TestMerge(t *testing.T) {
	f, c := setup(t, "a@example.com")
	sess := session(t, c)

	req := models.MergeRequest{SubmissionID: "s-1"}
	req.SetInt(models.FieldCorrectTotal, "20250101-1", 2)
	resp, err := c.Merge(context.Background(), sess, req)
	require.NoError(t, err)

	assert.Equal(t, int64(9), resp.Counters["20250101-1"].CorrectTotal)
	assert.Equal(t, map[string]int64{"20250101-1": 2}, f.lastBody.CorrectDelta)
	assert.Equal(t, "s-1", f.lastBody.SubmissionID)
}

func TestMergeRejectsUnverifiedSession(t *testing.T) {
	f, c := setup(t, "a@example.com")
	_, err := c.Merge(context.Background(), bootstrap.Session{Key: "guessed"}, models.MergeRequest{})
	assert.True(t, errors.Is(err, bootstrap.ErrNotReady))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.requests))
}

func TestMergeServerErrorIsTransient(t *testing.T) {
	f, c := setup(t, "a@example.com")
	sess := session(t, c)
	f.status = http.StatusServiceUnavailable

	_, err := c.Merge(context.Background(), sess, models.MergeRequest{})
	require.Error(t, err)
	assert.False(t, IsProtocolError(err))
	assert.Contains(t, err.Error(), "Service Unavailable")
}

func TestMergeForbidden(t *testing.T) {
	f, c := setup(t, "a@example.com")
	sess := session(t, c)
	f.status = http.StatusForbidden

	_, err := c.Merge(context.Background(), sess, models.MergeRequest{})
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestState(t *testing.T) {
	_, c := setup(t, "a@example.com")
	resp, err := c.State(context.Background(), session(t, c))
	require.NoError(t, err)
	assert.True(t, resp.OK)
}
