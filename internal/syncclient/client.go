// Package syncclient is the HTTP transport for the sync endpoints.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/example/cscsync/internal/bootstrap"
	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/pkg/models"
)

var (
	// ErrUnauthorized marks 401 replies: missing or unknown session key or identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks 403 replies: session key bound to another identity.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRequest marks 400 replies: the server refused the payload itself.
	ErrBadRequest = errors.New("bad request")
)

// StatusError is a non-2xx reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "sync server replied " + http.StatusText(e.Code) + ": " + strings.TrimSpace(e.Body)
}

// IsProtocolError reports whether err is a rejection that retrying the same
// request will not fix.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrBadRequest)
}

// Client talks to the sync server on behalf of one identity.
type Client struct {
	baseURL        string
	http           *http.Client
	identityHeader string
	identity       string
	log            *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithIdentity sets the ambient identity header the hosting platform would
// normally add to every request.
func WithIdentity(header, identity string) Option {
	return func(c *Client) {
		c.identityHeader = header
		c.identity = identity
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = logger.Named(l, "syncclient") }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger.Named(nil, "syncclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init performs the bootstrap handshake.
func (c *Client) Init(ctx context.Context, force bool) (models.InitResponse, error) {
	var resp models.InitResponse
	err := c.do(ctx, http.MethodPost, models.PathInit, "", models.InitRequest{Force: force}, &resp)
	if err != nil {
		return resp, err
	}
	if !resp.OK || resp.Key == "" {
		return resp, errors.New("init reply missing session key")
	}
	return resp, nil
}

// Handshake adapts Init to a bootstrap.Handshake.
func (c *Client) Handshake(force bool) bootstrap.Handshake {
	return func(ctx context.Context) (bootstrap.Credentials, error) {
		resp, err := c.Init(ctx, force)
		if err != nil {
			return bootstrap.Credentials{}, err
		}
		return bootstrap.Credentials{User: resp.User, Key: resp.Key, Reissued: resp.Reissued}, nil
	}
}

// State fetches the full authoritative aggregate.
func (c *Client) State(ctx context.Context, sess bootstrap.Session) (models.StateResponse, error) {
	var resp models.StateResponse
	if !sess.Valid() {
		return resp, bootstrap.ErrNotReady
	}
	err := c.do(ctx, http.MethodGet, models.PathState, sess.Key, nil, &resp)
	return resp, err
}

// Merge submits a delta payload.
func (c *Client) Merge(ctx context.Context, sess bootstrap.Session, req models.MergeRequest) (models.MergeResponse, error) {
	var resp models.MergeResponse
	if !sess.Valid() {
		return resp, bootstrap.ErrNotReady
	}
	err := c.do(ctx, http.MethodPost, models.PathMerge, sess.Key, req, &resp)
	if err == nil && !resp.OK {
		err = errors.New("merge reply not ok")
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path, key string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identityHeader != "" && c.identity != "" {
		req.Header.Set(c.identityHeader, c.identity)
	}
	if key != "" {
		req.Header.Set(models.HeaderKey, key)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close()

	c.log.Debugw("Sync request",
		logger.FieldMethod, method,
		logger.FieldPath, path,
		logger.FieldStatus, res.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		var serr error = &StatusError{Code: res.StatusCode, Body: string(raw)}
		switch res.StatusCode {
		case http.StatusUnauthorized:
			serr = errors.Mark(serr, ErrUnauthorized)
		case http.StatusForbidden:
			serr = errors.Mark(serr, ErrForbidden)
		case http.StatusBadRequest:
			serr = errors.Mark(serr, ErrBadRequest)
		}
		return serr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s reply", path)
	}
	return nil
}
