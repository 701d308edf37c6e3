package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rryowa/quantive/internal/models"
)

const (
	renewKey              = "renew"
	defaultRequestTimeout = 30 * time.Second
)

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error)
}

// Transport attaches the session's access token to every request. On a 401 it
// renews the session once, shared by every request that saw the same expired
// token, and replays the request with the new token.
type Transport struct {
	base      http.RoundTripper
	session   *SessionCache
	refresher Refresher
	timeout   time.Duration
	log       *zap.SugaredLogger
	now       func() time.Time

	renewals singleflight.Group
}

func NewTransport(
	base http.RoundTripper,
	session *SessionCache,
	refresher Refresher,
	timeout time.Duration,
	log *zap.SugaredLogger,
) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Transport{
		base:      base,
		session:   session,
		refresher: refresher,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	snap, ok := t.session.Snapshot()
	if !ok {
		return t.base.RoundTrip(req)
	}

	getBody, err := rewindableBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.send(req, getBody, snap.AccessToken)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	access, err := t.renew(req.Context(), snap.AccessToken)
	if err != nil {
		return nil, err
	}

	// A second 401 goes back to the caller as is.
	return t.send(req, getBody, access)
}

func (t *Transport) send(req *http.Request, getBody func() (io.ReadCloser, error), token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
		out.GetBody = getBody
	}
	out.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(out)
}

// renew waits for the shared renewal or for ctx, whichever comes first.
// Abandoning the wait does not cancel the renewal for the other callers.
func (t *Transport) renew(ctx context.Context, stale string) (string, error) {
	ch := t.renewals.DoChan(renewKey, func() (interface{}, error) {
		return t.refresh(context.WithoutCancel(ctx), stale)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (t *Transport) refresh(ctx context.Context, stale string) (string, error) {
	snap, ok := t.session.Snapshot()
	if !ok {
		return "", ErrUnauthorized
	}
	if snap.AccessToken != stale {
		// Someone else already renewed after our request was sent.
		return snap.AccessToken, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	pair, err := t.refresher.Refresh(ctx, snap.RefreshToken)
	if err != nil {
		t.session.ClearIf(snap.RefreshToken)
		t.log.Warnw("Session renewal failed, session cleared", "error", err)
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	expiresAt := t.now().Add(time.Duration(pair.ExpiresIn) * time.Millisecond)
	if !t.session.UpdateTokens(snap.RefreshToken, pair.AccessToken, pair.RefreshToken, expiresAt) {
		t.log.Warnw("Session changed during renewal, renewed tokens discarded")
		return "", ErrUnauthorized
	}
	t.log.Debugw("Session renewed")
	return pair.AccessToken, nil
}

// rewindableBody returns a function yielding a fresh copy of the request body,
// buffering it when the request cannot replay it itself. The original body is
// closed, as RoundTrip requires.
func rewindableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	if req.GetBody != nil {
		return req.GetBody, nil
	}

	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}, nil
}
