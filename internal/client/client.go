package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/quantive/internal/models"
)

// Client is the entry point for applications talking to the Quantive API.
// Requests made through HTTPClient carry the session and renew it on expiry.
type Client struct {
	baseURL string
	session *SessionCache
	auth    *AuthAPI
	renewer *Transport
	http    *http.Client
	log     *zap.SugaredLogger
	now     func() time.Time
}

func New(cfg *Config, log *zap.SugaredLogger) *Client {
	var base http.RoundTripper = http.DefaultTransport
	if cfg.EnableLogging {
		base = &loggingTransport{base: base, log: log}
	}
	return NewWithTransport(cfg, base, log)
}

// NewWithTransport builds a client on top of base, which performs the actual
// network I/O.
func NewWithTransport(cfg *Config, base http.RoundTripper, log *zap.SugaredLogger) *Client {
	session := NewSessionCache()
	auth := NewAuthAPI(cfg.BaseURL, &http.Client{Transport: base, Timeout: cfg.RequestTimeout})
	renewer := NewTransport(base, session, auth, cfg.RequestTimeout, log)

	return &Client{
		baseURL: cfg.BaseURL,
		session: session,
		auth:    auth,
		renewer: renewer,
		http: &http.Client{
			Transport: renewer,
			Timeout:   cfg.RequestTimeout,
		},
		log: log,
		now: time.Now,
	}
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) Result[models.UserResponse] {
	res, err := c.auth.Register(ctx, req)
	if err != nil {
		return Failure[models.UserResponse](err)
	}
	c.startSession(res)
	return Success(res.User)
}

func (c *Client) Login(ctx context.Context, email, password string) Result[models.UserResponse] {
	res, err := c.auth.Login(ctx, models.LoginRequest{Email: email, Password: password})
	if err != nil {
		return Failure[models.UserResponse](err)
	}
	c.startSession(res)
	return Success(res.User)
}

// Logout revokes the current refresh token on the server. The local session is
// cleared whatever the server answers.
//
// Logout does not go through the renewing transport: a renewal rotates the
// refresh token, so after one the request is rebuilt from the renewed session
// instead of replaying the stale token.
func (c *Client) Logout(ctx context.Context) Result[struct{}] {
	snap, ok := c.session.Snapshot()
	if !ok {
		return Success(struct{}{})
	}
	defer c.session.Clear()

	err := c.auth.Logout(ctx, snap.AccessToken, snap.RefreshToken)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		if _, err = c.renewer.renew(ctx, snap.AccessToken); err == nil {
			if snap, ok = c.session.Snapshot(); !ok {
				return Failure[struct{}](ErrUnauthorized)
			}
			err = c.auth.Logout(ctx, snap.AccessToken, snap.RefreshToken)
		}
	}
	return fromCall(struct{}{}, err)
}

// CurrentUser fetches the profile from the server and refreshes the cached copy.
func (c *Client) CurrentUser(ctx context.Context) Result[models.UserResponse] {
	if !c.IsLoggedIn() {
		return Failure[models.UserResponse](ErrNotLoggedIn)
	}

	var out models.MeResponse
	if err := doJSON(ctx, c.http, http.MethodGet, c.baseURL+MePath, nil, &out); err != nil {
		return Failure[models.UserResponse](err)
	}
	c.session.SetUser(out.User)
	return Success(out.User)
}

func (c *Client) IsLoggedIn() bool {
	_, ok := c.session.Snapshot()
	return ok
}

func (c *Client) Session() (Session, bool) {
	return c.session.Snapshot()
}

// HTTPClient returns the authenticated client for calls to other endpoints.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) startSession(res *models.AuthResponse) {
	c.session.Set(Session{
		User:            res.User,
		AccessToken:     res.AccessToken,
		RefreshToken:    res.RefreshToken,
		AccessExpiresAt: c.now().Add(time.Duration(res.ExpiresIn) * time.Millisecond),
	})
	c.log.Infow("Signed in", "userID", res.User.ID)
}
