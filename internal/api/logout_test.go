package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rryowa/quantive/internal/client"
	"github.com/rryowa/quantive/internal/controller"
	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/service"
	"github.com/rryowa/quantive/internal/storage/memory"
	"github.com/rryowa/quantive/internal/util"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// refreshTap remembers every refresh token the server hands out on renewal.
type refreshTap struct {
	base http.RoundTripper

	mu     sync.Mutex
	issued []string
}

func (r *refreshTap) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err != nil || req.URL.Path != client.RefreshPath || resp.StatusCode != http.StatusOK {
		return resp, err
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	var pair models.TokenResponse
	if json.Unmarshal(raw, &pair) == nil {
		r.mu.Lock()
		r.issued = append(r.issued, pair.RefreshToken)
		r.mu.Unlock()
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp, nil
}

func TestClientLogoutAfterAccessExpiryEndsSession(t *testing.T) {
	clock := &testClock{t: time.Now()}
	log := zap.NewNop().Sugar()
	tokens := service.NewTokenService(&testTokenCfg).WithClock(clock.Now)
	svc, err := service.NewAuthService(
		log,
		memory.NewStorage(log),
		tokens,
		&testTokenCfg,
		&util.AuthConfig{BcryptCost: bcrypt.MinCost, RetryBackoff: time.Millisecond},
		service.WithClock(clock.Now),
	)
	require.NoError(t, err)

	a := NewAPI(
		controller.NewController(log, svc),
		log,
		&util.ServerConfig{CORSAllowOrigins: []string{"*"}, GracefulTimeout: time.Second},
		BearerAuthMiddleware(tokens, &testTokenCfg, log),
	)
	require.NoError(t, a.setupRoutes())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	tap := &refreshTap{base: http.DefaultTransport}
	c := client.NewWithTransport(&client.Config{BaseURL: srv.URL, RequestTimeout: 5 * time.Second}, tap, log)
	ctx := context.Background()

	res := c.Register(ctx, registerBody("ada@example.com"))
	require.True(t, res.IsSuccess(), "register: %v", res.Err())

	clock.Advance(testTokenCfg.AccessTTL + time.Minute)

	out := c.Logout(ctx)
	require.True(t, out.IsSuccess(), "logout: %v", out.Err())
	assert.False(t, c.IsLoggedIn())

	tap.mu.Lock()
	issued := append([]string(nil), tap.issued...)
	tap.mu.Unlock()
	require.Len(t, issued, 1)

	rec := doJSON(t, a.Handler(), http.MethodPost, "/api/v1/auth/refresh",
		models.RefreshRequest{RefreshToken: issued[0]}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
}
