package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rryowa/quantive/internal/models"
)

const (
	RegisterPath = "/api/v1/auth/register"
	LoginPath    = "/api/v1/auth/login"
	RefreshPath  = "/api/v1/auth/refresh"
	LogoutPath   = "/api/v1/auth/logout"
	MePath       = "/api/v1/users/me"
)

// AuthAPI calls the unauthenticated endpoints. It must not go through the
// renewing Transport, otherwise a failed refresh would try to refresh itself.
type AuthAPI struct {
	baseURL string
	http    *http.Client
}

func NewAuthAPI(baseURL string, httpClient *http.Client) *AuthAPI {
	return &AuthAPI{baseURL: baseURL, http: httpClient}
}

func (a *AuthAPI) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := doJSON(ctx, a.http, http.MethodPost, a.baseURL+RegisterPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthAPI) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := doJSON(ctx, a.http, http.MethodPost, a.baseURL+LoginPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
	var out models.TokenResponse
	req := models.RefreshRequest{RefreshToken: refreshToken}
	if err := doJSON(ctx, a.http, http.MethodPost, a.baseURL+RefreshPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout sends the given pair as is. The caller decides what to do on a 401,
// because a renewal rotates the refresh token carried in the body.
func (a *AuthAPI) Logout(ctx context.Context, accessToken, refreshToken string) error {
	req := models.LogoutRequest{RefreshToken: refreshToken}
	return doAuthorizedJSON(ctx, a.http, http.MethodPost, a.baseURL+LogoutPath, accessToken, req, nil)
}

// doJSON sends body as JSON and decodes a 2xx response into out. Non-2xx
// responses become *APIError.
func doJSON(ctx context.Context, c *http.Client, method, url string, body, out any) error {
	return doAuthorizedJSON(ctx, c, method, url, "", body, out)
}

func doAuthorizedJSON(ctx context.Context, c *http.Client, method, url, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
