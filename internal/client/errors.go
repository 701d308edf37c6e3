package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rryowa/quantive/internal/models"
)

var (
	// ErrUnauthorized means the session could not be renewed and was cleared.
	ErrUnauthorized = errors.New("session expired, sign in again")
	ErrNotLoggedIn  = errors.New("not logged in")
)

const maxErrorBody = 64 << 10

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr.Message = err.Error()
		return apiErr
	}

	var envelope models.ErrorResponse
	if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
		apiErr.Code = envelope.Error
		apiErr.Message = envelope.Message
		return apiErr
	}
	apiErr.Message = string(raw)
	return apiErr
}
