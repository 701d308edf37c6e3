package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/service"
	"github.com/rryowa/quantive/internal/util"
)

const internalErrorMessage = "An unexpected error occurred"

// ErrorHandler renders every error as the {error, message, status} envelope.
// Causes of 5xx responses are logged and never sent to the client.
func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := classifyError(err)
		if status >= http.StatusInternalServerError {
			log.Errorw("Request failed", "error", err, "uri", c.Request().RequestURI)
			message = internalErrorMessage
		}

		body := models.ErrorResponse{
			Error:   http.StatusText(status),
			Message: message,
			Status:  status,
		}
		if err := c.JSON(status, body); err != nil {
			log.Errorw("failed to write json response", "error", err)
		}
	}
}

func classifyError(err error) (int, string) {
	var (
		respErr util.ResponseError
		valErr  *service.ValidationError
		httpErr *echo.HTTPError
	)

	switch {
	case errors.As(err, &respErr):
		return respErr.Status, respErr.Msg
	case errors.As(err, &valErr):
		return http.StatusBadRequest, valErr.Error()
	case errors.Is(err, service.ErrDuplicateEmail):
		return http.StatusConflict, "An account with this email already exists"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, service.ErrTokenReuseDetected):
		return http.StatusUnauthorized, "Refresh token has already been used"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid or expired refresh token"
	case errors.Is(err, service.ErrSignatureInvalid),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrAudienceMismatch):
		return http.StatusUnauthorized, util.ErrUnauthorized.Msg
	case errors.As(err, &httpErr):
		return httpErr.Code, fmt.Sprint(httpErr.Message)
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}
