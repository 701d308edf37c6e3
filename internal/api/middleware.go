package api

import (
	"strings"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/util"
)

type TokenVerifier interface {
	Verify(token, expectedIssuer, expectedAudience string) (*models.Claims, error)
}

// BearerAuthMiddleware verifies "Authorization: Bearer <token>" and stores the
// user id and claims in the echo context. Every failure is the same 401.
func BearerAuthMiddleware(verifier TokenVerifier, cfg *util.TokenConfig, log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				return util.ErrUnauthorized
			}

			claims, err := verifier.Verify(token, cfg.Issuer, cfg.Audience)
			if err != nil {
				log.Debugw("Bearer token rejected", "reason", err, "uri", c.Request().RequestURI)
				return util.ErrUnauthorized
			}

			c.Set(models.MwUserIDKey, claims.UserID)
			c.Set(models.MwClaimsKey, claims)

			return next(c)
		}
	}
}

func GetLoggerMiddlewareConfig(a *API) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == HealthPath
		},
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogError:     true,
		LogLatency:   true,
		LogRemoteIP:  true,
		HandleError:  true,
		LogUserAgent: true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
				a.log.Warnw("Request", fields...)
			} else {
				a.log.Infow("Request", fields...)
			}
			return nil
		},
	}
}
