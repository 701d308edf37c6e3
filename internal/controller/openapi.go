package controller

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"

	"github.com/rryowa/quantive/internal/models"
)

//go:embed openapi.yaml
var openapiSpec []byte

// GetSwagger parses and validates the embedded OpenAPI document.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := swagger.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	// Secured routes are wrapped with the bearer middleware by RegisterHandlers,
	// which assumes this scheme is the one the document declares.
	if _, ok := swagger.Components.SecuritySchemes[models.MwSchemeBearerAuth]; !ok {
		return nil, fmt.Errorf("openapi document has no %s security scheme", models.MwSchemeBearerAuth)
	}
	return swagger, nil
}

// RegisterHandlers mounts the documented routes on g. secured wraps the routes
// that require a bearer token.
func RegisterHandlers(g *echo.Group, c *Controller, secured echo.MiddlewareFunc) {
	g.POST("/auth/register", c.Register)
	g.POST("/auth/login", c.Login)
	g.POST("/auth/refresh", c.Refresh)
	g.POST("/auth/logout", c.Logout, secured)
	g.GET("/users/me", c.GetCurrentUser, secured)
}
