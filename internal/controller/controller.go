package controller

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rryowa/quantive/internal/models"
	"github.com/rryowa/quantive/internal/service"
	"github.com/rryowa/quantive/internal/util"
)

const ServiceName = "quantive-backend"

// Version is overridden at build time with -ldflags.
var Version = "dev"

type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput, meta models.ClientMeta) (*models.AuthResult, error)
	Login(ctx context.Context, email, password string, meta models.ClientMeta) (*models.AuthResult, error)
	Refresh(ctx context.Context, presented string, meta models.ClientMeta) (*models.TokenPair, error)
	Logout(ctx context.Context, userID int64, presented string, meta models.ClientMeta) error
	Me(ctx context.Context, userID int64) (*models.User, error)
}

type Controller struct {
	zapLogger   *zap.SugaredLogger
	authService AuthService
}

func NewController(logger *zap.SugaredLogger, authService AuthService) *Controller {
	return &Controller{
		zapLogger:   logger,
		authService: authService,
	}
}

// (POST /api/v1/auth/register).
func (c *Controller) Register(ctx echo.Context) error {
	var req models.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	res, err := c.authService.Register(ctx.Request().Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, clientMeta(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, models.NewAuthResponse(res))
}

// (POST /api/v1/auth/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	res, err := c.authService.Login(ctx.Request().Context(), req.Email, req.Password, clientMeta(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.NewAuthResponse(res))
}

// (POST /api/v1/auth/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	var req models.RefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	pair, err := c.authService.Refresh(ctx.Request().Context(), req.RefreshToken, clientMeta(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.NewTokenResponse(pair))
}

// (POST /api/v1/auth/logout).
func (c *Controller) Logout(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return err
	}

	var req models.LogoutRequest
	if err := ctx.Bind(&req); err != nil {
		return util.NewResponseError(http.StatusBadRequest, "Invalid request body")
	}

	if err := c.authService.Logout(ctx.Request().Context(), userID, req.RefreshToken, clientMeta(ctx)); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.MessageResponse{Message: "Logged out successfully"})
}

// (GET /api/v1/users/me).
func (c *Controller) GetCurrentUser(ctx echo.Context) error {
	userID, err := currentUserID(ctx)
	if err != nil {
		return err
	}

	user, err := c.authService.Me(ctx.Request().Context(), userID)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, models.MeResponse{User: models.NewUserResponse(*user)})
}

// (GET /health).
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, models.HealthResponse{
		Status:  "ok",
		Service: ServiceName,
		Version: Version,
	})
}

func currentUserID(ctx echo.Context) (int64, error) {
	userID, ok := ctx.Get(models.MwUserIDKey).(int64)
	if !ok {
		return 0, util.ErrUnauthorized
	}
	return userID, nil
}

func clientMeta(ctx echo.Context) models.ClientMeta {
	return models.ClientMeta{
		IPAddress: ctx.RealIP(),
		UserAgent: ctx.Request().UserAgent(),
	}
}
