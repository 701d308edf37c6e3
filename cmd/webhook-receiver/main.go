// Command webhook-receiver prints security alerts posted by the server.
// Point SECURITY_WEBHOOK_URL at it during local development.
package main

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/rryowa/quantive/internal/service"
	"github.com/rryowa/quantive/internal/util"
)

func main() {
	logger := util.NewZapLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	addr := os.Getenv("WEBHOOK_RECEIVER_ADDRESS")
	if addr == "" {
		addr = ":9090"
	}

	e := echo.New()
	e.HideBanner = true
	e.POST("/", func(c echo.Context) error {
		var alert service.TokenReuseAlert
		if err := json.NewDecoder(c.Request().Body).Decode(&alert); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Error parsing JSON")
		}

		logger.Warnw("Received security alert",
			"event", alert.Event,
			"userID", alert.UserID,
			"familyID", alert.FamilyID,
			"revoked", alert.RevokedCount,
			"ip", alert.IPAddress,
			"userAgent", alert.UserAgent,
			"detectedAt", alert.DetectedAt,
		)
		return c.NoContent(http.StatusNoContent)
	})

	logger.Infof("Webhook receiver listening on %s", addr)
	if err := e.Start(addr); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
