package metric

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger - зависимость, без которой сервис считается деградировавшим (например *sqlx.DB)
type Pinger interface {
	PingContext(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// NewServer поднимает /metrics и /health на отдельном порту.
// /health отвечает 200 и при недоступной базе, со статусом degraded.
func NewServer(db Pinger) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		defer cancel()

		status := map[string]string{"status": "ok", "postgres": "ok"}

		if err := db.PingContext(ctx); err != nil {
			status["status"] = "degraded"
			status["postgres"] = err.Error()
		}

		return c.JSON(http.StatusOK, status)
	})

	return e
}
