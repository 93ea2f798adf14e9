package server

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/qrave1/RandomTalk/internal/infra/ports/http/handlers"
	"github.com/qrave1/RandomTalk/internal/infra/ports/http/middleware"
	"github.com/qrave1/RandomTalk/internal/usecase"
)

func New(
	authUsecase usecase.AuthUsecase,
	authHandler *handlers.AuthHandler,
	iceHandler *handlers.IceHandler,
	queueHandler *handlers.QueueHandler,
	wsHandler *handlers.WebSocketHandler,
) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	api := e.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/guest", authHandler.Guest)
		}

		v1 := api.Group("/v1")
		v1.Use(middleware.JWTAuthMiddleware(authUsecase))
		{
			v1.GET("/ice", iceHandler.IceServers)

			v1.GET("/queues", queueHandler.Stats)

			v1.GET("/ws", wsHandler.Handle)
		}
	}

	return e
}
