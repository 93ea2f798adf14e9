package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/RandomTalk/internal/usecase"
)

type QueueHandler struct {
	matchmakingUsecase usecase.MatchmakingUsecase
}

func NewQueueHandler(matchmakingUsecase usecase.MatchmakingUsecase) *QueueHandler {
	return &QueueHandler{matchmakingUsecase: matchmakingUsecase}
}

func (h *QueueHandler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.matchmakingUsecase.QueueStats())
}
