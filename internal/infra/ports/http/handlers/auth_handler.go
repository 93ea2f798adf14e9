package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/RandomTalk/internal/application/config"
	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/infra/ports/http/dto"
	"github.com/qrave1/RandomTalk/internal/infra/ports/http/middleware"
	"github.com/qrave1/RandomTalk/internal/usecase"
)

type AuthHandler struct {
	cfg         *config.Config
	authUsecase usecase.AuthUsecase
}

func NewAuthHandler(cfg *config.Config, authUsecase usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{
		cfg:         cfg,
		authUsecase: authUsecase,
	}
}

// Guest выдает анонимный токен; тело запроса необязательно
func (h *AuthHandler) Guest(c echo.Context) error {
	var req dto.GuestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	token, participantID, err := h.authUsecase.GuestToken(req.DeviceID)
	if err != nil {
		if msg, ok := domain.ClientMessage(err); ok && errors.Is(err, domain.ErrValidation) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
		}

		slog.Error("issue guest token", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not create token"})
	}

	ttl := h.authUsecase.TokenTTL()

	cookie := &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Expires:  time.Now().Add(ttl),
		Domain:   middleware.BuildCookieDomain(h.cfg.Domain),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	if !h.cfg.Debug {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}

	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, dto.GuestResponse{
		Token:         token,
		ParticipantID: string(participantID),
		ExpiresIn:     int64(ttl.Seconds()),
	})
}
