package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/RandomTalk/internal/infra/appctx"
	"github.com/qrave1/RandomTalk/internal/usecase"
)

const CookieName = "jwt"

// JWTAuthMiddleware ищет токен в cookie, в заголовке Authorization или в ?token=.
// Браузерный WebSocket не умеет ставить заголовки, поэтому query параметр тоже принимается.
func JWTAuthMiddleware(authUsecase usecase.AuthUsecase) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFromRequest(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing or malformed jwt"})
			}

			participantID, err := authUsecase.ParseToken(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired jwt"})
			}

			c.SetRequest(
				c.Request().WithContext(
					appctx.WithParticipantID(c.Request().Context(), participantID),
				),
			)

			return next(c)
		}
	}
}

func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	return c.QueryParam("token")
}

// BuildCookieDomain возвращает значение для cookie.Domain или пустую строку, если Domain не нужно задавать.
// host может быть взят из cfg.Domain (со схемой или без).
func BuildCookieDomain(host string) string {
	if i := strings.Index(host, "://"); i != -1 {
		host = host[i+3:]
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	host = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(host, "/")))
	if host == "" || host == "localhost" {
		return ""
	}

	// для IP адресов Domain не указываем
	if ip := net.ParseIP(host); ip != nil {
		return ""
	}

	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return ""
	}

	// api.example.com -> .example.com
	return "." + strings.Join(parts[len(parts)-2:], ".")
}
