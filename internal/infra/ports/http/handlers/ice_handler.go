package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/RandomTalk/internal/application/config"
	"github.com/qrave1/RandomTalk/internal/infra/appctx"
	"github.com/qrave1/RandomTalk/internal/infra/ports/http/dto"
)

const turnCredentialTTL = time.Hour

type IceHandler struct {
	cfg *config.Config
	now func() time.Time
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg, now: time.Now}
}

// IceServers отдает STUN сервера и, если настроен coturn, TURN с временными кредами
func (h *IceHandler) IceServers(c echo.Context) error {
	servers := make([]webrtc.ICEServer, 0, 2)

	if len(h.cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: h.cfg.STUNServers})
	}

	if h.cfg.CoturnServer.Enabled() {
		turn := webrtc.ICEServer{
			URLs: []string{
				h.cfg.TurnUDPServer.URLs[0],
				h.cfg.TurnTCPServer.URLs[0],
			},
			Username:   h.cfg.TurnUDPServer.Username,
			Credential: h.cfg.TurnUDPServer.Credential,
		}

		if h.cfg.CoturnServer.Secret != "" {
			participantID, _ := appctx.ParticipantID(c.Request().Context())
			turn.Username, turn.Credential = TurnCredentials(
				h.cfg.CoturnServer.Secret,
				string(participantID),
				h.now().Add(turnCredentialTTL),
			)
		}

		servers = append(servers, turn)
	}

	return c.JSON(http.StatusOK, dto.IceServersResponse{IceServers: servers})
}

// TurnCredentials - временные креды coturn (use-auth-secret): username "expiry:id",
// пароль base64(HMAC-SHA1(secret, username))
func TurnCredentials(secret, participantID string, expiresAt time.Time) (string, string) {
	username := fmt.Sprintf("%d", expiresAt.Unix())
	if participantID != "" {
		username += ":" + participantID
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))

	return username, base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
