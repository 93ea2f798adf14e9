package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/RandomTalk/internal/application/config"
	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/events"
	"github.com/qrave1/RandomTalk/internal/domain/models"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/memory"
	"github.com/qrave1/RandomTalk/internal/infra/appctx"
	"github.com/qrave1/RandomTalk/internal/usecase"
)

type WebSocketHandler struct {
	cfg      config.WebSocketConfig
	upgrader *websocket.Upgrader

	matchmakingUsecase usecase.MatchmakingUsecase
	signalingUsecase   usecase.SignalingUsecase
	rateLimitUsecase   usecase.RateLimitUsecase

	registry memory.ConnectionRegistry
}

func NewWebSocketHandler(
	cfg *config.Config,
	matchmakingUsecase usecase.MatchmakingUsecase,
	signalingUsecase usecase.SignalingUsecase,
	rateLimitUsecase usecase.RateLimitUsecase,
	registry memory.ConnectionRegistry,
) *WebSocketHandler {
	return &WebSocketHandler{
		cfg: cfg.WebSocket,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		matchmakingUsecase: matchmakingUsecase,
		signalingUsecase:   signalingUsecase,
		rateLimitUsecase:   rateLimitUsecase,
		registry:           registry,
	}
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	participantID, ok := appctx.ParticipantID(ctx)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid participant"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"WebSocket upgrade error",
			slog.Any(constant.Error, err),
		)
		return nil
	}
	defer ws.Close()

	if h.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	handle := h.registry.Add(participantID, ws)

	// Очистка один раз на соединение, при любой причине закрытия
	defer h.signalingUsecase.HandleDisconnect(ctx, participantID, handle)

	if err = h.extendRead(ws); err != nil {
		return nil
	}
	ws.SetPongHandler(func(string) error {
		return h.extendRead(ws)
	})

	done := make(chan struct{})
	defer close(done)

	if h.cfg.PingInterval > 0 {
		go h.pingLoop(ws, participantID, done)
	}

	slog.Debug("participant connected", slog.String(constant.ParticipantID, string(participantID)))

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			h.handleWebsocketError(participantID, err)

			return nil
		}

		// любое входящее сообщение тоже продлевает соединение
		_ = h.extendRead(ws)

		var message events.Message

		if err = json.Unmarshal(msg, &message); err != nil || message.Type == "" {
			h.reply(participantID, handle, "", domain.NewValidationError("", "malformed message"))

			continue
		}

		if err = h.rateLimitUsecase.Allow(ctx, participantID, message.Type); err != nil {
			h.reply(participantID, handle, message.Type, err)

			continue
		}

		if err = h.handleMessage(ctx, participantID, handle, &message); err != nil {
			h.reply(participantID, handle, message.Type, err)
		}
	}
}

func (h *WebSocketHandler) handleMessage(
	ctx context.Context,
	participantID models.ParticipantID,
	handle models.ConnHandle,
	msg *events.Message,
) error {
	switch msg.Type {
	case events.TypeJoinQueue:
		var e events.JoinQueueEvent
		if err := decode(msg, &e); err != nil {
			return err
		}

		if _, err := h.matchmakingUsecase.Join(ctx, participantID, handle, e); err != nil {
			return fmt.Errorf("join queue: %w", err)
		}

	case events.TypeLeaveQueue:
		if _, err := h.matchmakingUsecase.Leave(ctx, participantID); err != nil {
			return fmt.Errorf("leave queue: %w", err)
		}

	case events.TypeSendOffer:
		var e events.SignalEvent
		if err := decode(msg, &e); err != nil {
			return err
		}

		return h.signalingUsecase.SendOffer(ctx, participantID, e)

	case events.TypeSendAnswer:
		var e events.SignalEvent
		if err := decode(msg, &e); err != nil {
			return err
		}

		return h.signalingUsecase.SendAnswer(ctx, participantID, e)

	case events.TypeSendCandidate:
		var e events.SignalEvent
		if err := decode(msg, &e); err != nil {
			return err
		}

		return h.signalingUsecase.SendCandidate(ctx, participantID, e)

	case events.TypeSendMessage:
		var e events.MessageEvent
		if err := decode(msg, &e); err != nil {
			return err
		}

		return h.signalingUsecase.SendMessage(ctx, participantID, e)

	case events.TypeSendReaction:
		var e events.ReactionEvent
		if err := decode(msg, &e); err != nil {
			return err
		}

		return h.signalingUsecase.SendReaction(ctx, participantID, e)

	case events.TypeEndCall:
		var e events.EndCallEvent
		if err := decode(msg, &e); err != nil {
			return err
		}

		return h.signalingUsecase.EndCall(ctx, participantID, e)

	case events.TypeConnectionStatus:
		var e events.ConnectionStatusEvent
		if err := decode(msg, &e); err != nil {
			return err
		}

		return h.signalingUsecase.ConnectionStatus(ctx, participantID, e)

	case events.TypeReportAbuse:
		var e events.ReportEvent
		if err := decode(msg, &e); err != nil {
			return err
		}

		return h.signalingUsecase.ReportAbuse(ctx, participantID, e)

	case events.TypePing:
		if h.registry.IsCurrent(participantID, handle) {
			return h.registry.Write(participantID, events.Pong())
		}

	default:
		return domain.NewValidationError("type", fmt.Sprintf("unknown message type %q", msg.Type))
	}

	return nil
}

func decode(msg *events.Message, v any) error {
	if len(msg.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(msg.Data, v); err != nil {
		return domain.NewValidationError("data", "malformed payload")
	}

	return nil
}

// reply отправляет клиенту error только для ошибок валидации и рейт-лимита; остальное логируется
func (h *WebSocketHandler) reply(participantID models.ParticipantID, handle models.ConnHandle, eventType string, err error) {
	msg, ok := domain.ClientMessage(err)
	if !ok {
		slog.Error(
			"handle message",
			slog.Any(constant.Error, err),
			slog.String(constant.ParticipantID, string(participantID)),
			slog.String(constant.Event, eventType),
		)

		return
	}

	slog.Debug(
		"reject client message",
		slog.Any(constant.Error, err),
		slog.String(constant.ParticipantID, string(participantID)),
		slog.String(constant.Event, eventType),
	)

	// соединение уже заменено переподключением
	if !h.registry.IsCurrent(participantID, handle) {
		return
	}

	if err := h.registry.Write(participantID, events.Error(msg)); err != nil {
		slog.Warn("send error event", slog.Any(constant.Error, err), slog.String(constant.ParticipantID, string(participantID)))
	}
}

func (h *WebSocketHandler) extendRead(ws *websocket.Conn) error {
	if h.cfg.ReadTimeout <= 0 {
		return nil
	}

	return ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
}

func (h *WebSocketHandler) pingLoop(ws *websocket.Conn, participantID models.ParticipantID, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// WriteControl можно вызывать параллельно с остальными записями
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				slog.Debug(
					"ping failed",
					slog.Any(constant.Error, err),
					slog.String(constant.ParticipantID, string(participantID)),
				)
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WebSocketHandler) handleWebsocketError(participantID models.ParticipantID, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("participant disconnected from websocket", slog.String(constant.ParticipantID, string(participantID)))
		default:
			slog.Warn(
				"websocket closed",
				slog.Int("code", closeErr.Code),
				slog.String(constant.ParticipantID, string(participantID)),
			)
		}

		return
	}

	slog.Warn(
		"websocket read",
		slog.Any(constant.Error, err),
		slog.String(constant.ParticipantID, string(participantID)),
	)
}
