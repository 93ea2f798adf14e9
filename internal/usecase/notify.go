package usecase

import (
	"errors"
	"log/slog"

	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/application/metric"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/events"
	"github.com/qrave1/RandomTalk/internal/domain/models"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/memory"
)

// notify доставляет событие на живое соединение участника.
// Отсутствие соединения - не ошибка для отправителя, только предупреждение в лог.
func notify(registry memory.ConnectionRegistry, to models.ParticipantID, event events.Envelope) bool {
	err := registry.Write(to, event)
	metric.RecordRelayedEvent(event.Type, err == nil)

	if err == nil {
		return true
	}

	if errors.Is(err, domain.ErrNotReady) {
		slog.Warn(
			"recipient has no live connection",
			slog.String(constant.ParticipantID, string(to)),
			slog.String(constant.Event, event.Type),
		)
	} else {
		slog.Warn(
			"deliver event",
			slog.Any(constant.Error, err),
			slog.String(constant.ParticipantID, string(to)),
			slog.String(constant.Event, event.Type),
		)
	}

	return false
}
