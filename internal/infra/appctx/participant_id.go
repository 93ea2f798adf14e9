package appctx

import (
	"context"

	"github.com/qrave1/RandomTalk/internal/domain/models"
)

type ctxKey string

const participantIDKey ctxKey = "participantID"

// WithParticipantID добавляет participantID в контекст
func WithParticipantID(ctx context.Context, id models.ParticipantID) context.Context {
	return context.WithValue(ctx, participantIDKey, id)
}

// ParticipantID извлекает participantID из контекста
func ParticipantID(ctx context.Context) (models.ParticipantID, bool) {
	id, ok := ctx.Value(participantIDKey).(models.ParticipantID)
	return id, ok && id != ""
}
