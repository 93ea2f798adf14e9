package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qrave1/RandomTalk/internal/application/config"
	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/application/metric"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/events"
	"github.com/qrave1/RandomTalk/internal/domain/models"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/memory"
)

type RateLimitUsecase interface {
	// Allow возвращает domain.ErrRateLimited, если участник превысил лимит действия в текущем окне.
	// Действия без лимита всегда разрешены.
	Allow(ctx context.Context, participantID models.ParticipantID, action string) error
}

type rateLimitUsecase struct {
	cfg    config.RateLimitConfig
	limits map[string]int

	repo memory.RateLimitRepository
}

func NewRateLimitUsecase(cfg config.RateLimitConfig, repo memory.RateLimitRepository) RateLimitUsecase {
	return &rateLimitUsecase{
		cfg: cfg,
		limits: map[string]int{
			events.TypeJoinQueue:        cfg.JoinQueue,
			events.TypeLeaveQueue:       cfg.LeaveQueue,
			events.TypeSendOffer:        cfg.Offer,
			events.TypeSendAnswer:       cfg.Answer,
			events.TypeSendCandidate:    cfg.Candidate,
			events.TypeSendMessage:      cfg.Message,
			events.TypeSendReaction:     cfg.Reaction,
			events.TypeEndCall:          cfg.EndCall,
			events.TypeConnectionStatus: cfg.ConnectionStatus,
			events.TypeReportAbuse:      cfg.Report,
		},
		repo: repo,
	}
}

func (r *rateLimitUsecase) Allow(ctx context.Context, participantID models.ParticipantID, action string) error {
	limit, ok := r.limits[action]
	if !ok || limit <= 0 {
		return nil
	}

	count, err := r.repo.Incr(ctx, string(participantID)+":"+action, r.cfg.Window)
	if err != nil {
		// Недоступный счетчик не должен блокировать сигналинг
		slog.Warn(
			"rate limit store failed, allowing",
			slog.Any(constant.Error, err),
			slog.String(constant.ParticipantID, string(participantID)),
			slog.String(constant.Event, action),
		)

		return nil
	}

	if count > limit {
		metric.RecordRateLimited(action)

		return fmt.Errorf("%s: %d of %d per %s: %w", action, count, limit, r.cfg.Window, domain.ErrRateLimited)
	}

	return nil
}
