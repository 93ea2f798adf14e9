package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/qrave1/RandomTalk/internal/application/config"
	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/application/metric"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/events"
	"github.com/qrave1/RandomTalk/internal/domain/matching"
	"github.com/qrave1/RandomTalk/internal/domain/models"
	"github.com/qrave1/RandomTalk/internal/domain/output"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/memory"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/postgres/repository"
)

type MatchmakingUsecase interface {
	// Join ставит участника в пул или сразу сводит его с ожидающим.
	// Ошибки валидации возвращаются для клиента; отказ хранилища клиенту не показывается.
	Join(ctx context.Context, participantID models.ParticipantID, handle models.ConnHandle, e events.JoinQueueEvent) (models.MatchResult, error)

	// Leave идемпотентен, клиент всегда получает fast-queue-left
	Leave(ctx context.Context, participantID models.ParticipantID) (bool, error)

	QueueStats() []output.QueueStats
}

type matchmakingUsecase struct {
	queueCfg    config.QueueConfig
	matchingCfg config.MatchingConfig
	clock       memory.Clock

	queues   memory.QueueRepository
	sessions memory.SessionRepository
	registry memory.ConnectionRegistry
	recent   memory.RecentPartnerRepository
	weights  matching.WeightsProvider

	reputationRepo repository.ReputationRepository
	historyRepo    repository.MatchHistoryRepository
}

func NewMatchmakingUsecase(
	queueCfg config.QueueConfig,
	matchingCfg config.MatchingConfig,
	clock memory.Clock,
	queues memory.QueueRepository,
	sessions memory.SessionRepository,
	registry memory.ConnectionRegistry,
	recent memory.RecentPartnerRepository,
	weights matching.WeightsProvider,
	reputationRepo repository.ReputationRepository,
	historyRepo repository.MatchHistoryRepository,
) MatchmakingUsecase {
	if clock == nil {
		clock = memory.RealClock{}
	}

	return &matchmakingUsecase{
		queueCfg:       queueCfg,
		matchingCfg:    matchingCfg,
		clock:          clock,
		queues:         queues,
		sessions:       sessions,
		registry:       registry,
		recent:         recent,
		weights:        weights,
		reputationRepo: reputationRepo,
		historyRepo:    historyRepo,
	}
}

func (m *matchmakingUsecase) Join(
	ctx context.Context,
	participantID models.ParticipantID,
	handle models.ConnHandle,
	e events.JoinQueueEvent,
) (models.MatchResult, error) {
	attrs, err := e.Attributes()
	if err != nil {
		return models.MatchResult{}, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, m.queueCfg.StoreTimeout)
	defer cancel()

	if _, err := m.sessions.FindByParticipant(storeCtx, participantID); err == nil {
		return models.MatchResult{}, domain.NewValidationError("queue", "already in a call")
	} else if !errors.Is(err, domain.ErrNotFound) {
		// Create все равно не даст второй сессии, поэтому продолжаем
		slog.Warn("check active session", slog.Any(constant.Error, err))
	}

	attrs.Reputation, attrs.Premium = m.reputation(ctx, participantID)

	entry := models.QueueEntry{
		ParticipantID: participantID,
		Handle:        handle,
		JoinedAt:      m.clock.Now(),
		Pool:          m.poolKey(attrs),
		Attributes:    attrs,
	}

	// Участник ждет только в одном пуле
	if err := m.queues.LeaveOthers(storeCtx, participantID, entry.Pool); err != nil {
		slog.Warn(
			"leave previous pools",
			slog.Any(constant.Error, err),
			slog.String(constant.ParticipantID, string(participantID)),
		)
	}

	result, err := m.queues.Join(storeCtx, entry, m.plan(entry))
	if err != nil {
		metric.RecordJoinResult("error")

		return models.MatchResult{}, fmt.Errorf("join queue: %w", err)
	}

	metric.RecordJoinResult(result.Kind.String())

	switch result.Kind {
	case models.MatchKindMatched:
		m.onMatched(ctx, entry, result)

	case models.MatchKindQueued, models.MatchKindRequeued:
		if result.Kind == models.MatchKindRequeued {
			slog.Warn(
				"session create failed, waiter requeued",
				slog.Any(constant.Error, result.Cause),
				slog.String(constant.ParticipantID, string(participantID)),
				slog.String(constant.Pool, entry.Pool.String()),
			)
		}

		wait := int(m.queueCfg.WaitPerPosition.Seconds()) * result.Position
		notify(m.registry, participantID, events.QueueJoined(result.Position, wait))

	case models.MatchKindRejected:
		slog.Warn(
			"join rejected",
			slog.String(constant.ParticipantID, string(participantID)),
			slog.String(constant.Pool, entry.Pool.String()),
			slog.String(constant.Reason, result.Reason),
		)
	}

	return result, nil
}

func (m *matchmakingUsecase) onMatched(ctx context.Context, joiner models.QueueEntry, result models.MatchResult) {
	session := result.Session
	waiter := result.Peer

	m.recent.Remember(joiner.ParticipantID, waiter.ParticipantID)
	metric.ObserveMatch(result.Score, m.clock.Now().Sub(waiter.JoinedAt))

	slog.Info(
		"participants matched",
		slog.String(constant.SessionID, session.ID),
		slog.String(constant.ParticipantID, string(joiner.ParticipantID)),
		slog.String(constant.PeerID, string(waiter.ParticipantID)),
		slog.String(constant.Pool, joiner.Pool.String()),
		slog.Int("score", result.Score),
	)

	// Новичок создает offer
	notify(m.registry, joiner.ParticipantID, events.Matched(session.ID, waiter, true))
	notify(m.registry, waiter.ParticipantID, events.Matched(session.ID, joiner, false))

	historyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.queueCfg.StoreTimeout)
	defer cancel()

	err := m.historyRepo.Create(historyCtx, &models.MatchRecord{
		SessionID:    session.ID,
		Pool:         joiner.Pool.String(),
		ParticipantA: session.ParticipantA,
		ParticipantB: session.ParticipantB,
		Score:        result.Score,
		CreatedAt:    session.CreatedAt,
	})
	if err != nil {
		slog.Warn("record match history", slog.Any(constant.Error, err), slog.String(constant.SessionID, session.ID))
	}
}

func (m *matchmakingUsecase) Leave(ctx context.Context, participantID models.ParticipantID) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, m.queueCfg.StoreTimeout)
	defer cancel()

	left, err := m.queues.LeaveAll(storeCtx, participantID)

	notify(m.registry, participantID, events.QueueLeft())

	if err != nil {
		return len(left) > 0, fmt.Errorf("leave queue: %w", err)
	}

	return len(left) > 0, nil
}

func (m *matchmakingUsecase) QueueStats() []output.QueueStats {
	sizes := m.queues.Sizes()

	stats := make([]output.QueueStats, 0, len(sizes))
	for pool, size := range sizes {
		stats = append(stats, output.QueueStats{Pool: pool, Size: size})
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Pool < stats[j].Pool })

	return stats
}

// poolKey: обычные FIFO пулы делятся по языку (и по региону, если включено),
// умные пулы общие на режим - там совместимость решает оценка
func (m *matchmakingUsecase) poolKey(attrs models.Attributes) models.PoolKey {
	key := models.PoolKey{Mode: attrs.QueueType}

	if attrs.QueueType.Smart() {
		return key
	}

	key.Language = attrs.Language

	if m.queueCfg.PartitionByRegion {
		key.Region = attrs.Region
	}

	return key
}

func (m *matchmakingUsecase) plan(joiner models.QueueEntry) memory.JoinPlan {
	eligible := func(candidate models.QueueEntry) bool {
		return candidate.ParticipantID != joiner.ParticipantID &&
			matching.Compatible(joiner.Attributes, candidate.Attributes) &&
			!m.recent.IsRecent(joiner.ParticipantID, candidate.ParticipantID)
	}

	return memory.JoinPlan{
		Select: func(waiters []models.QueueEntry, joiner models.QueueEntry) (int, int) {
			if joiner.Pool.Mode.Smart() {
				return matching.SelectBest(m.weights.Weights(), waiters, joiner, eligible, m.clock.Now())
			}

			return matching.SelectFIFO(waiters, eligible), 0
		},
		Pair: m.pair,
	}
}

// pair выполняется в горутине пула: ожидающий уже извлечен, сессия создается здесь же
func (m *matchmakingUsecase) pair(ctx context.Context, waiter, joiner models.QueueEntry) (models.Session, error) {
	if !m.registry.IsCurrent(waiter.ParticipantID, waiter.Handle) {
		return models.Session{}, fmt.Errorf("waiter %s has stale connection: %w", waiter.ParticipantID, memory.ErrDiscardWaiter)
	}

	if !m.registry.IsCurrent(joiner.ParticipantID, joiner.Handle) {
		return models.Session{}, fmt.Errorf("joiner %s: %w", joiner.ParticipantID, domain.ErrNotReady)
	}

	session, err := m.sessions.Create(ctx, joiner.Pool, waiter.ParticipantID, joiner.ParticipantID)
	if err != nil {
		var busy *domain.BusyError
		if errors.As(err, &busy) && busy.ParticipantID == string(waiter.ParticipantID) {
			return models.Session{}, fmt.Errorf("waiter %s already in a call: %w", waiter.ParticipantID, memory.ErrDiscardWaiter)
		}

		return models.Session{}, err
	}

	// Соединение могло смениться, пока создавалась сессия
	switch {
	case !m.registry.IsCurrent(waiter.ParticipantID, waiter.Handle):
		m.dropSession(ctx, session)
		return models.Session{}, fmt.Errorf("waiter %s disconnected: %w", waiter.ParticipantID, memory.ErrDiscardWaiter)

	case !m.registry.IsCurrent(joiner.ParticipantID, joiner.Handle):
		m.dropSession(ctx, session)
		return models.Session{}, fmt.Errorf("joiner %s disconnected: %w", joiner.ParticipantID, domain.ErrNotReady)
	}

	return session, nil
}

func (m *matchmakingUsecase) dropSession(ctx context.Context, session models.Session) {
	if _, _, err := m.sessions.Delete(ctx, session.ID); err != nil {
		slog.Warn("drop unused session", slog.Any(constant.Error, err), slog.String(constant.SessionID, session.ID))
	}
}

// reputation при недоступной БД возвращает значение по умолчанию
func (m *matchmakingUsecase) reputation(ctx context.Context, participantID models.ParticipantID) (int, bool) {
	ctx, cancel := context.WithTimeout(ctx, m.queueCfg.StoreTimeout)
	defer cancel()

	rep, err := m.reputationRepo.Get(ctx, participantID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn(
				"reputation unavailable, using default",
				slog.Any(constant.Error, err),
				slog.String(constant.ParticipantID, string(participantID)),
			)
		}

		return m.matchingCfg.DefaultReputation, false
	}

	return rep.Score, rep.Premium
}
