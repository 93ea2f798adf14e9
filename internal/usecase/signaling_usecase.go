package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/qrave1/RandomTalk/internal/application/config"
	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/application/metric"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/events"
	"github.com/qrave1/RandomTalk/internal/domain/models"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/memory"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/postgres/repository"
)

// SignalingUsecase - прозрачная пересылка сигналинга между двумя участниками сессии.
// Семантику WebRTC relay не проверяет: повторный или внеочередной offer пересылается как есть.
type SignalingUsecase interface {
	SendOffer(ctx context.Context, senderID models.ParticipantID, e events.SignalEvent) error
	SendAnswer(ctx context.Context, senderID models.ParticipantID, e events.SignalEvent) error
	SendCandidate(ctx context.Context, senderID models.ParticipantID, e events.SignalEvent) error

	SendMessage(ctx context.Context, senderID models.ParticipantID, e events.MessageEvent) error
	SendReaction(ctx context.Context, senderID models.ParticipantID, e events.ReactionEvent) error

	EndCall(ctx context.Context, callerID models.ParticipantID, e events.EndCallEvent) error
	ConnectionStatus(ctx context.Context, senderID models.ParticipantID, e events.ConnectionStatusEvent) error
	ReportAbuse(ctx context.Context, reporterID models.ParticipantID, e events.ReportEvent) error

	// HandleDisconnect вызывается один раз на закрытие соединения.
	// Если участник уже переподключился с новым handle, ничего не делает.
	HandleDisconnect(ctx context.Context, participantID models.ParticipantID, handle models.ConnHandle)

	// HandleExpired - хук хранилища сессий для сессий, истекших по TTL
	HandleExpired(session models.Session)
}

type signalingUsecase struct {
	queueCfg    config.QueueConfig
	matchingCfg config.MatchingConfig
	clock       memory.Clock

	sessions memory.SessionRepository
	queues   memory.QueueRepository
	registry memory.ConnectionRegistry

	historyRepo    repository.MatchHistoryRepository
	reportRepo     repository.ReportRepository
	reputationRepo repository.ReputationRepository
}

func NewSignalingUsecase(
	queueCfg config.QueueConfig,
	matchingCfg config.MatchingConfig,
	clock memory.Clock,
	sessions memory.SessionRepository,
	queues memory.QueueRepository,
	registry memory.ConnectionRegistry,
	historyRepo repository.MatchHistoryRepository,
	reportRepo repository.ReportRepository,
	reputationRepo repository.ReputationRepository,
) SignalingUsecase {
	if clock == nil {
		clock = memory.RealClock{}
	}

	return &signalingUsecase{
		queueCfg:       queueCfg,
		matchingCfg:    matchingCfg,
		clock:          clock,
		sessions:       sessions,
		queues:         queues,
		registry:       registry,
		historyRepo:    historyRepo,
		reportRepo:     reportRepo,
		reputationRepo: reputationRepo,
	}
}

type signalStore func(ctx context.Context, id string, sender models.ParticipantID, data json.RawMessage) (models.Session, error)

func (s *signalingUsecase) SendOffer(ctx context.Context, senderID models.ParticipantID, e events.SignalEvent) error {
	return s.relaySignal(ctx, senderID, e, events.TypeOffer, s.sessions.SetOffer)
}

func (s *signalingUsecase) SendAnswer(ctx context.Context, senderID models.ParticipantID, e events.SignalEvent) error {
	return s.relaySignal(ctx, senderID, e, events.TypeAnswer, s.sessions.SetAnswer)
}

func (s *signalingUsecase) SendCandidate(ctx context.Context, senderID models.ParticipantID, e events.SignalEvent) error {
	return s.relaySignal(ctx, senderID, e, events.TypeCandidate, s.sessions.AddCandidate)
}

func (s *signalingUsecase) relaySignal(
	ctx context.Context,
	senderID models.ParticipantID,
	e events.SignalEvent,
	signalType string,
	store signalStore,
) error {
	if err := e.Validate(signalType); err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.queueCfg.StoreTimeout)
	defer cancel()

	peerID, ok, err := s.peerOf(storeCtx, senderID, e.SessionID, signalType)
	if !ok || err != nil {
		return err
	}

	if _, err := store(storeCtx, e.SessionID, senderID, e.Data); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logMissingSession(senderID, e.SessionID, signalType)
			return nil
		}

		// Пересылка важнее хранения: собеседник все равно получит сигнал
		slog.Warn(
			"store signal",
			slog.Any(constant.Error, err),
			slog.String(constant.SessionID, e.SessionID),
			slog.String(constant.Event, signalType),
		)
	}

	notify(s.registry, peerID, events.Signal(signalType, e.SessionID, e.Data))

	return nil
}

func (s *signalingUsecase) SendMessage(ctx context.Context, senderID models.ParticipantID, e events.MessageEvent) error {
	e, err := e.Sanitized()
	if err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.queueCfg.StoreTimeout)
	defer cancel()

	peerID, ok, err := s.peerOf(storeCtx, senderID, e.SessionID, events.TypeMessage)
	if !ok || err != nil {
		return err
	}

	if e.Timestamp == 0 {
		e.Timestamp = s.clock.Now().UnixMilli()
	}

	notify(s.registry, peerID, events.ChatMessage(e))

	return nil
}

func (s *signalingUsecase) SendReaction(ctx context.Context, senderID models.ParticipantID, e events.ReactionEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.queueCfg.StoreTimeout)
	defer cancel()

	peerID, ok, err := s.peerOf(storeCtx, senderID, e.SessionID, events.TypeReaction)
	if !ok || err != nil {
		return err
	}

	if e.Timestamp == 0 {
		e.Timestamp = s.clock.Now().UnixMilli()
	}

	notify(s.registry, peerID, events.Reaction(e))

	return nil
}

func (s *signalingUsecase) EndCall(ctx context.Context, callerID models.ParticipantID, e events.EndCallEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.queueCfg.StoreTimeout)
	defer cancel()

	peerID, ok, err := s.peerOf(storeCtx, callerID, e.SessionID, events.TypeEndCall)
	if !ok || err != nil {
		return err
	}

	session, removed, err := s.sessions.Delete(storeCtx, e.SessionID)
	if err != nil {
		slog.Warn("delete session", slog.Any(constant.Error, err), slog.String(constant.SessionID, e.SessionID))
		return nil
	}

	// Сессию уже закрыла другая сторона или отключение
	if !removed {
		return nil
	}

	reason := models.EndReasonEnded
	if e.WasSkipped {
		reason = models.EndReasonSkipped
	}

	notify(s.registry, peerID, events.CallEnded(session.ID, e.WasSkipped))
	s.finish(ctx, session, reason)

	return nil
}

func (s *signalingUsecase) ConnectionStatus(ctx context.Context, senderID models.ParticipantID, e events.ConnectionStatusEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.queueCfg.StoreTimeout)
	defer cancel()

	if _, ok, err := s.peerOf(storeCtx, senderID, e.SessionID, events.TypeConnectionStatus); !ok || err != nil {
		return err
	}

	metric.RecordConnectionStatus(e.Status)

	slog.Info(
		"webrtc connection status",
		slog.String(constant.SessionID, e.SessionID),
		slog.String(constant.ParticipantID, string(senderID)),
		slog.String(constant.State, e.Status),
	)

	if e.Status != events.ConnectionStatusConnected {
		return nil
	}

	if err := s.historyRepo.MarkConnected(storeCtx, e.SessionID, s.clock.Now()); err != nil {
		slog.Warn("mark match connected", slog.Any(constant.Error, err), slog.String(constant.SessionID, e.SessionID))
	}

	return nil
}

// ReportAbuse сохраняет жалобу на собеседника по истории пар и снижает ему репутацию.
// Сессия к этому моменту может быть уже закрыта.
func (s *signalingUsecase) ReportAbuse(ctx context.Context, reporterID models.ParticipantID, e events.ReportEvent) error {
	e, err := e.Sanitized()
	if err != nil {
		return err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.queueCfg.StoreTimeout)
	defer cancel()

	record, err := s.historyRepo.GetBySessionID(storeCtx, e.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logMissingSession(reporterID, e.SessionID, events.TypeReportAbuse)
			return nil
		}

		slog.Warn("load match for report", slog.Any(constant.Error, err), slog.String(constant.SessionID, e.SessionID))
		return nil
	}

	reportedID, ok := record.Peer(reporterID)
	if !ok {
		return domain.NewValidationError("sessionId", "not a participant of this session")
	}

	report := &models.AbuseReport{
		SessionID: e.SessionID,
		Reporter:  reporterID,
		Reported:  reportedID,
		Reason:    e.Reason,
	}

	created, err := s.reportRepo.Create(storeCtx, report)
	if err != nil {
		slog.Warn("save abuse report", slog.Any(constant.Error, err), slog.String(constant.SessionID, e.SessionID))
		return nil
	}

	// Повторная жалоба на ту же сессию репутацию не меняет
	if !created {
		return nil
	}

	rep, err := s.reputationRepo.Adjust(storeCtx, reportedID, s.matchingCfg.DefaultReputation, -s.matchingCfg.ReportPenalty)
	if err != nil {
		slog.Warn("lower reputation", slog.Any(constant.Error, err), slog.String(constant.PeerID, string(reportedID)))
		return nil
	}

	slog.Info(
		"abuse reported",
		slog.String(constant.SessionID, e.SessionID),
		slog.String(constant.ParticipantID, string(reporterID)),
		slog.String(constant.PeerID, string(reportedID)),
		slog.Int("reputation", rep.Score),
	)

	return nil
}

func (s *signalingUsecase) HandleDisconnect(ctx context.Context, participantID models.ParticipantID, handle models.ConnHandle) {
	if !s.registry.Remove(participantID, handle) {
		slog.Debug(
			"stale connection closed, participant already reconnected",
			slog.String(constant.ParticipantID, string(participantID)),
		)

		return
	}

	// Контекст запроса к этому моменту уже отменен
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.queueCfg.StoreTimeout)
	defer cancel()

	if _, err := s.queues.LeaveAll(ctx, participantID); err != nil {
		slog.Warn("leave pools on disconnect", slog.Any(constant.Error, err), slog.String(constant.ParticipantID, string(participantID)))
	}

	session, err := s.sessions.FindByParticipant(ctx, participantID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("find session on disconnect", slog.Any(constant.Error, err), slog.String(constant.ParticipantID, string(participantID)))
		}

		return
	}

	ended, removed, err := s.sessions.Delete(ctx, session.ID)
	if err != nil {
		slog.Warn("delete session on disconnect", slog.Any(constant.Error, err), slog.String(constant.SessionID, session.ID))
		return
	}

	// Собеседник отключился одновременно и уже закрыл сессию
	if !removed {
		return
	}

	if peerID, ok := ended.Peer(participantID); ok {
		notify(s.registry, peerID, events.PeerDisconnected(ended.ID))
	}

	s.finish(ctx, ended, models.EndReasonDisconnected)
}

// HandleExpired: клиентов не уведомляем, p2p звонок может продолжаться и без сигналинга
func (s *signalingUsecase) HandleExpired(session models.Session) {
	s.finish(context.Background(), session, models.EndReasonExpired)
}

func (s *signalingUsecase) finish(ctx context.Context, session models.Session, reason models.EndReason) {
	metric.RecordSessionEnded(string(reason))

	slog.Info(
		"session ended",
		slog.String(constant.SessionID, session.ID),
		slog.String(constant.Reason, string(reason)),
	)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.queueCfg.StoreTimeout)
	defer cancel()

	if err := s.historyRepo.Finish(ctx, session.ID, reason, s.clock.Now()); err != nil {
		slog.Warn("finish match history", slog.Any(constant.Error, err), slog.String(constant.SessionID, session.ID))
	}
}

// peerOf находит собеседника отправителя.
// Отсутствующая сессия - штатная гонка с отключением: ok=false без ошибки.
func (s *signalingUsecase) peerOf(
	ctx context.Context,
	senderID models.ParticipantID,
	sessionID string,
	eventType string,
) (models.ParticipantID, bool, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logMissingSession(senderID, sessionID, eventType)
			return "", false, nil
		}

		slog.Warn(
			"load session",
			slog.Any(constant.Error, err),
			slog.String(constant.SessionID, sessionID),
			slog.String(constant.Event, eventType),
		)

		return "", false, nil
	}

	peerID, ok := session.Peer(senderID)
	if !ok {
		return "", false, domain.NewValidationError("sessionId", "not a participant of this session")
	}

	return peerID, true, nil
}

func (s *signalingUsecase) logMissingSession(senderID models.ParticipantID, sessionID, eventType string) {
	slog.Debug(
		"session not found, ignoring",
		slog.String(constant.SessionID, sessionID),
		slog.String(constant.ParticipantID, string(senderID)),
		slog.String(constant.Event, eventType),
	)
}
