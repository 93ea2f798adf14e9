package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/RandomTalk/internal/application/config"
	"github.com/qrave1/RandomTalk/internal/application/metric"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/models"
)

// SessionRepository хранит активные пары. Каждое поле (offer, answer, кандидаты)
// живет по своему TTL, а TTL самой сессии удаляет ее целиком независимо от активности.
type SessionRepository interface {
	Create(ctx context.Context, pool models.PoolKey, a, b models.ParticipantID) (models.Session, error)
	Get(ctx context.Context, sessionID string) (models.Session, error)
	FindByParticipant(ctx context.Context, participantID models.ParticipantID) (models.Session, error)

	SetOffer(ctx context.Context, sessionID string, sender models.ParticipantID, data json.RawMessage) (models.Session, error)
	SetAnswer(ctx context.Context, sessionID string, sender models.ParticipantID, data json.RawMessage) (models.Session, error)
	AddCandidate(ctx context.Context, sessionID string, sender models.ParticipantID, data json.RawMessage) (models.Session, error)

	// Delete идемпотентен: bool сообщает, удалил ли сессию именно этот вызов
	Delete(ctx context.Context, sessionID string) (models.Session, bool, error)

	// OnExpire регистрирует хук, вызываемый для сессий, удаленных по TTL
	OnExpire(fn func(models.Session))

	Count() int
	Close()
}

type sessionRepository struct {
	cfg   config.SessionConfig
	clock Clock
	actor *actor

	// Поля ниже принадлежат горутине актора
	sessions      map[string]*models.Session
	byParticipant map[models.ParticipantID]string
	expireHook    func(models.Session)

	count atomic.Int64
}

func NewSessionRepository(cfg config.SessionConfig, clock Clock) SessionRepository {
	if clock == nil {
		clock = RealClock{}
	}

	r := &sessionRepository{
		cfg:           cfg,
		clock:         clock,
		sessions:      make(map[string]*models.Session),
		byParticipant: make(map[models.ParticipantID]string),
	}

	r.actor = newActor(cfg.SweepInterval, r.sweep)

	return r
}

func (r *sessionRepository) Create(
	ctx context.Context,
	pool models.PoolKey,
	a, b models.ParticipantID,
) (models.Session, error) {
	if a == "" || b == "" || a == b {
		return models.Session{}, domain.NewValidationError("participants", "session needs two distinct participants")
	}

	var (
		created models.Session
		opErr   error
	)

	err := r.actor.call(ctx, func() {
		now := r.clock.Now()

		for _, p := range []models.ParticipantID{a, b} {
			if id, ok := r.byParticipant[p]; ok {
				if _, live := r.lookup(id, now); live {
					opErr = &domain.BusyError{ParticipantID: string(p)}
					return
				}
			}
		}

		if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
			opErr = fmt.Errorf("%w: session capacity reached", domain.ErrStoreUnavailable)
			return
		}

		s := &models.Session{
			ID:           uuid.NewString(),
			Pool:         pool,
			ParticipantA: a,
			ParticipantB: b,
			CreatedAt:    now,
			ExpiresAt:    now.Add(r.cfg.TTL),
			State:        models.SessionStateMatched,
		}

		r.sessions[s.ID] = s
		r.byParticipant[a] = s.ID
		r.byParticipant[b] = s.ID
		r.updateCount()

		created = s.Clone()
	})
	if err != nil {
		metric.RecordStoreError("session", "create")
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}

	if opErr != nil {
		return models.Session{}, fmt.Errorf("create session: %w", opErr)
	}

	return created, nil
}

func (r *sessionRepository) Get(ctx context.Context, sessionID string) (models.Session, error) {
	var (
		found models.Session
		ok    bool
	)

	err := r.actor.call(ctx, func() {
		var s *models.Session
		if s, ok = r.lookup(sessionID, r.clock.Now()); ok {
			found = s.Clone()
		}
	})
	if err != nil {
		metric.RecordStoreError("session", "get")
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}

	if !ok {
		return models.Session{}, fmt.Errorf("get session %s: %w", sessionID, domain.ErrNotFound)
	}

	return found, nil
}

func (r *sessionRepository) FindByParticipant(ctx context.Context, participantID models.ParticipantID) (models.Session, error) {
	var (
		found models.Session
		ok    bool
	)

	err := r.actor.call(ctx, func() {
		id, exists := r.byParticipant[participantID]
		if !exists {
			return
		}

		var s *models.Session
		if s, ok = r.lookup(id, r.clock.Now()); ok {
			found = s.Clone()
		}
	})
	if err != nil {
		metric.RecordStoreError("session", "find")
		return models.Session{}, fmt.Errorf("find session: %w", err)
	}

	if !ok {
		return models.Session{}, fmt.Errorf("find session of %s: %w", participantID, domain.ErrNotFound)
	}

	return found, nil
}

func (r *sessionRepository) SetOffer(
	ctx context.Context,
	sessionID string,
	sender models.ParticipantID,
	data json.RawMessage,
) (models.Session, error) {
	return r.update(ctx, "set offer", sessionID, sender, func(s *models.Session, now time.Time) {
		s.Offer = &models.SignalPayload{
			Data:      cloneRaw(data),
			Sender:    sender,
			ExpiresAt: now.Add(r.cfg.OfferTTL),
		}
		s.State = models.SessionStateOfferSent
	})
}

func (r *sessionRepository) SetAnswer(
	ctx context.Context,
	sessionID string,
	sender models.ParticipantID,
	data json.RawMessage,
) (models.Session, error) {
	return r.update(ctx, "set answer", sessionID, sender, func(s *models.Session, now time.Time) {
		s.Answer = &models.SignalPayload{
			Data:      cloneRaw(data),
			Sender:    sender,
			ExpiresAt: now.Add(r.cfg.AnswerTTL),
		}
		s.State = models.SessionStateAnswerSent
	})
}

func (r *sessionRepository) AddCandidate(
	ctx context.Context,
	sessionID string,
	sender models.ParticipantID,
	data json.RawMessage,
) (models.Session, error) {
	return r.update(ctx, "add candidate", sessionID, sender, func(s *models.Session, now time.Time) {
		candidate := models.SignalPayload{
			Data:      cloneRaw(data),
			Sender:    sender,
			ExpiresAt: now.Add(r.cfg.CandidateTTL),
		}

		if sender == s.ParticipantA {
			s.CandidatesA = appendBounded(s.CandidatesA, candidate, r.cfg.MaxCandidatesPerSide)
		} else {
			s.CandidatesB = appendBounded(s.CandidatesB, candidate, r.cfg.MaxCandidatesPerSide)
		}

		s.State = models.SessionStateICEExchanging
	})
}

func (r *sessionRepository) update(
	ctx context.Context,
	op string,
	sessionID string,
	sender models.ParticipantID,
	mutate func(s *models.Session, now time.Time),
) (models.Session, error) {
	var (
		updated models.Session
		ok      bool
	)

	err := r.actor.call(ctx, func() {
		now := r.clock.Now()

		s, live := r.lookup(sessionID, now)
		if !live || !s.Has(sender) {
			return
		}

		mutate(s, now)

		ok = true
		updated = s.Clone()
	})
	if err != nil {
		metric.RecordStoreError("session", op)
		return models.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		return models.Session{}, fmt.Errorf("%s %s: %w", op, sessionID, domain.ErrNotFound)
	}

	return updated, nil
}

func (r *sessionRepository) Delete(ctx context.Context, sessionID string) (models.Session, bool, error) {
	var (
		deleted models.Session
		ok      bool
	)

	err := r.actor.call(ctx, func() {
		var s *models.Session
		if s, ok = r.lookup(sessionID, r.clock.Now()); !ok {
			return
		}

		r.remove(s)

		deleted = s.Clone()
		deleted.State = models.SessionStateEnded
	})
	if err != nil {
		metric.RecordStoreError("session", "delete")
		return models.Session{}, false, fmt.Errorf("delete session: %w", err)
	}

	return deleted, ok, nil
}

func (r *sessionRepository) OnExpire(fn func(models.Session)) {
	_ = r.actor.call(context.Background(), func() {
		r.expireHook = fn
	})
}

func (r *sessionRepository) Count() int {
	return int(r.count.Load())
}

func (r *sessionRepository) Close() {
	r.actor.stop()
}

// lookup возвращает живую сессию; истекшая удаляется сразу, а поля с истекшим TTL вычищаются
func (r *sessionRepository) lookup(sessionID string, now time.Time) (*models.Session, bool) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}

	if !now.Before(s.ExpiresAt) {
		r.expire(s)
		return nil, false
	}

	pruneFields(s, now)

	return s, true
}

func (r *sessionRepository) sweep() {
	now := r.clock.Now()

	for _, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			r.expire(s)
			continue
		}

		pruneFields(s, now)
	}
}

func (r *sessionRepository) expire(s *models.Session) {
	r.remove(s)

	if r.expireHook == nil {
		return
	}

	expired := s.Clone()
	expired.State = models.SessionStateEnded

	// хук может обращаться к хранилищу, поэтому вызывается вне горутины актора
	go r.expireHook(expired)
}

func (r *sessionRepository) remove(s *models.Session) {
	delete(r.sessions, s.ID)

	if r.byParticipant[s.ParticipantA] == s.ID {
		delete(r.byParticipant, s.ParticipantA)
	}

	if r.byParticipant[s.ParticipantB] == s.ID {
		delete(r.byParticipant, s.ParticipantB)
	}

	r.updateCount()
}

func (r *sessionRepository) updateCount() {
	r.count.Store(int64(len(r.sessions)))
	metric.SetSessionsActive(len(r.sessions))
}

func pruneFields(s *models.Session, now time.Time) {
	if s.Offer != nil && !now.Before(s.Offer.ExpiresAt) {
		s.Offer = nil
	}

	if s.Answer != nil && !now.Before(s.Answer.ExpiresAt) {
		s.Answer = nil
	}

	s.CandidatesA = pruneCandidates(s.CandidatesA, now)
	s.CandidatesB = pruneCandidates(s.CandidatesB, now)
}

func pruneCandidates(candidates []models.SignalPayload, now time.Time) []models.SignalPayload {
	live := candidates[:0]

	for _, c := range candidates {
		if now.Before(c.ExpiresAt) {
			live = append(live, c)
		}
	}

	return live
}

func appendBounded(candidates []models.SignalPayload, c models.SignalPayload, limit int) []models.SignalPayload {
	candidates = append(candidates, c)

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[len(candidates)-limit:]
	}

	return candidates
}

func cloneRaw(data json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), data...)
}
