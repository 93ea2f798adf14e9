package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/qrave1/RandomTalk/internal/application/config"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/events"
	"github.com/qrave1/RandomTalk/internal/domain/matching"
	"github.com/qrave1/RandomTalk/internal/domain/models"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/memory"
)

type fakeConn struct {
	mu     sync.Mutex
	events []events.Envelope
	closed bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if env, ok := v.(events.Envelope); ok {
		c.events = append(c.events, env)
	}

	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

func (c *fakeConn) ofType(eventType string) []events.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found []events.Envelope
	for _, e := range c.events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}

	return found
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.events)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fakeReputationRepo struct {
	mu       sync.Mutex
	scores   map[models.ParticipantID]int
	err      error
	adjusted []int
}

func newFakeReputationRepo() *fakeReputationRepo {
	return &fakeReputationRepo{scores: make(map[models.ParticipantID]int)}
}

func (r *fakeReputationRepo) Get(_ context.Context, id models.ParticipantID) (*models.Reputation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	score, ok := r.scores[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return &models.Reputation{ParticipantID: id, Score: score}, nil
}

func (r *fakeReputationRepo) Adjust(_ context.Context, id models.ParticipantID, base, delta int) (*models.Reputation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	score, ok := r.scores[id]
	if !ok {
		score = base
	}

	score += delta
	r.scores[id] = score
	r.adjusted = append(r.adjusted, delta)

	return &models.Reputation{ParticipantID: id, Score: score}, nil
}

type fakeHistoryRepo struct {
	mu        sync.Mutex
	records   map[string]*models.MatchRecord
	connected map[string]bool
	finished  map[string]models.EndReason
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{
		records:   make(map[string]*models.MatchRecord),
		connected: make(map[string]bool),
		finished:  make(map[string]models.EndReason),
	}
}

func (r *fakeHistoryRepo) Create(_ context.Context, record *models.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *record
	r.records[record.SessionID] = &copied

	return nil
}

func (r *fakeHistoryRepo) MarkConnected(_ context.Context, sessionID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connected[sessionID] = true

	return nil
}

func (r *fakeHistoryRepo) Finish(_ context.Context, sessionID string, reason models.EndReason, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, done := r.finished[sessionID]; !done {
		r.finished[sessionID] = reason
	}

	return nil
}

func (r *fakeHistoryRepo) GetBySessionID(_ context.Context, sessionID string) (*models.MatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}

	copied := *record

	return &copied, nil
}

func (r *fakeHistoryRepo) finishedWith(sessionID string) (models.EndReason, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reason, ok := r.finished[sessionID]

	return reason, ok
}

type fakeReportRepo struct {
	mu      sync.Mutex
	reports []models.AbuseReport
}

func (r *fakeReportRepo) Create(_ context.Context, report *models.AbuseReport) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.reports {
		if existing.SessionID == report.SessionID && existing.Reporter == report.Reporter {
			return false, nil
		}
	}

	report.ID = int64(len(r.reports) + 1)
	r.reports = append(r.reports, *report)

	return true, nil
}

type fixture struct {
	clock    *fakeClock
	sessions memory.SessionRepository
	queues   memory.QueueRepository
	registry memory.ConnectionRegistry
	recent   memory.RecentPartnerRepository

	reputation *fakeReputationRepo
	history    *fakeHistoryRepo
	reports    *fakeReportRepo

	matchmaking MatchmakingUsecase
	signaling   SignalingUsecase

	conns   map[models.ParticipantID]*fakeConn
	handles map[models.ParticipantID]models.ConnHandle
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		MaxSize:         1000,
		StoreTimeout:    2 * time.Second,
		WaitPerPosition: 5 * time.Second,
	}
}

func testMatchingConfig() config.MatchingConfig {
	return config.MatchingConfig{
		RecentPartnerWindow: time.Hour,
		RecentPartnerMax:    20,
		DefaultReputation:   50,
		ReportPenalty:       5,
	}
}

func newFixture(t *testing.T, sessionCfg config.SessionConfig) *fixture {
	t.Helper()

	clock := newFakeClock()

	f := &fixture{
		clock:      clock,
		sessions:   memory.NewSessionRepository(sessionCfg, clock),
		queues:     memory.NewQueueRepository(1000, 0, clock),
		registry:   memory.NewWSConnectionRepository(time.Second),
		recent:     memory.NewRecentPartnerRepository(time.Hour, 20, clock),
		reputation: newFakeReputationRepo(),
		history:    newFakeHistoryRepo(),
		reports:    &fakeReportRepo{},
		conns:      make(map[models.ParticipantID]*fakeConn),
		handles:    make(map[models.ParticipantID]models.ConnHandle),
	}

	t.Cleanup(f.sessions.Close)
	t.Cleanup(f.queues.Close)

	f.matchmaking = NewMatchmakingUsecase(
		testQueueConfig(),
		testMatchingConfig(),
		clock,
		f.queues,
		f.sessions,
		f.registry,
		f.recent,
		matching.StaticWeights(matching.DefaultWeights()),
		f.reputation,
		f.history,
	)

	f.signaling = NewSignalingUsecase(
		testQueueConfig(),
		testMatchingConfig(),
		clock,
		f.sessions,
		f.queues,
		f.registry,
		f.history,
		f.reports,
		f.reputation,
	)

	return f
}

func defaultSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TTL:                  5 * time.Minute,
		OfferTTL:             30 * time.Second,
		AnswerTTL:            30 * time.Second,
		CandidateTTL:         60 * time.Second,
		MaxCandidatesPerSide: 64,
		MaxSessions:          100,
	}
}

func (f *fixture) connect(id models.ParticipantID) *fakeConn {
	conn := &fakeConn{}
	f.conns[id] = conn
	f.handles[id] = f.registry.Add(id, conn)

	return conn
}

func (f *fixture) join(t *testing.T, id models.ParticipantID, e events.JoinQueueEvent) models.MatchResult {
	t.Helper()

	res, err := f.matchmaking.Join(context.Background(), id, f.handles[id], e)
	if err != nil {
		t.Fatalf("Join %s: %v", id, err)
	}

	return res
}

// matchPair сводит двух участников в обычном пуле и возвращает id сессии
func (f *fixture) matchPair(t *testing.T, waiter, joiner models.ParticipantID) string {
	t.Helper()

	if res := f.join(t, waiter, events.JoinQueueEvent{}); res.Kind != models.MatchKindQueued {
		t.Fatalf("%s result=%v, want queued", waiter, res.Kind)
	}

	res := f.join(t, joiner, events.JoinQueueEvent{})
	if res.Kind != models.MatchKindMatched {
		t.Fatalf("%s result=%v, want matched", joiner, res.Kind)
	}

	return res.Session.ID
}
