package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/models"
)

func newTestQueue(t *testing.T, maxSize int) QueueRepository {
	t.Helper()

	repo := NewQueueRepository(maxSize, 0, newFakeClock())
	t.Cleanup(repo.Close)

	return repo
}

func queueEntry(id string) models.QueueEntry {
	return models.QueueEntry{
		ParticipantID: models.ParticipantID(id),
		Handle:        models.ConnHandle("h-" + id),
		Pool:          casual,
	}
}

func firstWaiter(waiters []models.QueueEntry, _ models.QueueEntry) (int, int) {
	if len(waiters) == 0 {
		return -1, 0
	}

	return 0, 0
}

func noMatch([]models.QueueEntry, models.QueueEntry) (int, int) {
	return -1, 0
}

// pairRecorder создает сессии и запоминает пары
type pairRecorder struct {
	mu    sync.Mutex
	pairs [][2]models.ParticipantID
	err   error
}

func (p *pairRecorder) pair(_ context.Context, waiter, joiner models.QueueEntry) (models.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return models.Session{}, p.err
	}

	p.pairs = append(p.pairs, [2]models.ParticipantID{waiter.ParticipantID, joiner.ParticipantID})

	return models.Session{
		ID:           fmt.Sprintf("s%d", len(p.pairs)),
		ParticipantA: waiter.ParticipantID,
		ParticipantB: joiner.ParticipantID,
	}, nil
}

func (p *pairRecorder) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.err = err
}

func TestQueueFIFOMatchesFirstJoiner(t *testing.T) {
	repo := newTestQueue(t, 1000)
	rec := &pairRecorder{}
	plan := JoinPlan{Select: firstWaiter, Pair: rec.pair}
	ctx := context.Background()

	res, err := repo.Join(ctx, queueEntry("x"), plan)
	if err != nil {
		t.Fatalf("Join x: %v", err)
	}
	if res.Kind != models.MatchKindQueued || res.Position != 1 {
		t.Fatalf("x result=%v pos=%d, want queued at 1", res.Kind, res.Position)
	}

	res, err = repo.Join(ctx, queueEntry("y"), plan)
	if err != nil {
		t.Fatalf("Join y: %v", err)
	}
	if res.Kind != models.MatchKindMatched || res.Peer.ParticipantID != "x" {
		t.Fatalf("y result=%v peer=%s, want matched with x", res.Kind, res.Peer.ParticipantID)
	}

	if len(rec.pairs) != 1 {
		t.Fatalf("pairs=%d, want exactly 1", len(rec.pairs))
	}
	if got := repo.Sizes()[casual.String()]; got != 0 {
		t.Fatalf("pool size=%d, want 0", got)
	}
}

func TestQueueRejoinUpdatesHandleInPlace(t *testing.T) {
	repo := newTestQueue(t, 1000)
	plan := JoinPlan{Select: noMatch, Pair: (&pairRecorder{}).pair}
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := repo.Join(ctx, queueEntry(id), plan); err != nil {
			t.Fatalf("Join %s: %v", id, err)
		}
	}

	again := queueEntry("a")
	again.Handle = "h-a-2"

	res, err := repo.Join(ctx, again, plan)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if res.Kind != models.MatchKindQueued || res.Position != 1 {
		t.Fatalf("rejoin result=%v pos=%d, want queued at 1", res.Kind, res.Position)
	}
	if got := repo.Sizes()[casual.String()]; got != 2 {
		t.Fatalf("pool size=%d, want 2 (no duplicate)", got)
	}

	// следующий новичок должен получить обновленный handle
	var seen models.ConnHandle
	matchPlan := JoinPlan{
		Select: firstWaiter,
		Pair: func(_ context.Context, waiter, joiner models.QueueEntry) (models.Session, error) {
			seen = waiter.Handle
			return models.Session{ID: "s"}, nil
		},
	}

	if _, err := repo.Join(ctx, queueEntry("c"), matchPlan); err != nil {
		t.Fatalf("Join c: %v", err)
	}
	if seen != "h-a-2" {
		t.Fatalf("matched handle=%s, want h-a-2", seen)
	}
}

func TestQueueLeaveKeepsOrder(t *testing.T) {
	repo := newTestQueue(t, 1000)
	plan := JoinPlan{Select: noMatch, Pair: (&pairRecorder{}).pair}
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		if _, err := repo.Join(ctx, queueEntry(id), plan); err != nil {
			t.Fatalf("Join %s: %v", id, err)
		}
	}

	removed, err := repo.Leave(ctx, casual, "b")
	if err != nil || !removed {
		t.Fatalf("Leave b=(%v, %v), want removed", removed, err)
	}

	removed, err = repo.Leave(ctx, casual, "b")
	if err != nil || removed {
		t.Fatalf("second Leave b=(%v, %v), want (false, nil)", removed, err)
	}

	removed, err = repo.Leave(ctx, models.PoolKey{Mode: models.QueueTypeGaming}, "b")
	if err != nil || removed {
		t.Fatalf("Leave from unknown pool=(%v, %v), want (false, nil)", removed, err)
	}

	rec := &pairRecorder{}
	matchPlan := JoinPlan{Select: firstWaiter, Pair: rec.pair}

	for _, id := range []string{"e", "f", "g"} {
		if _, err := repo.Join(ctx, queueEntry(id), matchPlan); err != nil {
			t.Fatalf("Join %s: %v", id, err)
		}
	}

	want := []models.ParticipantID{"a", "c", "d"}
	for i, pair := range rec.pairs {
		if pair[0] != want[i] {
			t.Fatalf("pair %d waiter=%s, want %s", i, pair[0], want[i])
		}
	}
}

func TestQueueBoundRejectsSilently(t *testing.T) {
	repo := newTestQueue(t, 1000)
	plan := JoinPlan{Select: noMatch, Pair: (&pairRecorder{}).pair}
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		res, err := repo.Join(ctx, queueEntry(fmt.Sprintf("p%d", i)), plan)
		if err != nil || res.Kind != models.MatchKindQueued {
			t.Fatalf("Join #%d=(%v, %v), want queued", i, res.Kind, err)
		}
	}

	res, err := repo.Join(ctx, queueEntry("overflow"), plan)
	if err != nil {
		t.Fatalf("Join overflow: %v", err)
	}
	if res.Kind != models.MatchKindRejected || res.Reason != models.RejectReasonPoolFull {
		t.Fatalf("overflow result=%v reason=%q, want rejected pool full", res.Kind, res.Reason)
	}
	if got := repo.Sizes()[casual.String()]; got != 1000 {
		t.Fatalf("pool size=%d, want 1000", got)
	}
}

func TestQueueStoreFailureRequeuesWaiterAtFront(t *testing.T) {
	repo := newTestQueue(t, 1000)
	rec := &pairRecorder{}
	plan := JoinPlan{Select: firstWaiter, Pair: rec.pair}
	ctx := context.Background()

	if _, err := repo.Join(ctx, queueEntry("x"), plan); err != nil {
		t.Fatalf("Join x: %v", err)
	}

	rec.setErr(fmt.Errorf("create session: %w", domain.ErrStoreUnavailable))

	res, err := repo.Join(ctx, queueEntry("y"), plan)
	if err != nil {
		t.Fatalf("Join y: %v", err)
	}
	if res.Kind != models.MatchKindRequeued {
		t.Fatalf("y result=%v, want requeued", res.Kind)
	}
	if res.Position != 2 {
		t.Fatalf("y position=%d, want 2 (behind x)", res.Position)
	}

	rec.setErr(nil)

	res, err = repo.Join(ctx, queueEntry("z"), plan)
	if err != nil {
		t.Fatalf("Join z: %v", err)
	}
	if res.Kind != models.MatchKindMatched || res.Peer.ParticipantID != "x" {
		t.Fatalf("z result=%v peer=%s, want matched with x", res.Kind, res.Peer.ParticipantID)
	}
}

func TestQueueDiscardsStaleWaiters(t *testing.T) {
	repo := newTestQueue(t, 1000)
	ctx := context.Background()

	noop := JoinPlan{Select: noMatch, Pair: (&pairRecorder{}).pair}
	for _, id := range []string{"stale", "live"} {
		if _, err := repo.Join(ctx, queueEntry(id), noop); err != nil {
			t.Fatalf("Join %s: %v", id, err)
		}
	}

	plan := JoinPlan{
		Select: firstWaiter,
		Pair: func(_ context.Context, waiter, joiner models.QueueEntry) (models.Session, error) {
			if waiter.ParticipantID == "stale" {
				return models.Session{}, ErrDiscardWaiter
			}
			return models.Session{ID: "s"}, nil
		},
	}

	res, err := repo.Join(ctx, queueEntry("j"), plan)
	if err != nil {
		t.Fatalf("Join j: %v", err)
	}
	if res.Kind != models.MatchKindMatched || res.Peer.ParticipantID != "live" {
		t.Fatalf("result=%v peer=%s, want matched with live", res.Kind, res.Peer.ParticipantID)
	}
	if got := repo.Sizes()[casual.String()]; got != 0 {
		t.Fatalf("pool size=%d, want 0", got)
	}
}

func TestQueueConcurrentJoinsNeverDoublePop(t *testing.T) {
	repo := newTestQueue(t, 1000)
	rec := &pairRecorder{}
	plan := JoinPlan{Select: firstWaiter, Pair: rec.pair}
	ctx := context.Background()

	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.Join(ctx, queueEntry(fmt.Sprintf("p%d", i)), plan); err != nil {
				t.Errorf("Join: %v", err)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[models.ParticipantID]int)
	for _, pair := range rec.pairs {
		seen[pair[0]]++
		seen[pair[1]]++
	}

	for id, count := range seen {
		if count != 1 {
			t.Fatalf("participant %s paired %d times", id, count)
		}
	}

	if len(rec.pairs) != n/2 {
		t.Fatalf("pairs=%d, want %d", len(rec.pairs), n/2)
	}
}

func TestQueueLeaveAllAndOthers(t *testing.T) {
	repo := newTestQueue(t, 1000)
	plan := JoinPlan{Select: noMatch, Pair: (&pairRecorder{}).pair}
	ctx := context.Background()

	gaming := models.PoolKey{Mode: models.QueueTypeGaming}

	a := queueEntry("a")
	if _, err := repo.Join(ctx, a, plan); err != nil {
		t.Fatalf("Join casual: %v", err)
	}

	a.Pool = gaming
	if _, err := repo.Join(ctx, a, plan); err != nil {
		t.Fatalf("Join gaming: %v", err)
	}

	if err := repo.LeaveOthers(ctx, "a", gaming); err != nil {
		t.Fatalf("LeaveOthers: %v", err)
	}

	sizes := repo.Sizes()
	if sizes[casual.String()] != 0 || sizes[gaming.String()] != 1 {
		t.Fatalf("sizes=%v, want casual 0 gaming 1", sizes)
	}

	left, err := repo.LeaveAll(ctx, "a")
	if err != nil {
		t.Fatalf("LeaveAll: %v", err)
	}
	if len(left) != 1 || left[0] != gaming {
		t.Fatalf("left=%v, want [gaming]", left)
	}
}

func TestQueueReapsIdlePools(t *testing.T) {
	clock := newFakeClock()
	repo := NewQueueRepository(10, 10*time.Millisecond, clock)
	t.Cleanup(repo.Close)

	ctx := context.Background()
	plan := JoinPlan{Select: noMatch, Pair: (&pairRecorder{}).pair}

	if _, err := repo.Join(ctx, queueEntry("a"), plan); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := repo.Leave(ctx, casual, "a"); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	clock.Advance(time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for len(repo.Sizes()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle pool not reaped: %v", repo.Sizes())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// пул пересоздается на следующем входе
	res, err := repo.Join(ctx, queueEntry("b"), plan)
	if err != nil || res.Kind != models.MatchKindQueued {
		t.Fatalf("Join after reap=(%v, %v), want queued", res.Kind, err)
	}
}
