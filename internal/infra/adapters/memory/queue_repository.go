package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/application/metric"
	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/models"
)

// ErrDiscardWaiter - Pair сообщает, что ожидающий больше не годится (устаревшее соединение, уже в сессии)
var ErrDiscardWaiter = errors.New("discard waiter")

// JoinPlan описывает, как пул выбирает пару для новичка.
// Обе функции вызываются внутри горутины пула: выбор ожидающего, его извлечение
// и создание сессии выглядят атомарно для всех остальных вызовов.
type JoinPlan struct {
	// Select возвращает индекс ожидающего и оценку пары, или -1
	Select func(waiters []models.QueueEntry, joiner models.QueueEntry) (int, int)

	// Pair создает сессию для пары
	Pair func(ctx context.Context, waiter, joiner models.QueueEntry) (models.Session, error)
}

type QueueRepository interface {
	Join(ctx context.Context, entry models.QueueEntry, plan JoinPlan) (models.MatchResult, error)

	// Leave идемпотентен: отсутствие записи не ошибка
	Leave(ctx context.Context, pool models.PoolKey, participantID models.ParticipantID) (bool, error)
	LeaveAll(ctx context.Context, participantID models.ParticipantID) ([]models.PoolKey, error)
	LeaveOthers(ctx context.Context, participantID models.ParticipantID, keep models.PoolKey) error

	Sizes() map[string]int
	Close()
}

type queuePool struct {
	key   models.PoolKey
	actor *actor

	// entries принадлежит горутине актора; начало слайса - самый давний ожидающий
	entries []models.QueueEntry

	size     atomic.Int64
	lastUsed atomic.Int64

	// retired - пул остановлен как простаивающий, новые операции идут в новый пул
	retired atomic.Bool
}

type queueRepository struct {
	maxSize int
	idleTTL time.Duration
	clock   Clock

	pools  map[string]*queuePool
	mu     sync.Mutex
	closed bool

	quit chan struct{}
	done chan struct{}
}

// NewQueueRepository создает пулы очередей; пустые пулы без активности дольше idleTTL останавливаются
func NewQueueRepository(maxSize int, idleTTL time.Duration, clock Clock) QueueRepository {
	if clock == nil {
		clock = RealClock{}
	}

	r := &queueRepository{
		maxSize: maxSize,
		idleTTL: idleTTL,
		clock:   clock,
		pools:   make(map[string]*queuePool),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go r.reapLoop()

	return r
}

func (r *queueRepository) Join(ctx context.Context, entry models.QueueEntry, plan JoinPlan) (models.MatchResult, error) {
	var result models.MatchResult

	err := r.withPool(ctx, entry.Pool, func(p *queuePool) {
		result = p.join(ctx, entry, plan, r.maxSize)
	})
	if err != nil {
		metric.RecordStoreError("queue", "join")
		return models.MatchResult{}, fmt.Errorf("join %s: %w", entry.Pool, err)
	}

	return result, nil
}

func (r *queueRepository) Leave(ctx context.Context, pool models.PoolKey, participantID models.ParticipantID) (bool, error) {
	p, ok := r.existingPool(pool)
	if !ok {
		return false, nil
	}

	var removed bool

	err := p.actor.call(ctx, func() {
		removed = p.remove(participantID)
	})
	if err != nil {
		if errors.Is(err, errActorStopped) {
			// пул остановлен, значит он был пуст
			return false, nil
		}

		metric.RecordStoreError("queue", "leave")
		return false, fmt.Errorf("leave %s: %w", pool, err)
	}

	return removed, nil
}

func (r *queueRepository) LeaveAll(ctx context.Context, participantID models.ParticipantID) ([]models.PoolKey, error) {
	return r.leaveWhere(ctx, participantID, func(models.PoolKey) bool { return true })
}

func (r *queueRepository) LeaveOthers(ctx context.Context, participantID models.ParticipantID, keep models.PoolKey) error {
	_, err := r.leaveWhere(ctx, participantID, func(k models.PoolKey) bool { return k != keep })
	return err
}

func (r *queueRepository) leaveWhere(
	ctx context.Context,
	participantID models.ParticipantID,
	match func(models.PoolKey) bool,
) ([]models.PoolKey, error) {
	var (
		left []models.PoolKey
		errs []error
	)

	for _, p := range r.snapshot() {
		if !match(p.key) || p.size.Load() == 0 {
			continue
		}

		removed, err := r.Leave(ctx, p.key, participantID)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if removed {
			left = append(left, p.key)
		}
	}

	return left, errors.Join(errs...)
}

func (r *queueRepository) Sizes() map[string]int {
	sizes := make(map[string]int)

	for _, p := range r.snapshot() {
		sizes[p.key.String()] = int(p.size.Load())
	}

	return sizes
}

func (r *queueRepository) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	r.closed = true
	pools := r.pools
	r.pools = make(map[string]*queuePool)
	r.mu.Unlock()

	close(r.quit)
	<-r.done

	for _, p := range pools {
		p.actor.stop()
	}
}

// withPool выполняет op в горутине пула. Если пул успели остановить как простаивающий,
// он создается заново.
func (r *queueRepository) withPool(ctx context.Context, key models.PoolKey, op func(p *queuePool)) error {
	for attempt := 0; attempt < 2; attempt++ {
		p, err := r.pool(key)
		if err != nil {
			return err
		}

		var retired bool

		err = p.actor.call(ctx, func() {
			if p.retired.Load() {
				retired = true
				return
			}

			op(p)
			p.lastUsed.Store(r.clock.Now().UnixNano())
		})
		if retired {
			continue
		}

		if err == nil || !errors.Is(err, errActorStopped) {
			return err
		}
	}

	return fmt.Errorf("%w: pool %s restarting", domain.ErrStoreUnavailable, key)
}

func (r *queueRepository) pool(key models.PoolKey) (*queuePool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, errActorStopped)
	}

	name := key.String()

	p, ok := r.pools[name]
	if !ok || p.retired.Load() {
		p = &queuePool{key: key, actor: newActor(0, nil)}
		p.lastUsed.Store(r.clock.Now().UnixNano())
		r.pools[name] = p
	}

	return p, nil
}

func (r *queueRepository) existingPool(key models.PoolKey) (*queuePool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[key.String()]
	return p, ok
}

func (r *queueRepository) snapshot() []*queuePool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pools := make([]*queuePool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}

	return pools
}

func (r *queueRepository) reapLoop() {
	defer close(r.done)

	if r.idleTTL <= 0 {
		<-r.quit
		return
	}

	ticker := time.NewTicker(r.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reapIdle()
		case <-r.quit:
			return
		}
	}
}

func (r *queueRepository) reapIdle() {
	deadline := r.clock.Now().Add(-r.idleTTL).UnixNano()

	for _, p := range r.snapshot() {
		if p.size.Load() != 0 || p.lastUsed.Load() >= deadline {
			continue
		}

		// решение о простое принимается внутри пула, чтобы не потерять параллельный вход
		_ = p.actor.call(context.Background(), func() {
			if len(p.entries) == 0 {
				p.retired.Store(true)
			}
		})

		if !p.retired.Load() {
			continue
		}

		name := p.key.String()

		r.mu.Lock()
		if r.pools[name] == p {
			delete(r.pools, name)
		}
		r.mu.Unlock()

		p.actor.stop()
		metric.SetQueueSize(name, 0)
	}
}

func (p *queuePool) join(ctx context.Context, entry models.QueueEntry, plan JoinPlan, maxSize int) models.MatchResult {
	defer p.updateSize()

	// Повторный вход: обновляем соединение на месте, без дубля
	if i := p.indexOf(entry.ParticipantID); i >= 0 {
		p.entries[i].Handle = entry.Handle
		p.entries[i].Attributes = entry.Attributes

		return models.Queued(i + 1)
	}

	for len(p.entries) > 0 {
		idx, score := plan.Select(p.entries, entry)
		if idx < 0 || idx >= len(p.entries) {
			break
		}

		waiter := p.removeAt(idx)

		session, err := plan.Pair(ctx, waiter, entry)
		switch {
		case err == nil:
			result := models.Matched(session, waiter)
			result.Score = score

			return result

		case errors.Is(err, ErrDiscardWaiter):
			slog.Info(
				"drop waiter from pool",
				slog.String(constant.Pool, p.key.String()),
				slog.String(constant.ParticipantID, string(waiter.ParticipantID)),
				slog.Any(constant.Reason, err),
			)

			continue

		case errors.Is(err, domain.ErrParticipantBusy):
			p.pushFront(waiter)

			return models.Rejected(models.RejectReasonBusy)

		default:
			// Сессию создать не удалось: ожидающий возвращается в начало, новичок встает в конец
			p.pushFront(waiter)

			if len(p.entries) >= maxSize {
				return models.Rejected(models.RejectReasonPoolFull)
			}

			p.entries = append(p.entries, entry)

			return models.Requeued(len(p.entries), err)
		}
	}

	if len(p.entries) >= maxSize {
		return models.Rejected(models.RejectReasonPoolFull)
	}

	p.entries = append(p.entries, entry)

	return models.Queued(len(p.entries))
}

func (p *queuePool) indexOf(participantID models.ParticipantID) int {
	for i := range p.entries {
		if p.entries[i].ParticipantID == participantID {
			return i
		}
	}

	return -1
}

func (p *queuePool) remove(participantID models.ParticipantID) bool {
	i := p.indexOf(participantID)
	if i < 0 {
		return false
	}

	p.removeAt(i)
	p.updateSize()

	return true
}

func (p *queuePool) removeAt(i int) models.QueueEntry {
	entry := p.entries[i]
	p.entries = append(p.entries[:i], p.entries[i+1:]...)

	return entry
}

func (p *queuePool) pushFront(entry models.QueueEntry) {
	p.entries = append(p.entries, models.QueueEntry{})
	copy(p.entries[1:], p.entries)
	p.entries[0] = entry
}

func (p *queuePool) updateSize() {
	p.size.Store(int64(len(p.entries)))
	metric.SetQueueSize(p.key.String(), len(p.entries))
}
