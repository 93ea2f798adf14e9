package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimitRepository - счетчики с фиксированным окном, которые истекают сами
type RateLimitRepository interface {
	// Incr увеличивает счетчик key и возвращает значение в текущем окне
	Incr(ctx context.Context, key string, window time.Duration) (int, error)
}

type rateLimitCounter struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

type rateLimitRepository struct {
	clock Clock

	counters  map[string]*rateLimitCounter
	lastSweep time.Time
	mu        sync.Mutex
}

func NewRateLimitRepository(clock Clock) RateLimitRepository {
	if clock == nil {
		clock = RealClock{}
	}

	return &rateLimitRepository{
		clock:     clock,
		counters:  make(map[string]*rateLimitCounter),
		lastSweep: clock.Now(),
	}
}

func (r *rateLimitRepository) Incr(ctx context.Context, key string, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()

	if now.Sub(r.lastSweep) >= window {
		r.sweep(now)
	}

	c, ok := r.counters[key]
	if !ok || !now.Before(c.windowStart.Add(c.window)) {
		c = &rateLimitCounter{windowStart: now, window: window}
		r.counters[key] = c
	}

	c.count++

	return c.count, nil
}

func (r *rateLimitRepository) sweep(now time.Time) {
	for key, c := range r.counters {
		if !now.Before(c.windowStart.Add(c.window)) {
			delete(r.counters, key)
		}
	}

	r.lastSweep = now
}
