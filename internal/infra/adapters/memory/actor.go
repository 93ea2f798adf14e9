package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qrave1/RandomTalk/internal/domain"
)

var errActorStopped = errors.New("store stopped")

// actor - единственная горутина, владеющая состоянием хранилища.
// Все изменения состояния выполняются внутри нее по очереди, поэтому блокировки не нужны.
type actor struct {
	ops  chan func()
	quit chan struct{}
	done chan struct{}

	stopOnce sync.Once
}

// newActor запускает цикл; если tick != nil, он вызывается внутри цикла раз в interval
func newActor(interval time.Duration, tick func()) *actor {
	a := &actor{
		ops:  make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	go a.loop(interval, tick)

	return a
}

func (a *actor) loop(interval time.Duration, tick func()) {
	defer close(a.done)

	var tickC <-chan time.Time

	if tick != nil && interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		tickC = ticker.C
	}

	for {
		select {
		case op := <-a.ops:
			op()
		case <-tickC:
			tick()
		case <-a.quit:
			return
		}
	}
}

// call ставит op в очередь актора и ждет ее выполнения.
// Ожидание места в очереди ограничено ctx; принятая операция всегда доводится до конца.
func (a *actor) call(ctx context.Context, op func()) error {
	finished := make(chan struct{})

	wrapped := func() {
		defer close(finished)
		op()
	}

	select {
	case a.ops <- wrapped:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, ctx.Err())
	case <-a.quit:
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, errActorStopped)
	}

	select {
	case <-finished:
		return nil
	case <-a.done:
		select {
		case <-finished:
			return nil
		default:
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, errActorStopped)
		}
	}
}

func (a *actor) stop() {
	a.stopOnce.Do(func() {
		close(a.quit)
	})

	<-a.done
}
