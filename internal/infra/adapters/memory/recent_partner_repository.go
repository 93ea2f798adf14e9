package memory

import (
	"sync"
	"time"

	"github.com/qrave1/RandomTalk/internal/domain/models"
)

// RecentPartnerRepository - короткая память о прошлых собеседниках, чтобы не сводить их повторно
type RecentPartnerRepository interface {
	Remember(a, b models.ParticipantID)
	IsRecent(a, b models.ParticipantID) bool
}

type recentPartnerRepository struct {
	window time.Duration
	limit  int
	clock  Clock

	// partners хранит map[participant]map[partner]expiresAt
	partners  map[models.ParticipantID]map[models.ParticipantID]time.Time
	lastSweep time.Time
	mu        sync.RWMutex
}

func NewRecentPartnerRepository(window time.Duration, limit int, clock Clock) RecentPartnerRepository {
	if clock == nil {
		clock = RealClock{}
	}

	return &recentPartnerRepository{
		window:    window,
		limit:     limit,
		clock:     clock,
		partners:  make(map[models.ParticipantID]map[models.ParticipantID]time.Time),
		lastSweep: clock.Now(),
	}
}

func (r *recentPartnerRepository) Remember(a, b models.ParticipantID) {
	if r.window <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()

	if now.Sub(r.lastSweep) >= r.window {
		r.sweep(now)
	}

	r.add(a, b, now)
	r.add(b, a, now)
}

func (r *recentPartnerRepository) IsRecent(a, b models.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	expiresAt, ok := r.partners[a][b]

	return ok && r.clock.Now().Before(expiresAt)
}

func (r *recentPartnerRepository) add(owner, partner models.ParticipantID, now time.Time) {
	set, ok := r.partners[owner]
	if !ok {
		set = make(map[models.ParticipantID]time.Time)
		r.partners[owner] = set
	}

	set[partner] = now.Add(r.window)

	if r.limit <= 0 || len(set) <= r.limit {
		return
	}

	// вытесняем того, кто истекает раньше всех
	var (
		oldest   models.ParticipantID
		earliest time.Time
	)

	for id, exp := range set {
		if earliest.IsZero() || exp.Before(earliest) {
			oldest, earliest = id, exp
		}
	}

	delete(set, oldest)
}

func (r *recentPartnerRepository) sweep(now time.Time) {
	for owner, set := range r.partners {
		for partner, exp := range set {
			if !now.Before(exp) {
				delete(set, partner)
			}
		}

		if len(set) == 0 {
			delete(r.partners, owner)
		}
	}

	r.lastSweep = now
}
