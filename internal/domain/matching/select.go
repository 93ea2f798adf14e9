package matching

import (
	"time"

	"github.com/qrave1/RandomTalk/internal/domain/models"
)

// Filter решает, можно ли вообще сводить новичка с этим ожидающим
type Filter func(candidate models.QueueEntry) bool

// Compatible - взаимное совпадение предпочтений по полу
func Compatible(a, b models.Attributes) bool {
	return a.GenderPreference.Accepts(b.Gender) && b.GenderPreference.Accepts(a.Gender)
}

// SelectFIFO возвращает индекс первого подходящего ожидающего или -1.
// waiters упорядочены от начала пула к концу.
func SelectFIFO(waiters []models.QueueEntry, eligible Filter) int {
	for i, candidate := range waiters {
		if eligible(candidate) {
			return i
		}
	}

	return -1
}

// SelectBest выбирает кандидата с максимальной оценкой не ниже MinScore.
// При равенстве побеждает тот, кто раньше встал в очередь.
// Если никто не набрал порог - поведение FIFO.
func SelectBest(w Weights, waiters []models.QueueEntry, joiner models.QueueEntry, eligible Filter, now time.Time) (int, int) {
	best, bestScore := -1, 0

	for i, candidate := range waiters {
		if !eligible(candidate) {
			continue
		}

		score := Score(w, joiner, candidate, len(waiters), now)
		if score < w.MinScore {
			continue
		}

		if best == -1 || score > bestScore ||
			(score == bestScore && candidate.JoinedAt.Before(waiters[best].JoinedAt)) {
			best, bestScore = i, score
		}
	}

	if best >= 0 {
		return best, bestScore
	}

	idx := SelectFIFO(waiters, eligible)
	if idx < 0 {
		return -1, 0
	}

	return idx, Score(w, joiner, waiters[idx], len(waiters), now)
}
