package matching

import (
	"strings"
	"time"

	"github.com/qrave1/RandomTalk/internal/domain/models"
)

// Score - сумма независимых взвешенных слагаемых, каждое ограничено сверху
func Score(w Weights, joiner, candidate models.QueueEntry, poolSize int, now time.Time) int {
	a, b := joiner.Attributes, candidate.Attributes

	return locationScore(w, a, b) +
		languageScore(w, a, b) +
		reputationScore(w, a, b) +
		interestScore(w, a, b) +
		urgencyScore(w, candidate.JoinedAt, poolSize, now) +
		premiumScore(w, b) +
		ageScore(w, a, b) +
		timezoneScore(w, a, b) +
		latencyScore(w, a, b)
}

func locationScore(w Weights, a, b models.Attributes) int {
	if a.Region != "" && a.Region == b.Region {
		return w.SameRegion
	}

	return 0
}

func languageScore(w Weights, a, b models.Attributes) int {
	score := 0

	if a.Language != "" && a.Language == b.Language {
		score += w.SameLanguage
	}

	aTeachesB := a.NativeLanguage != "" && a.NativeLanguage == b.LearningLanguage
	bTeachesA := b.NativeLanguage != "" && b.NativeLanguage == a.LearningLanguage

	switch {
	case aTeachesB && bTeachesA:
		score += w.LearningPair
	case aTeachesB || bTeachesA:
		score += w.LearningHalf
	}

	return min(score, w.LanguageCap)
}

func reputationScore(w Weights, a, b models.Attributes) int {
	if w.ReputationTierSize <= 0 {
		return 0
	}

	diff := a.Reputation/w.ReputationTierSize - b.Reputation/w.ReputationTierSize
	if diff < 0 {
		diff = -diff
	}

	switch diff {
	case 0:
		return w.SameReputationTier
	case 1:
		return w.AdjacentReputationTier
	default:
		return 0
	}
}

func interestScore(w Weights, a, b models.Attributes) int {
	if len(a.Interests) == 0 || len(b.Interests) == 0 {
		return 0
	}

	theirs := make(map[string]struct{}, len(b.Interests))
	for _, interest := range b.Interests {
		theirs[interest] = struct{}{}
	}

	shared := 0
	for _, interest := range a.Interests {
		if _, ok := theirs[interest]; ok {
			shared++
		}
	}

	return min(shared*w.SharedInterest, w.InterestCap)
}

// urgencyScore растет с временем ожидания кандидата.
// В больших пулах вес срочности выше (против голодания), в маленьких - ниже (в пользу качества).
func urgencyScore(w Weights, joinedAt time.Time, poolSize int, now time.Time) int {
	waited := now.Sub(joinedAt).Seconds()
	if waited <= 0 {
		return 0
	}

	base := min(waited*w.WaitPerSecond, float64(w.WaitCap))

	factor := 1.0
	switch {
	case w.LargePoolSize > 0 && poolSize >= w.LargePoolSize:
		factor = w.LargePoolFactor
	case poolSize <= w.SmallPoolSize:
		factor = w.SmallPoolFactor
	}

	return int(base * factor)
}

func premiumScore(w Weights, candidate models.Attributes) int {
	if candidate.Premium {
		return w.Premium
	}

	return 0
}

func ageScore(w Weights, a, b models.Attributes) int {
	if a.Age == 0 || b.Age == 0 {
		return 0
	}

	diff := abs(a.Age - b.Age)

	switch {
	case diff <= w.AgeCloseYears:
		return w.AgeClose
	case diff <= w.AgeNearYears:
		return w.AgeNear
	default:
		return 0
	}
}

func timezoneScore(w Weights, a, b models.Attributes) int {
	if a.TimezoneOffset == nil || b.TimezoneOffset == nil {
		return 0
	}

	diff := abs(*a.TimezoneOffset - *b.TimezoneOffset)

	switch {
	case diff == 0:
		return w.TimezoneSame
	case diff <= w.TimezoneNearMinutes:
		return w.TimezoneNear
	default:
		return 0
	}
}

func latencyScore(w Weights, a, b models.Attributes) int {
	switch {
	case a.Region == "" || b.Region == "":
		return 0
	case a.Region == b.Region:
		return w.LatencySameRegion
	case regionZone(a.Region) == regionZone(b.Region):
		return w.LatencyAdjacentRegion
	default:
		return 0
	}
}

// regionZone - "eu-west" и "eu-central" считаются соседними регионами
func regionZone(region string) string {
	if i := strings.IndexAny(region, "-_"); i > 0 {
		return region[:i]
	}

	return region
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
