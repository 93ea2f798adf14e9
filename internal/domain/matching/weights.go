package matching

import (
	"errors"
	"fmt"
	"reflect"
)

// Weights - настраиваемые веса оценки совместимости.
// Все значения - данные, а не логика: их можно менять без правки алгоритма.
type Weights struct {
	// Локация
	SameRegion int `json:"sameRegion"`

	// Язык и языковой обмен
	SameLanguage int `json:"sameLanguage"`
	LearningPair int `json:"learningPair"`
	LearningHalf int `json:"learningHalf"`
	LanguageCap  int `json:"languageCap"`

	// Репутация: тир = score / ReputationTierSize
	ReputationTierSize     int `json:"reputationTierSize"`
	SameReputationTier     int `json:"sameReputationTier"`
	AdjacentReputationTier int `json:"adjacentReputationTier"`

	// Интересы
	SharedInterest int `json:"sharedInterest"`
	InterestCap    int `json:"interestCap"`

	// Срочность ожидания
	WaitPerSecond   float64 `json:"waitPerSecond"`
	WaitCap         int     `json:"waitCap"`
	LargePoolSize   int     `json:"largePoolSize"`
	SmallPoolSize   int     `json:"smallPoolSize"`
	LargePoolFactor float64 `json:"largePoolFactor"`
	SmallPoolFactor float64 `json:"smallPoolFactor"`

	Premium int `json:"premium"`

	// Возраст
	AgeCloseYears int `json:"ageCloseYears"`
	AgeClose      int `json:"ageClose"`
	AgeNearYears  int `json:"ageNearYears"`
	AgeNear       int `json:"ageNear"`

	// Часовой пояс, в минутах
	TimezoneSame        int `json:"timezoneSame"`
	TimezoneNearMinutes int `json:"timezoneNearMinutes"`
	TimezoneNear        int `json:"timezoneNear"`

	// Прокси задержки сети по региону
	LatencySameRegion     int `json:"latencySameRegion"`
	LatencyAdjacentRegion int `json:"latencyAdjacentRegion"`

	// MinScore - ниже порога кандидат не выбирается по оценке, работает FIFO
	MinScore int `json:"minScore"`
}

func DefaultWeights() Weights {
	return Weights{
		SameRegion: 20,

		SameLanguage: 15,
		LearningPair: 30,
		LearningHalf: 12,
		LanguageCap:  30,

		ReputationTierSize:     25,
		SameReputationTier:     10,
		AdjacentReputationTier: 4,

		SharedInterest: 5,
		InterestCap:    20,

		WaitPerSecond:   0.5,
		WaitCap:         20,
		LargePoolSize:   50,
		SmallPoolSize:   5,
		LargePoolFactor: 1.5,
		SmallPoolFactor: 0.5,

		Premium: 10,

		AgeCloseYears: 2,
		AgeClose:      10,
		AgeNearYears:  5,
		AgeNear:       5,

		TimezoneSame:        5,
		TimezoneNearMinutes: 120,
		TimezoneNear:        3,

		LatencySameRegion:     10,
		LatencyAdjacentRegion: 5,

		MinScore: 25,
	}
}

func (w Weights) Validate() error {
	if w.ReputationTierSize <= 0 {
		return errors.New("reputationTierSize must be positive")
	}

	if w.WaitPerSecond < 0 || w.LargePoolFactor < 0 || w.SmallPoolFactor < 0 {
		return errors.New("wait weights must not be negative")
	}

	v := reflect.ValueOf(w)
	for i := 0; i < v.NumField(); i++ {
		if f := v.Field(i); f.Kind() == reflect.Int && f.Int() < 0 {
			return fmt.Errorf("%s must not be negative", v.Type().Field(i).Name)
		}
	}

	return nil
}

// WeightsProvider отдает текущие веса; реализация может перечитывать их на лету
type WeightsProvider interface {
	Weights() Weights
}

type StaticWeights Weights

func (s StaticWeights) Weights() Weights {
	return Weights(s)
}
