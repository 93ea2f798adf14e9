package models

type ParticipantID string

type Gender string

const (
	GenderMale           Gender = "male"
	GenderFemale         Gender = "female"
	GenderOther          Gender = "other"
	GenderPreferNotToSay Gender = "prefer_not_to_say"
)

type GenderPreference string

const (
	GenderPreferenceAny    GenderPreference = "any"
	GenderPreferenceMale   GenderPreference = "male"
	GenderPreferenceFemale GenderPreference = "female"
)

// Accepts сообщает, подходит ли пол собеседника под предпочтение
func (p GenderPreference) Accepts(g Gender) bool {
	switch p {
	case "", GenderPreferenceAny:
		return true
	default:
		return string(p) == string(g)
	}
}

type QueueType string

const (
	QueueTypeCasual   QueueType = "casual"
	QueueTypeSerious  QueueType = "serious"
	QueueTypeLanguage QueueType = "language"
	QueueTypeGaming   QueueType = "gaming"
)

// Smart - пулы, где пара выбирается по оценке совместимости, а не строго FIFO
func (q QueueType) Smart() bool {
	switch q {
	case QueueTypeSerious, QueueTypeLanguage, QueueTypeGaming:
		return true
	default:
		return false
	}
}

// Attributes - то, что участник сообщил о себе при входе в очередь.
// Reputation и Premium клиент не передает, они приходят от провайдера репутации.
type Attributes struct {
	Region           string           `json:"region,omitempty"`
	Language         string           `json:"language,omitempty"`
	Gender           Gender           `json:"gender,omitempty"`
	GenderPreference GenderPreference `json:"genderPreference,omitempty"`
	Interests        []string         `json:"interests,omitempty"`
	QueueType        QueueType        `json:"queueType"`
	NativeLanguage   string           `json:"nativeLanguage,omitempty"`
	LearningLanguage string           `json:"learningLanguage,omitempty"`
	Age              int              `json:"age,omitempty"`
	TimezoneOffset   *int             `json:"timezoneOffset,omitempty"`

	Reputation int  `json:"-"`
	Premium    bool `json:"-"`
}

// PeerAttributes - публичная часть атрибутов, которую видит собеседник
type PeerAttributes struct {
	Region           string    `json:"region,omitempty"`
	Language         string    `json:"language,omitempty"`
	Interests        []string  `json:"interests,omitempty"`
	QueueType        QueueType `json:"queueType"`
	NativeLanguage   string    `json:"nativeLanguage,omitempty"`
	LearningLanguage string    `json:"learningLanguage,omitempty"`
}

func (a Attributes) Public() PeerAttributes {
	return PeerAttributes{
		Region:           a.Region,
		Language:         a.Language,
		Interests:        a.Interests,
		QueueType:        a.QueueType,
		NativeLanguage:   a.NativeLanguage,
		LearningLanguage: a.LearningLanguage,
	}
}
