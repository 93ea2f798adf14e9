package events

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rivo/uniseg"

	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/models"
)

const (
	MaxRegionLen       = 50
	MaxLanguageLen     = 10
	MaxInterests       = 10
	MaxInterestLen     = 30
	MaxSessionIDLen    = 100
	MaxSignalDataBytes = 64 << 10
	MaxMessageLen      = 2000
	MaxSenderLen       = 50
	MaxReasonLen       = 500
	MaxEmojiBytes      = 64

	MinAge            = 13
	MaxAge            = 120
	MinTimezoneOffset = -720
	MaxTimezoneOffset = 840
)

// strictPolicy вырезает любой html, включая содержимое script/style
var strictPolicy = bluemonday.StrictPolicy()

// JoinQueueEvent - вход в очередь
type JoinQueueEvent struct {
	Region           string   `json:"region"`
	Language         string   `json:"language"`
	Gender           string   `json:"gender"`
	GenderPreference string   `json:"genderPreference"`
	Interests        []string `json:"interests"`
	QueueType        string   `json:"queueType"`
	NativeLanguage   string   `json:"nativeLanguage"`
	LearningLanguage string   `json:"learningLanguage"`
	Age              *int     `json:"age"`
	TimezoneOffset   *int     `json:"timezoneOffset"`
}

// Attributes валидирует событие и нормализует его в атрибуты участника
func (e JoinQueueEvent) Attributes() (models.Attributes, error) {
	var attrs models.Attributes

	region, err := normalized("region", e.Region, MaxRegionLen)
	if err != nil {
		return attrs, err
	}

	language, err := normalized("language", e.Language, MaxLanguageLen)
	if err != nil {
		return attrs, err
	}

	native, err := normalized("nativeLanguage", e.NativeLanguage, MaxLanguageLen)
	if err != nil {
		return attrs, err
	}

	learning, err := normalized("learningLanguage", e.LearningLanguage, MaxLanguageLen)
	if err != nil {
		return attrs, err
	}

	gender := models.Gender(strings.TrimSpace(e.Gender))
	switch gender {
	case "", models.GenderMale, models.GenderFemale, models.GenderOther, models.GenderPreferNotToSay:
	default:
		return attrs, domain.NewValidationError("gender", "must be one of male, female, other, prefer_not_to_say")
	}

	preference := models.GenderPreference(strings.TrimSpace(e.GenderPreference))
	switch preference {
	case "":
		preference = models.GenderPreferenceAny
	case models.GenderPreferenceAny, models.GenderPreferenceMale, models.GenderPreferenceFemale:
	default:
		return attrs, domain.NewValidationError("genderPreference", "must be one of any, male, female")
	}

	queueType := models.QueueType(strings.TrimSpace(e.QueueType))
	switch queueType {
	case "":
		queueType = models.QueueTypeCasual
	case models.QueueTypeCasual, models.QueueTypeSerious, models.QueueTypeLanguage, models.QueueTypeGaming:
	default:
		return attrs, domain.NewValidationError("queueType", "must be one of casual, serious, language, gaming")
	}

	interests, err := normalizeInterests(e.Interests)
	if err != nil {
		return attrs, err
	}

	if e.Age != nil && (*e.Age < MinAge || *e.Age > MaxAge) {
		return attrs, domain.NewValidationError("age", fmt.Sprintf("must be between %d and %d", MinAge, MaxAge))
	}

	if e.TimezoneOffset != nil && (*e.TimezoneOffset < MinTimezoneOffset || *e.TimezoneOffset > MaxTimezoneOffset) {
		return attrs, domain.NewValidationError("timezoneOffset", "out of range")
	}

	attrs = models.Attributes{
		Region:           region,
		Language:         language,
		Gender:           gender,
		GenderPreference: preference,
		Interests:        interests,
		QueueType:        queueType,
		NativeLanguage:   native,
		LearningLanguage: learning,
		TimezoneOffset:   e.TimezoneOffset,
	}

	if e.Age != nil {
		attrs.Age = *e.Age
	}

	return attrs, nil
}

func normalized(field, value string, maxLen int) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))

	if utf8.RuneCountInString(value) > maxLen {
		return "", domain.NewValidationError(field, fmt.Sprintf("must be at most %d characters", maxLen))
	}

	return value, nil
}

func normalizeInterests(raw []string) ([]string, error) {
	if len(raw) > MaxInterests {
		return nil, domain.NewValidationError("interests", fmt.Sprintf("at most %d interests", MaxInterests))
	}

	seen := make(map[string]struct{}, len(raw))
	interests := make([]string, 0, len(raw))

	for _, interest := range raw {
		interest, err := normalized("interests", interest, MaxInterestLen)
		if err != nil {
			return nil, err
		}

		if interest == "" {
			continue
		}

		if _, ok := seen[interest]; ok {
			continue
		}

		seen[interest] = struct{}{}
		interests = append(interests, interest)
	}

	return interests, nil
}

func validateSessionID(id string) error {
	if id == "" || len(id) > MaxSessionIDLen {
		return domain.NewValidationError("sessionId", fmt.Sprintf("must be 1..%d characters", MaxSessionIDLen))
	}

	return nil
}

// SignalEvent - send-offer, send-answer, send-candidate
type SignalEvent struct {
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}

// Validate проверяет событие; expected - offer, answer или candidate
func (e SignalEvent) Validate(expected string) error {
	if err := validateSessionID(e.SessionID); err != nil {
		return err
	}

	if e.Type != "" && e.Type != expected {
		return domain.NewValidationError("type", fmt.Sprintf("must be %q", expected))
	}

	data := strings.TrimSpace(string(e.Data))
	if data == "" || data == "null" {
		return domain.NewValidationError("data", "is required")
	}

	if len(e.Data) > MaxSignalDataBytes {
		return domain.NewValidationError("data", "payload too large")
	}

	return nil
}

// MessageEvent - текстовое сообщение в чат звонка
type MessageEvent struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// Sanitized возвращает копию события без html, или ошибку валидации
func (e MessageEvent) Sanitized() (MessageEvent, error) {
	if err := validateSessionID(e.SessionID); err != nil {
		return e, err
	}

	e.Message = stripHTML(e.Message)
	if e.Message == "" {
		return e, domain.NewValidationError("message", "is empty")
	}

	if utf8.RuneCountInString(e.Message) > MaxMessageLen {
		return e, domain.NewValidationError("message", fmt.Sprintf("must be at most %d characters", MaxMessageLen))
	}

	e.Sender = stripHTML(e.Sender)
	if utf8.RuneCountInString(e.Sender) > MaxSenderLen {
		return e, domain.NewValidationError("sender", fmt.Sprintf("must be at most %d characters", MaxSenderLen))
	}

	return e, nil
}

// ReactionEvent - одиночный эмодзи
type ReactionEvent struct {
	SessionID string `json:"sessionId"`
	Emoji     string `json:"emoji"`
	Timestamp int64  `json:"timestamp"`
}

func (e ReactionEvent) Validate() error {
	if err := validateSessionID(e.SessionID); err != nil {
		return err
	}

	if !IsSingleEmoji(e.Emoji) {
		return domain.NewValidationError("emoji", "must be a single emoji")
	}

	return nil
}

// IsSingleEmoji - ровно одна графема, начинающаяся с символа-пиктограммы.
// Модификаторы кожи, ZWJ-последовательности и флаги считаются одной графемой.
func IsSingleEmoji(s string) bool {
	if s == "" || len(s) > MaxEmojiBytes {
		return false
	}

	if uniseg.GraphemeClusterCount(s) != 1 {
		return false
	}

	r, _ := utf8.DecodeRuneInString(s)

	return unicode.Is(unicode.So, r)
}

type EndCallEvent struct {
	SessionID  string `json:"sessionId"`
	WasSkipped bool   `json:"wasSkipped"`
}

func (e EndCallEvent) Validate() error {
	return validateSessionID(e.SessionID)
}

const (
	ConnectionStatusConnected = "connected"
	ConnectionStatusFailed    = "failed"
)

type ConnectionStatusEvent struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`

	// ConnectionTime - сколько миллисекунд заняло установление p2p соединения
	ConnectionTime *int64 `json:"connectionTime"`
}

func (e ConnectionStatusEvent) Validate() error {
	if err := validateSessionID(e.SessionID); err != nil {
		return err
	}

	switch e.Status {
	case ConnectionStatusConnected, ConnectionStatusFailed:
	default:
		return domain.NewValidationError("status", "must be connected or failed")
	}

	if e.ConnectionTime != nil && *e.ConnectionTime < 0 {
		return domain.NewValidationError("connectionTime", "must not be negative")
	}

	return nil
}

// ReportEvent - жалоба на собеседника
type ReportEvent struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

func (e ReportEvent) Sanitized() (ReportEvent, error) {
	if err := validateSessionID(e.SessionID); err != nil {
		return e, err
	}

	e.Reason = stripHTML(e.Reason)

	if e.Reason == "" || utf8.RuneCountInString(e.Reason) > MaxReasonLen {
		return e, domain.NewValidationError("reason", fmt.Sprintf("must be 1..%d characters", MaxReasonLen))
	}

	return e, nil
}

// stripHTML убирает разметку и возвращает текст без html-экранирования
func stripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}
