package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation - некорректный входящий payload, клиент получает error
	ErrValidation = errors.New("validation error")

	// ErrRateLimited - превышен лимит действий, клиент получает error
	ErrRateLimited = errors.New("rate limited")

	// ErrStoreUnavailable - хранилище не ответило вовремя или отказало в записи
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotReady - у участника нет живого соединения для доставки
	ErrNotReady = errors.New("delivery channel not ready")

	// ErrNotFound - сессия или запись очереди отсутствует
	ErrNotFound = errors.New("not found")

	// ErrParticipantBusy - участник уже в активной сессии
	ErrParticipantBusy = errors.New("participant busy")
)

type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}

	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// BusyError указывает, какой именно участник уже занят сессией
type BusyError struct {
	ParticipantID string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("participant %s busy", e.ParticipantID)
}

func (e *BusyError) Is(target error) bool {
	return target == ErrParticipantBusy
}

// ClientMessage возвращает текст для события error.
// Клиенту отдаются только ошибки валидации и рейт-лимита, остальное обрабатывается внутри.
func ClientMessage(err error) (string, bool) {
	var validationErr *ValidationError

	switch {
	case errors.As(err, &validationErr):
		return validationErr.Error(), true
	case errors.Is(err, ErrValidation):
		return ErrValidation.Error(), true
	case errors.Is(err, ErrRateLimited):
		return "too many requests, slow down", true
	default:
		return "", false
	}
}
