package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/models"
)

const maxDeviceIDLen = 100

// GuestClaims - анонимный участник; DeviceID только для диагностики
type GuestClaims struct {
	DeviceID string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

type AuthUsecase interface {
	// GuestToken выдает анонимный JWT с новым participant id
	GuestToken(deviceID string) (string, models.ParticipantID, error)

	// ParseToken проверяет подпись и срок и возвращает participant id из subject
	ParseToken(token string) (models.ParticipantID, error)

	TokenTTL() time.Duration
}

type authUsecase struct {
	jwtSecret []byte
	ttl       time.Duration
}

func NewAuthUsecase(jwtSecret string, ttl time.Duration) AuthUsecase {
	return &authUsecase{
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
	}
}

func (uc *authUsecase) GuestToken(deviceID string) (string, models.ParticipantID, error) {
	if len(deviceID) > maxDeviceIDLen {
		return "", "", domain.NewValidationError("deviceId", fmt.Sprintf("must be at most %d characters", maxDeviceIDLen))
	}

	participantID := models.ParticipantID(uuid.NewString())
	now := time.Now()

	claims := &GuestClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(participantID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(uc.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(uc.jwtSecret)
	if err != nil {
		return "", "", fmt.Errorf("sign guest token: %w", err)
	}

	return token, participantID, nil
}

func (uc *authUsecase) ParseToken(raw string) (models.ParticipantID, error) {
	token, err := jwt.ParseWithClaims(
		raw,
		&GuestClaims{},
		func(token *jwt.Token) (any, error) {
			return uc.jwtSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*GuestClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}

	if claims.Subject == "" {
		return "", errors.New("empty token subject")
	}

	return models.ParticipantID(claims.Subject), nil
}

func (uc *authUsecase) TokenTTL() time.Duration {
	return uc.ttl
}
