package models

import (
	"encoding/json"
	"time"
)

type SessionState string

const (
	SessionStateMatched       SessionState = "MATCHED"
	SessionStateOfferSent     SessionState = "OFFER_SENT"
	SessionStateAnswerSent    SessionState = "ANSWER_SENT"
	SessionStateICEExchanging SessionState = "ICE_EXCHANGING"
	SessionStateEnded         SessionState = "ENDED"
)

// SignalPayload - непрозрачные данные offer/answer/candidate со своим сроком жизни
type SignalPayload struct {
	Data      json.RawMessage
	Sender    ParticipantID
	ExpiresAt time.Time
}

type Session struct {
	ID           string
	Pool         PoolKey
	ParticipantA ParticipantID
	ParticipantB ParticipantID
	CreatedAt    time.Time
	ExpiresAt    time.Time
	State        SessionState

	Offer       *SignalPayload
	Answer      *SignalPayload
	CandidatesA []SignalPayload
	CandidatesB []SignalPayload
}

func (s Session) Has(id ParticipantID) bool {
	return id != "" && (s.ParticipantA == id || s.ParticipantB == id)
}

// Peer возвращает второго участника сессии
func (s Session) Peer(id ParticipantID) (ParticipantID, bool) {
	switch id {
	case s.ParticipantA:
		return s.ParticipantB, true
	case s.ParticipantB:
		return s.ParticipantA, true
	default:
		return "", false
	}
}

// Clone копирует сессию вместе со слайсами кандидатов
func (s Session) Clone() Session {
	c := s

	if s.Offer != nil {
		offer := *s.Offer
		c.Offer = &offer
	}

	if s.Answer != nil {
		answer := *s.Answer
		c.Answer = &answer
	}

	c.CandidatesA = append([]SignalPayload(nil), s.CandidatesA...)
	c.CandidatesB = append([]SignalPayload(nil), s.CandidatesB...)

	return c
}
