package events

import (
	"encoding/json"

	"github.com/qrave1/RandomTalk/internal/domain/models"
)

type MatchedPayload struct {
	SessionID      string                `json:"sessionId"`
	PeerID         models.ParticipantID  `json:"peerId"`
	PeerAttributes models.PeerAttributes `json:"peerAttributes"`

	// Initiator - этот участник создает offer
	Initiator bool `json:"initiator"`
}

type SignalPayload struct {
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

type MessagePayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Sender    string `json:"sender,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type ReactionPayload struct {
	SessionID string `json:"sessionId"`
	Emoji     string `json:"emoji"`
	Timestamp int64  `json:"timestamp"`
}

type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

type CallEndedPayload struct {
	SessionID  string `json:"sessionId"`
	WasSkipped bool   `json:"wasSkipped"`
}

type QueueJoinedPayload struct {
	Position int `json:"position"`

	// WaitTime - оценка ожидания в секундах
	WaitTime int `json:"waitTime"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func Matched(sessionID string, peer models.QueueEntry, initiator bool) Envelope {
	return New(TypeMatched, MatchedPayload{
		SessionID:      sessionID,
		PeerID:         peer.ParticipantID,
		PeerAttributes: peer.Attributes.Public(),
		Initiator:      initiator,
	})
}

// Signal - offer, answer или candidate для собеседника
func Signal(eventType, sessionID string, data json.RawMessage) Envelope {
	return New(eventType, SignalPayload{SessionID: sessionID, Data: data})
}

func ChatMessage(e MessageEvent) Envelope {
	return New(TypeMessage, MessagePayload{
		SessionID: e.SessionID,
		Message:   e.Message,
		Sender:    e.Sender,
		Timestamp: e.Timestamp,
	})
}

func Reaction(e ReactionEvent) Envelope {
	return New(TypeReaction, ReactionPayload{
		SessionID: e.SessionID,
		Emoji:     e.Emoji,
		Timestamp: e.Timestamp,
	})
}

func PeerDisconnected(sessionID string) Envelope {
	return New(TypePeerDisconnected, SessionPayload{SessionID: sessionID})
}

func CallEnded(sessionID string, wasSkipped bool) Envelope {
	return New(TypeCallEnded, CallEndedPayload{SessionID: sessionID, WasSkipped: wasSkipped})
}

func QueueJoined(position, waitSeconds int) Envelope {
	return New(TypeFastQueueJoined, QueueJoinedPayload{Position: position, WaitTime: waitSeconds})
}

func QueueLeft() Envelope {
	return New(TypeFastQueueLeft, nil)
}

func Error(message string) Envelope {
	return New(TypeError, ErrorPayload{Message: message})
}

func Pong() Envelope {
	return New(TypePong, nil)
}
