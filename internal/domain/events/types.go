package events

import (
	"encoding/json"
)

// Входящие события
const (
	TypeJoinQueue        = "join-queue"
	TypeLeaveQueue       = "leave-queue"
	TypeSendOffer        = "send-offer"
	TypeSendAnswer       = "send-answer"
	TypeSendCandidate    = "send-candidate"
	TypeSendMessage      = "send-message"
	TypeSendReaction     = "send-reaction"
	TypeEndCall          = "end-call"
	TypeConnectionStatus = "connection-status"
	TypeReportAbuse      = "report-abuse"
	TypePing             = "ping"
)

// Исходящие события
const (
	TypeMatched          = "matched"
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeCandidate        = "candidate"
	TypeMessage          = "message"
	TypeReaction         = "reaction"
	TypePeerDisconnected = "peer-disconnected"
	TypeCallEnded        = "call-ended"
	TypeFastQueueJoined  = "fast-queue-joined"
	TypeFastQueueLeft    = "fast-queue-left"
	TypeError            = "error"
	TypePong             = "pong"
)

// Message - общее событие
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelope - исходящее событие
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func New(eventType string, data any) Envelope {
	if data == nil {
		data = struct{}{}
	}

	return Envelope{Type: eventType, Data: data}
}
