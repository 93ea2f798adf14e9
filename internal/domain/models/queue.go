package models

import (
	"strings"
	"time"
)

// ConnHandle - идентификатор конкретного WS соединения участника.
// При переподключении участник получает новый handle.
type ConnHandle string

type PoolKey struct {
	Mode     QueueType
	Region   string
	Language string
}

func (k PoolKey) String() string {
	var b strings.Builder

	b.WriteString(string(k.Mode))

	if k.Region != "" {
		b.WriteString(":")
		b.WriteString(k.Region)
	}

	if k.Language != "" {
		b.WriteString(":")
		b.WriteString(k.Language)
	}

	return b.String()
}

type QueueEntry struct {
	ParticipantID ParticipantID
	Handle        ConnHandle
	JoinedAt      time.Time
	Pool          PoolKey
	Attributes    Attributes
}
