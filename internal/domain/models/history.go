package models

import (
	"database/sql"
	"time"
)

type Reputation struct {
	ParticipantID ParticipantID `db:"participant_id"`
	Score         int           `db:"score"`
	Premium       bool          `db:"premium"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

type AbuseReport struct {
	ID        int64         `db:"id"`
	SessionID string        `db:"session_id"`
	Reporter  ParticipantID `db:"reporter_id"`
	Reported  ParticipantID `db:"reported_id"`
	Reason    string        `db:"reason"`
	CreatedAt time.Time     `db:"created_at"`
}

type EndReason string

const (
	EndReasonEnded        EndReason = "ended"
	EndReasonSkipped      EndReason = "skipped"
	EndReasonDisconnected EndReason = "disconnected"
	EndReasonExpired      EndReason = "expired"
)

type MatchRecord struct {
	SessionID    string         `db:"session_id"`
	Pool         string         `db:"pool"`
	ParticipantA ParticipantID  `db:"participant_a"`
	ParticipantB ParticipantID  `db:"participant_b"`
	Score        int            `db:"score"`
	CreatedAt    time.Time      `db:"created_at"`
	ConnectedAt  sql.NullTime   `db:"connected_at"`
	EndedAt      sql.NullTime   `db:"ended_at"`
	EndReason    sql.NullString `db:"end_reason"`
}

func (r MatchRecord) Peer(id ParticipantID) (ParticipantID, bool) {
	switch id {
	case r.ParticipantA:
		return r.ParticipantB, true
	case r.ParticipantB:
		return r.ParticipantA, true
	default:
		return "", false
	}
}
