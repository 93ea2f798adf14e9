package constant

// Ключи атрибутов для slog
const (
	Error         = "error"
	ParticipantID = "participant_id"
	PeerID        = "peer_id"
	SessionID     = "session_id"
	Pool          = "pool"
	Event         = "event"
	State         = "state"
	Reason        = "reason"
)
