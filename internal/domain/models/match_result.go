package models

type MatchKind int

const (
	// MatchKindQueued - пары нет, участник ждет в пуле
	MatchKindQueued MatchKind = iota + 1

	// MatchKindMatched - сессия создана
	MatchKindMatched

	// MatchKindRequeued - пара была, но сессию создать не удалось; ожидающий вернулся в начало пула
	MatchKindRequeued

	// MatchKindRejected - вход отклонен молча (пул переполнен, участник занят)
	MatchKindRejected
)

func (k MatchKind) String() string {
	switch k {
	case MatchKindQueued:
		return "queued"
	case MatchKindMatched:
		return "matched"
	case MatchKindRequeued:
		return "requeued"
	case MatchKindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

const (
	RejectReasonPoolFull = "pool full"
	RejectReasonBusy     = "participant busy"
)

type MatchResult struct {
	Kind MatchKind

	// Matched
	Session Session
	Peer    QueueEntry
	Score   int

	// Queued, Requeued
	Position int

	// Requeued
	Cause error

	// Rejected
	Reason string
}

func Queued(position int) MatchResult {
	return MatchResult{Kind: MatchKindQueued, Position: position}
}

func Matched(session Session, peer QueueEntry) MatchResult {
	return MatchResult{Kind: MatchKindMatched, Session: session, Peer: peer}
}

func Requeued(position int, cause error) MatchResult {
	return MatchResult{Kind: MatchKindRequeued, Position: position, Cause: cause}
}

func Rejected(reason string) MatchResult {
	return MatchResult{Kind: MatchKindRejected, Reason: reason}
}
