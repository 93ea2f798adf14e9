package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/qrave1/RandomTalk/internal/domain"
	"github.com/qrave1/RandomTalk/internal/domain/events"
	"github.com/qrave1/RandomTalk/internal/domain/models"
)

func TestCallScenarioFromMatchToEndCall(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	ctx := context.Background()

	x := f.connect("x")
	y := f.connect("y")

	if res := f.join(t, "x", events.JoinQueueEvent{}); res.Kind != models.MatchKindQueued {
		t.Fatalf("x result=%v, want queued", res.Kind)
	}

	joined := x.ofType(events.TypeFastQueueJoined)
	if len(joined) != 1 {
		t.Fatalf("x fast-queue-joined=%d, want 1", len(joined))
	}
	if p := joined[0].Data.(events.QueueJoinedPayload); p.Position != 1 || p.WaitTime != 5 {
		t.Fatalf("queue joined payload=%+v, want position 1 wait 5", p)
	}

	res := f.join(t, "y", events.JoinQueueEvent{})
	if res.Kind != models.MatchKindMatched {
		t.Fatalf("y result=%v, want matched", res.Kind)
	}

	sid := res.Session.ID

	xm := x.ofType(events.TypeMatched)
	ym := y.ofType(events.TypeMatched)
	if len(xm) != 1 || len(ym) != 1 {
		t.Fatalf("matched events x=%d y=%d, want 1/1", len(xm), len(ym))
	}

	xp := xm[0].Data.(events.MatchedPayload)
	yp := ym[0].Data.(events.MatchedPayload)

	if xp.SessionID != sid || yp.SessionID != sid {
		t.Fatalf("session ids x=%s y=%s, want %s", xp.SessionID, yp.SessionID, sid)
	}
	if xp.PeerID != "y" || yp.PeerID != "x" {
		t.Fatalf("peer ids x=%s y=%s", xp.PeerID, yp.PeerID)
	}
	if xp.Initiator || !yp.Initiator {
		t.Fatalf("initiator x=%v y=%v, want joiner y to initiate", xp.Initiator, yp.Initiator)
	}

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	if err := f.signaling.SendOffer(ctx, "x", events.SignalEvent{SessionID: sid, Type: events.TypeOffer, Data: offer}); err != nil {
		t.Fatalf("SendOffer: %v", err)
	}

	offers := y.ofType(events.TypeOffer)
	if len(offers) != 1 {
		t.Fatalf("y offers=%d, want 1", len(offers))
	}
	if p := offers[0].Data.(events.SignalPayload); p.SessionID != sid || string(p.Data) != string(offer) {
		t.Fatalf("offer payload=%+v", p)
	}

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	if err := f.signaling.SendAnswer(ctx, "y", events.SignalEvent{SessionID: sid, Data: answer}); err != nil {
		t.Fatalf("SendAnswer: %v", err)
	}
	if got := len(x.ofType(events.TypeAnswer)); got != 1 {
		t.Fatalf("x answers=%d, want 1", got)
	}

	session, err := f.sessions.Get(ctx, sid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.State != models.SessionStateAnswerSent || session.Offer == nil || session.Answer == nil {
		t.Fatalf("session=%+v, want ANSWER_SENT with offer and answer", session)
	}

	if err := f.signaling.EndCall(ctx, "x", events.EndCallEvent{SessionID: sid}); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	ended := y.ofType(events.TypeCallEnded)
	if len(ended) != 1 {
		t.Fatalf("y call-ended=%d, want 1", len(ended))
	}
	if p := ended[0].Data.(events.CallEndedPayload); p.SessionID != sid || p.WasSkipped {
		t.Fatalf("call-ended payload=%+v", p)
	}
	if len(x.ofType(events.TypeCallEnded)) != 0 {
		t.Fatalf("caller must not receive call-ended")
	}

	if _, err := f.sessions.Get(ctx, sid); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get after end err=%v, want ErrNotFound", err)
	}

	if reason, ok := f.history.finishedWith(sid); !ok || reason != models.EndReasonEnded {
		t.Fatalf("history reason=%q, want ended", reason)
	}

	// повторный end-call - no-op
	if err := f.signaling.EndCall(ctx, "y", events.EndCallEvent{SessionID: sid}); err != nil {
		t.Fatalf("second EndCall: %v", err)
	}
	if len(x.ofType(events.TypeCallEnded)) != 0 {
		t.Fatalf("second end-call must not notify")
	}
}

func TestSkipRecordsSkippedReason(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	f.connect("a")
	b := f.connect("b")

	sid := f.matchPair(t, "a", "b")

	if err := f.signaling.EndCall(context.Background(), "a", events.EndCallEvent{SessionID: sid, WasSkipped: true}); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	ended := b.ofType(events.TypeCallEnded)
	if len(ended) != 1 || !ended[0].Data.(events.CallEndedPayload).WasSkipped {
		t.Fatalf("call-ended=%+v, want wasSkipped", ended)
	}

	if reason, _ := f.history.finishedWith(sid); reason != models.EndReasonSkipped {
		t.Fatalf("history reason=%q, want skipped", reason)
	}
}

func TestDisconnectNotifiesPeerExactlyOnce(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	ctx := context.Background()

	a := f.connect("a")
	b := f.connect("b")

	sid := f.matchPair(t, "a", "b")

	f.signaling.HandleDisconnect(ctx, "a", f.handles["a"])

	got := b.ofType(events.TypePeerDisconnected)
	if len(got) != 1 || got[0].Data.(events.SessionPayload).SessionID != sid {
		t.Fatalf("b peer-disconnected=%+v, want one for %s", got, sid)
	}

	if _, err := f.sessions.Get(ctx, sid); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("session still present after disconnect")
	}

	// одновременное отключение второй стороны и повтор для первой - no-op
	f.signaling.HandleDisconnect(ctx, "b", f.handles["b"])
	f.signaling.HandleDisconnect(ctx, "a", f.handles["a"])

	if len(b.ofType(events.TypePeerDisconnected)) != 1 {
		t.Fatalf("duplicate peer-disconnected delivered")
	}
	if len(a.ofType(events.TypePeerDisconnected)) != 0 {
		t.Fatalf("disconnected side must not be notified")
	}

	if reason, _ := f.history.finishedWith(sid); reason != models.EndReasonDisconnected {
		t.Fatalf("history reason=%q, want disconnected", reason)
	}
	if f.registry.Count() != 0 {
		t.Fatalf("registry count=%d, want 0", f.registry.Count())
	}
}

func TestConcurrentDisconnectsNotifyAtMostOnce(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	ctx := context.Background()

	a := f.connect("a")
	b := f.connect("b")

	f.matchPair(t, "a", "b")

	done := make(chan struct{}, 2)
	for _, id := range []models.ParticipantID{"a", "b"} {
		go func(id models.ParticipantID) {
			f.signaling.HandleDisconnect(ctx, id, f.handles[id])
			done <- struct{}{}
		}(id)
	}
	<-done
	<-done

	total := len(a.ofType(events.TypePeerDisconnected)) + len(b.ofType(events.TypePeerDisconnected))
	if total > 1 {
		t.Fatalf("peer-disconnected delivered %d times, want at most 1", total)
	}
	if f.sessions.Count() != 0 {
		t.Fatalf("sessions=%d, want 0", f.sessions.Count())
	}
}

func TestDisconnectOfStaleHandleKeepsSession(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	ctx := context.Background()

	f.connect("a")
	b := f.connect("b")

	sid := f.matchPair(t, "a", "b")

	stale := f.handles["a"]
	f.connect("a")

	f.signaling.HandleDisconnect(ctx, "a", stale)

	if _, err := f.sessions.Get(ctx, sid); err != nil {
		t.Fatalf("session lost after stale close: %v", err)
	}
	if len(b.ofType(events.TypePeerDisconnected)) != 0 {
		t.Fatalf("peer notified about stale close")
	}
	if !f.registry.IsCurrent("a", f.handles["a"]) {
		t.Fatalf("new connection removed by stale close")
	}
}

func TestDisconnectLeavesQueue(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())

	f.connect("a")
	f.join(t, "a", events.JoinQueueEvent{})

	f.signaling.HandleDisconnect(context.Background(), "a", f.handles["a"])

	for pool, size := range f.queues.Sizes() {
		if size != 0 {
			t.Fatalf("pool %s size=%d after disconnect, want 0", pool, size)
		}
	}
}

func TestSignalRelayEdgeCases(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	ctx := context.Background()

	a := f.connect("a")
	f.connect("b")
	f.connect("stranger")

	sid := f.matchPair(t, "a", "b")
	data := json.RawMessage(`{"candidate":"c"}`)

	// неизвестная сессия - тихий no-op
	if err := f.signaling.SendCandidate(ctx, "b", events.SignalEvent{SessionID: "missing", Data: data}); err != nil {
		t.Fatalf("SendCandidate to missing session err=%v, want nil", err)
	}

	// чужая сессия - ошибка валидации
	err := f.signaling.SendCandidate(ctx, "stranger", events.SignalEvent{SessionID: sid, Data: data})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("stranger SendCandidate err=%v, want ErrValidation", err)
	}

	// тип в payload не совпадает с событием
	err = f.signaling.SendOffer(ctx, "b", events.SignalEvent{SessionID: sid, Type: events.TypeAnswer, Data: data})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("mismatched type err=%v, want ErrValidation", err)
	}

	if len(a.ofType(events.TypeOffer)) != 0 || len(a.ofType(events.TypeCandidate)) != 0 {
		t.Fatalf("invalid signals must not be forwarded")
	}

	// собеседник без соединения - не ошибка
	f.registry.Remove("a", f.handles["a"])

	if err := f.signaling.SendCandidate(ctx, "b", events.SignalEvent{SessionID: sid, Data: data}); err != nil {
		t.Fatalf("SendCandidate to offline peer err=%v, want nil", err)
	}

	session, err := f.sessions.Get(ctx, sid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(session.CandidatesB) != 1 {
		t.Fatalf("candidatesB=%d, want 1 stored", len(session.CandidatesB))
	}
}

func TestMessageAndReactionForwarded(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	ctx := context.Background()

	f.connect("a")
	b := f.connect("b")

	sid := f.matchPair(t, "a", "b")

	err := f.signaling.SendMessage(ctx, "a", events.MessageEvent{SessionID: sid, Message: "<b>hi</b><script>x()</script>"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msgs := b.ofType(events.TypeMessage)
	if len(msgs) != 1 {
		t.Fatalf("messages=%d, want 1", len(msgs))
	}

	p := msgs[0].Data.(events.MessagePayload)
	if p.Message != "hi" {
		t.Fatalf("message=%q, want stripped %q", p.Message, "hi")
	}
	if p.Timestamp == 0 {
		t.Fatalf("timestamp not filled")
	}

	if err := f.signaling.SendMessage(ctx, "a", events.MessageEvent{SessionID: sid, Message: "<script></script>"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty message err=%v, want ErrValidation", err)
	}

	if err := f.signaling.SendReaction(ctx, "a", events.ReactionEvent{SessionID: sid, Emoji: "🔥"}); err != nil {
		t.Fatalf("SendReaction: %v", err)
	}
	if got := len(b.ofType(events.TypeReaction)); got != 1 {
		t.Fatalf("reactions=%d, want 1", got)
	}

	if err := f.signaling.SendReaction(ctx, "a", events.ReactionEvent{SessionID: sid, Emoji: "ok"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("text reaction err=%v, want ErrValidation", err)
	}
}

func TestConnectionStatusMarksHistory(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	ctx := context.Background()

	a := f.connect("a")
	b := f.connect("b")

	sid := f.matchPair(t, "a", "b")

	if err := f.signaling.ConnectionStatus(ctx, "a", events.ConnectionStatusEvent{SessionID: sid, Status: "connected"}); err != nil {
		t.Fatalf("ConnectionStatus: %v", err)
	}

	f.history.mu.Lock()
	connected := f.history.connected[sid]
	f.history.mu.Unlock()

	if !connected {
		t.Fatalf("match not marked connected")
	}

	// статус не пересылается: у a fast-queue-joined и matched, у b только matched
	if a.count() != 2 || b.count() != 1 {
		t.Fatalf("unexpected events after connection-status: a=%d b=%d", a.count(), b.count())
	}

	if err := f.signaling.ConnectionStatus(ctx, "a", events.ConnectionStatusEvent{SessionID: sid, Status: "weird"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad status err=%v, want ErrValidation", err)
	}
}

func TestReportAbuseLowersReputationOnce(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	ctx := context.Background()

	f.connect("a")
	f.connect("b")
	f.connect("c")

	sid := f.matchPair(t, "a", "b")

	for i := 0; i < 2; i++ {
		if err := f.signaling.ReportAbuse(ctx, "a", events.ReportEvent{SessionID: sid, Reason: "spam"}); err != nil {
			t.Fatalf("ReportAbuse #%d: %v", i, err)
		}
	}

	if len(f.reports.reports) != 1 || f.reports.reports[0].Reported != "b" {
		t.Fatalf("reports=%+v, want one against b", f.reports.reports)
	}

	if got := f.reputation.scores["b"]; got != 45 {
		t.Fatalf("b reputation=%d, want 45", got)
	}

	if err := f.signaling.ReportAbuse(ctx, "c", events.ReportEvent{SessionID: sid, Reason: "spam"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("outsider report err=%v, want ErrValidation", err)
	}

	if err := f.signaling.ReportAbuse(ctx, "a", events.ReportEvent{SessionID: "unknown", Reason: "spam"}); err != nil {
		t.Fatalf("report on unknown session err=%v, want nil", err)
	}
}

func TestExpiredSessionClosesHistoryWithoutNotifying(t *testing.T) {
	f := newFixture(t, defaultSessionConfig())
	ctx := context.Background()

	a := f.connect("a")
	b := f.connect("b")

	fired := make(chan struct{}, 1)
	f.sessions.OnExpire(func(s models.Session) {
		f.signaling.HandleExpired(s)
		fired <- struct{}{}
	})

	sid := f.matchPair(t, "a", "b")

	f.clock.Advance(6 * time.Minute)

	if _, err := f.sessions.Get(ctx, sid); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get after TTL err=%v, want ErrNotFound", err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("expire hook not called")
	}

	if reason, _ := f.history.finishedWith(sid); reason != models.EndReasonExpired {
		t.Fatalf("history reason=%q, want expired", reason)
	}

	if len(a.ofType(events.TypeCallEnded))+len(b.ofType(events.TypeCallEnded)) != 0 {
		t.Fatalf("expiry must not send call-ended")
	}
}
