package party

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jmswll/keyrace-backend/internal/engine"
)

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s := <-ch:
		t.Fatalf("expected no snapshot within %v, but got: %+v", within, s)
	case <-time.After(within):
		// good: no snapshot
	}
}

func recvView(t *testing.T, p *Party, within time.Duration) View {
	t.Helper()
	reply := make(chan View, 1)
	p.Inbox() <- GetView{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func pinChallenge(t *testing.T, text string) {
	t.Helper()
	old := engine.NewChallenge
	engine.NewChallenge = func() string { return text }
	t.Cleanup(func() { engine.NewChallenge = old })
}

func newTestParty(t *testing.T, clock clockwork.Clock, onEmpty func(string)) *Party {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, "R", engine.Rules{RoundMs: 30000}, clock, zap.NewNop(), onEmpty)
}

func join(t *testing.T, p *Party, connID, name string, outbox chan Snapshot) JoinResult {
	t.Helper()
	reply := make(chan JoinResult, 1)
	p.Inbox() <- Join{ConnID: connID, Name: name, Outbox: outbox, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for join reply")
		return JoinResult{} // unreachable
	}
}

func TestParty_JoinBroadcastsSnapshot(t *testing.T) {
	p := newTestParty(t, clockwork.NewFakeClock(), nil)

	out := make(chan Snapshot, 4)
	res := join(t, p, "c1", "alice", out)
	if res.Player.ConnID != "c1" || res.Player.Name != "alice" {
		t.Fatalf("unexpected join result: %+v", res.Player)
	}

	snap := recvSnapshot(t, out, time.Second)
	if snap.Version != 1 {
		t.Fatalf("after join: want version=1, got %d", snap.Version)
	}
	if snap.State.Phase != engine.PhaseLobby {
		t.Fatalf("after join: want lobby, got %q", snap.State.Phase)
	}
	if len(snap.State.Players) != 1 {
		t.Fatalf("after join: want 1 player, got %d", len(snap.State.Players))
	}
}

func TestParty_ReadinessCycle(t *testing.T) {
	pinChallenge(t, "alpha beta gamma")
	p := newTestParty(t, clockwork.NewFakeClock(), nil)

	out1 := make(chan Snapshot, 16)
	out2 := make(chan Snapshot, 16)
	join(t, p, "c1", "alice", out1)
	join(t, p, "c2", "bob", out2)
	_ = recvSnapshot(t, out1, time.Second) // c1 join
	_ = recvSnapshot(t, out1, time.Second) // c2 join

	p.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdSetReady, ConnID: "c1", Ready: true}}
	snap := recvSnapshot(t, out1, time.Second)
	if snap.State.Phase != engine.PhaseLobby {
		t.Fatalf("one ready of two: want lobby, got %q", snap.State.Phase)
	}

	p.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdSetReady, ConnID: "c2", Ready: true}}
	snap = recvSnapshot(t, out1, time.Second)
	if snap.State.Phase != engine.PhaseReady {
		t.Fatalf("all ready: want ready, got %q", snap.State.Phase)
	}
	if snap.State.Challenge != "alpha beta gamma" {
		t.Fatalf("entering ready must generate the challenge, got %q", snap.State.Challenge)
	}

	p.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdSetReady, ConnID: "c1", Ready: false}}
	snap = recvSnapshot(t, out1, time.Second)
	if snap.State.Phase != engine.PhaseLobby {
		t.Fatalf("one not-ready: want lobby, got %q", snap.State.Phase)
	}
	if snap.State.Challenge != "" {
		t.Fatalf("challenge must clear on revert, got %q", snap.State.Challenge)
	}
}

func TestParty_TimerDrivenRound(t *testing.T) {
	pinChallenge(t, "alpha beta gamma")
	fc := clockwork.NewFakeClock()
	p := newTestParty(t, fc, nil)

	out1 := make(chan Snapshot, 16)
	out2 := make(chan Snapshot, 16)
	join(t, p, "c1", "alice", out1)
	join(t, p, "c2", "bob", out2)
	_ = recvSnapshot(t, out1, time.Second)
	_ = recvSnapshot(t, out1, time.Second)

	p.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdStartRound, ConnID: "c1"}}

	// Subscribers never see "starting": beginning the round and arming the
	// timer happen before the snapshot goes out.
	snap := recvSnapshot(t, out1, time.Second)
	if snap.State.Phase != engine.PhaseRunning {
		t.Fatalf("after start: want running, got %q", snap.State.Phase)
	}
	if snap.State.Challenge == "" {
		t.Fatalf("after start: challenge must be present")
	}

	p.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdSetProgress, ConnID: "c1", Progress: 100}}
	snap = recvSnapshot(t, out1, time.Second)
	if got := snap.State.Players[0].Place; got != 1 {
		t.Fatalf("first finisher: want place 1, got %d", got)
	}

	fc.Advance(30 * time.Second)
	snap = recvSnapshot(t, out1, time.Second)
	if snap.State.Phase != engine.PhaseFinished {
		t.Fatalf("after expiry: want finished, got %q", snap.State.Phase)
	}
	if snap.State.Players[0].Place != 1 || snap.State.Players[1].Place != 2 {
		t.Fatalf("after expiry: want places 1,2 got %d,%d",
			snap.State.Players[0].Place, snap.State.Players[1].Place)
	}
}

func TestParty_StaleTimerFireIsDropped(t *testing.T) {
	pinChallenge(t, "alpha beta gamma")
	p := newTestParty(t, clockwork.NewFakeClock(), nil)

	out := make(chan Snapshot, 16)
	join(t, p, "c1", "alice", out)
	_ = recvSnapshot(t, out, time.Second)

	p.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdStartRound, ConnID: "c1"}}
	_ = recvSnapshot(t, out, time.Second) // running

	// A fire from a replaced timer carries an old generation and must be
	// ignored; the current generation still ends the round.
	p.Inbox() <- roundExpired{gen: 0}
	recvNoSnapshot(t, out, 200*time.Millisecond)

	p.Inbox() <- roundExpired{gen: 1}
	snap := recvSnapshot(t, out, time.Second)
	if snap.State.Phase != engine.PhaseFinished {
		t.Fatalf("current-generation fire must finish the round, got %q", snap.State.Phase)
	}
}

func TestParty_LastLeaveStopsTimerAndNotifiesHub(t *testing.T) {
	pinChallenge(t, "alpha beta gamma")
	fc := clockwork.NewFakeClock()
	emptied := make(chan string, 1)
	p := newTestParty(t, fc, func(room string) { emptied <- room })

	out := make(chan Snapshot, 16)
	join(t, p, "c1", "alice", out)
	_ = recvSnapshot(t, out, time.Second)

	p.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdStartRound, ConnID: "c1"}}
	_ = recvSnapshot(t, out, time.Second) // running, timer armed

	p.Inbox() <- Leave{ConnID: "c1"}
	select {
	case room := <-emptied:
		if room != "R" {
			t.Fatalf("want onEmpty for R, got %q", room)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for onEmpty")
	}

	// The pending expiry must be a no-op for the deleted room.
	fc.Advance(30 * time.Second)
	recvNoSnapshot(t, out, 200*time.Millisecond)
}

func TestParty_DropSlowClient(t *testing.T) {
	p := newTestParty(t, clockwork.NewFakeClock(), nil)

	out := make(chan Snapshot, 1)
	join(t, p, "c1", "alice", out)
	// Outbox is now full; the next broadcast cannot be delivered.
	p.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdSetReady, ConnID: "c1", Ready: true}}

	view := recvView(t, p, time.Second)
	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
	if len(view.State.Players) != 1 {
		t.Fatalf("dropping the outbox must not remove the player; players=%d", len(view.State.Players))
	}
}

func TestParty_RejoinDoesNotDuplicate(t *testing.T) {
	p := newTestParty(t, clockwork.NewFakeClock(), nil)

	out := make(chan Snapshot, 16)
	join(t, p, "c1", "alice", out)
	join(t, p, "c1", "alice", out)

	view := recvView(t, p, time.Second)
	if len(view.State.Players) != 1 {
		t.Fatalf("rejoin duplicated player list: %d", len(view.State.Players))
	}
}
