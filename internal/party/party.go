package party

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jmswll/keyrace-backend/internal/engine"
	"github.com/jmswll/keyrace-backend/internal/metrics"
)

type Msg interface{ isPartyMsg() }

// Join registers a member connection and its snapshot outbox, applying the
// idempotent engine join.
type Join struct {
	ConnID string
	Name   string
	Outbox chan Snapshot
	Reply  chan JoinResult
}

func (Join) isPartyMsg() {}

type Leave struct{ ConnID string }

func (Leave) isPartyMsg() {}

type FromClient struct {
	Cmd engine.Command
}

func (FromClient) isPartyMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isPartyMsg() {}

type Shutdown struct{}

func (Shutdown) isPartyMsg() {}

// roundExpired re-enters the loop when the round timer fires. The generation
// tag lets the loop drop fires from a timer that has since been replaced.
type roundExpired struct{ gen uint64 }

func (roundExpired) isPartyMsg() {}

type Snapshot struct {
	Version int
	State   engine.State
}

type JoinResult struct {
	Player engine.Player
}

// View reflects internal state for tests without data races.
type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type Party struct {
	room     string
	inbox    chan Msg
	state    engine.State
	version  int
	clients  map[string]chan Snapshot
	clock    clockwork.Clock
	timer    clockwork.Timer
	timerGen uint64
	onEmpty  func(room string)
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// New spawns the actor goroutine for one room. onEmpty is called from the
// loop right before the party shuts itself down because its last player left.
func New(parent context.Context, room string, rules engine.Rules, clock clockwork.Clock, logger *zap.Logger, onEmpty func(room string)) *Party {
	ctx, cancel := context.WithCancel(parent)

	p := &Party{
		room:    room,
		inbox:   make(chan Msg, 64),
		state:   engine.NewState(room, rules),
		clients: make(map[string]chan Snapshot),
		clock:   clock,
		onEmpty: onEmpty,
		log:     logger.With(zap.String("room", room)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go p.loop()
	return p
}

func (p *Party) Inbox() chan<- Msg { return p.inbox }

func (p *Party) loop() {
	for {
		select {
		case <-p.ctx.Done():
			p.shutdown()
			return

		case m := <-p.inbox:
			switch msg := m.(type) {
			case Join:
				events, newState, err := engine.Apply(p.state, engine.Command{
					Type:   engine.CmdJoin,
					ConnID: msg.ConnID,
					Name:   msg.Name,
				})
				if err != nil {
					break
				}
				p.clients[msg.ConnID] = msg.Outbox
				p.commit(newState, events)
				if msg.Reply != nil {
					joined, _ := engine.FindPlayer(p.state, msg.ConnID)
					msg.Reply <- JoinResult{Player: joined}
				}

			case Leave:
				delete(p.clients, msg.ConnID)
				events, newState, err := engine.Apply(p.state, engine.Command{
					Type:   engine.CmdLeave,
					ConnID: msg.ConnID,
				})
				if err != nil {
					break
				}
				if len(newState.Players) == 0 {
					p.state = newState
					p.log.Info("party empty, shutting down")
					p.stopTimer()
					if p.onEmpty != nil {
						p.onEmpty(p.room)
					}
					p.shutdown()
					return
				}
				p.commit(newState, events)

			case FromClient:
				events, newState, err := engine.Apply(p.state, msg.Cmd)
				if err != nil {
					// Referential misses and out-of-phase commands are
					// expected under disconnect races; drop them.
					p.log.Debug("command dropped",
						zap.String("cmd", string(msg.Cmd.Type)), zap.Error(err))
					break
				}
				p.commit(newState, events)

			case roundExpired:
				if msg.gen != p.timerGen {
					break // stale fire from a replaced timer
				}
				events, newState, err := engine.Apply(p.state, engine.Command{Type: engine.CmdExpireRound})
				if err != nil {
					if !errors.Is(err, engine.ErrNotRunning) {
						p.log.Warn("round expiry failed", zap.Error(err))
					}
					break
				}
				p.log.Info("round finished by timer expiry")
				p.commit(newState, events)

			case GetView:
				msg.Reply <- View{
					Version:    p.version,
					NumClients: len(p.clients),
					State:      p.state,
				}

			case Shutdown:
				p.stopTimer()
				p.shutdown()
				return
			}
		}
	}
}

// commit installs the new state, runs transition side effects, and mirrors
// the post-side-effect snapshot to every member. Observing PhaseStarting
// immediately begins the round, so members only ever see "running" with the
// timer already armed.
func (p *Party) commit(newState engine.State, events []engine.Event) {
	p.state = newState
	metrics.EventsProcessed.Inc()

	if p.state.Phase == engine.PhaseStarting {
		began, next, err := engine.Apply(p.state, engine.Command{Type: engine.CmdBeginRound})
		if err == nil {
			p.state = next
			events = append(events, began...)
		}
	}

	if engine.ContainsEvent(events, engine.EvtPartyReady) {
		p.log.Info("party ready, challenge generated")
	}
	if engine.ContainsEvent(events, engine.EvtRoundStarted) {
		p.scheduleRoundTimer()
		p.log.Info("round started", zap.Int("duration_ms", p.state.Rules.RoundMs))
	}
	if engine.ContainsEvent(events, engine.EvtRoundFinished) {
		metrics.RoundsFinished.Inc()
	}

	p.version++
	p.broadcast()
}

func (p *Party) broadcast() {
	snap := Snapshot{Version: p.version, State: p.state}
	for id, ch := range p.clients {
		select {
		case ch <- snap:
		default:
			// Client is slow/full - drop them. The outbox is owned by the
			// transport handler, so it is never closed here.
			delete(p.clients, id)
		}
	}
}

func (p *Party) shutdown() {
	clear(p.clients)
	p.cancel()
}
