package hub

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jmswll/keyrace-backend/internal/engine"
	"github.com/jmswll/keyrace-backend/internal/metrics"
	"github.com/jmswll/keyrace-backend/internal/party"
)

type HubMsg interface{ isHubMsg() }

// Connect mints a connection record with a fresh id.
type Connect struct {
	Reply chan Conn
}

// Disconnect removes the record and routes an implicit leave to the
// connection's party, if it held one.
type Disconnect struct {
	ConnID string
}

// JoinRoom lazily creates the party and forwards an idempotent join. The
// reply is delivered by the party actor itself; the channel is closed without
// a value when the connection is unknown.
type JoinRoom struct {
	ConnID string
	Name   string
	Room   string
	Outbox chan party.Snapshot
	Reply  chan party.JoinResult
}

// GetParty resolves a room for event routing. Unknown rooms reply nil.
type GetParty struct {
	Room  string
	Reply chan *party.Party
}

// RemoveParty is sent by a party actor as it shuts down empty. The pointer
// guards against deleting a newer party that reused the room id.
type RemoveParty struct {
	Room string
	P    *party.Party
}

type ShutdownHub struct{}

func (Connect) isHubMsg()     {}
func (Disconnect) isHubMsg()  {}
func (JoinRoom) isHubMsg()    {}
func (GetParty) isHubMsg()    {}
func (RemoveParty) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Conn is the connection registry record: identity plus reverse room lookup.
// Gameplay fields live in the party's player list, never here.
type Conn struct {
	ID   string
	Name string
	Room string
}

type Hub struct {
	inbox   chan HubMsg
	conns   map[string]*Conn
	parties map[string]*party.Party
	rules   engine.Rules
	clock   clockwork.Clock
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, rules engine.Rules, clock clockwork.Clock, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		conns:   make(map[string]*Conn),
		parties: make(map[string]*party.Party),
		rules:   rules,
		clock:   clock,
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Connect:
				c := &Conn{ID: uuid.NewString(), Name: engine.DefaultName}
				h.conns[c.ID] = c
				metrics.ActiveConnections.Inc()
				msg.Reply <- *c

			case Disconnect:
				c := h.conns[msg.ConnID]
				if c == nil {
					break
				}
				if c.Room != "" {
					if pt := h.parties[c.Room]; pt != nil {
						pt.Inbox() <- party.Leave{ConnID: c.ID}
					}
				}
				delete(h.conns, msg.ConnID)
				metrics.ActiveConnections.Dec()

			case JoinRoom:
				c := h.conns[msg.ConnID]
				if c == nil {
					close(msg.Reply)
					break
				}
				if msg.Name != "" {
					c.Name = msg.Name
				}
				// A connection holds at most one room; switching rooms
				// leaves the old one first.
				if c.Room != "" && c.Room != msg.Room {
					if old := h.parties[c.Room]; old != nil {
						old.Inbox() <- party.Leave{ConnID: c.ID}
					}
				}
				c.Room = msg.Room
				pt := h.ensureParty(msg.Room)
				pt.Inbox() <- party.Join{
					ConnID: c.ID,
					Name:   c.Name,
					Outbox: msg.Outbox,
					Reply:  msg.Reply,
				}

			case GetParty:
				msg.Reply <- h.parties[msg.Room] // may be nil

			case RemoveParty:
				if h.parties[msg.Room] == msg.P {
					delete(h.parties, msg.Room)
					metrics.ActiveParties.Dec()
				}

			case ShutdownHub:
				for _, pt := range h.parties {
					pt.Inbox() <- party.Shutdown{}
				}
				clear(h.parties)
				h.cancel()
			}
		}
	}
}

func (h *Hub) ensureParty(room string) *party.Party {
	if pt := h.parties[room]; pt != nil {
		return pt
	}
	h.log.Info("creating party", zap.String("room", room))
	var pt *party.Party
	pt = party.New(h.ctx, room, h.rules, h.clock, h.log, func(r string) {
		select {
		case h.inbox <- RemoveParty{Room: r, P: pt}:
		case <-h.ctx.Done():
		}
	})
	h.parties[room] = pt
	metrics.ActiveParties.Inc()
	return pt
}
