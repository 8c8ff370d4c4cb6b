package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/jmswll/keyrace-backend/internal/engine"
	"github.com/jmswll/keyrace-backend/internal/hub"
	"github.com/jmswll/keyrace-backend/internal/party"
	"github.com/jmswll/keyrace-backend/internal/protocol"
)

const writeTimeout = 3 * time.Second

// joinReplyTimeout bounds the wait for a join acknowledgment; a join can be
// lost to the narrow window where its party is shutting down empty.
const joinReplyTimeout = 2 * time.Second

func Handler(h *hub.Hub, logger *zap.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		reply := make(chan hub.Conn, 1)
		h.Inbox() <- hub.Connect{Reply: reply}
		me := <-reply
		defer func() { h.Inbox() <- hub.Disconnect{ConnID: me.ID} }()

		log := logger.With(zap.String("conn_id", me.ID))
		log.Debug("connection registered")

		self := protocol.Player{ConnectionID: me.ID, Name: me.Name}
		writeMessage(r.Context(), conn, protocol.ServerMessage{Event: protocol.EventResConn, Player: &self})

		// One outbox for the connection's lifetime; parties register and
		// unregister it as the client moves between rooms.
		out := make(chan party.Snapshot, 8)

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case snap := <-out:
					ps := protocol.SnapshotFromState(snap.State)
					writeMessage(writeCtx, conn, protocol.ServerMessage{Event: protocol.EventGameUpdate, Party: &ps})
				case <-writeCtx.Done():
					return
				}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var env protocol.ClientEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Debug("malformed frame dropped", zap.Error(err))
				continue
			}

			switch env.Event {
			case protocol.EventJoinRoom:
				var jm protocol.JoinRoomMessage
				if err := json.Unmarshal(env.Message, &jm); err != nil || jm.Room == "" {
					continue
				}
				joinReply := make(chan party.JoinResult, 1)
				h.Inbox() <- hub.JoinRoom{
					ConnID: me.ID,
					Name:   jm.Name,
					Room:   jm.Room,
					Outbox: out,
					Reply:  joinReply,
				}
				select {
				case res, ok := <-joinReply:
					if !ok {
						continue
					}
					pv := protocol.PlayerFromEngine(res.Player, jm.Room)
					writeMessage(r.Context(), conn, protocol.ServerMessage{Event: protocol.EventJoinSuccess, Player: &pv})
				case <-time.After(joinReplyTimeout):
					log.Warn("join reply timed out", zap.String("room", jm.Room))
				case <-r.Context().Done():
					return
				}

			case protocol.EventUpdateProgress:
				var pm protocol.ProgressMessage
				if err := json.Unmarshal(env.Message, &pm); err != nil {
					continue
				}
				route(h, pm.Room, engine.Command{
					Type:     engine.CmdSetProgress,
					ConnID:   me.ID,
					Progress: pm.Progress,
				})

			case protocol.EventUpdateState:
				var rm protocol.ReadyMessage
				if err := json.Unmarshal(env.Message, &rm); err != nil {
					continue
				}
				route(h, rm.Room, engine.Command{
					Type:   engine.CmdSetReady,
					ConnID: me.ID,
					Ready:  rm.IsReady,
				})

			case protocol.EventStartGame:
				var sm protocol.StartGameMessage
				if err := json.Unmarshal(env.Message, &sm); err != nil {
					continue
				}
				route(h, sm.Room, engine.Command{
					Type:   engine.CmdStartRound,
					ConnID: me.ID,
				})

			default:
				log.Debug("unknown event dropped", zap.String("event", env.Event))
			}
		}
	}
}

// route forwards a command to the named party. Unknown rooms are dropped
// silently; the sender may have raced a room deletion.
func route(h *hub.Hub, room string, cmd engine.Command) {
	if room == "" {
		return
	}
	reply := make(chan *party.Party, 1)
	h.Inbox() <- hub.GetParty{Room: room, Reply: reply}
	pt := <-reply
	if pt == nil {
		return
	}
	pt.Inbox() <- party.FromClient{Cmd: cmd}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg protocol.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
