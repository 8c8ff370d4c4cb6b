package protocol

import (
	"encoding/json"

	"github.com/jmswll/keyrace-backend/internal/engine"
)

// Inbound event names, routed by the generic envelope.
const (
	EventJoinRoom       = "join-room"
	EventUpdateProgress = "update_user_progress"
	EventUpdateState    = "update_user_state"
	EventStartGame      = "start-game"
)

// Outbound event names.
const (
	EventResConn     = "res_conn"
	EventJoinSuccess = "join-room-success"
	EventGameUpdate  = "game-update"
)

// ClientEnvelope is the generic inbound frame: the payload stays raw until
// the event name tells us what to decode it as.
type ClientEnvelope struct {
	Event   string          `json:"event"`
	Message json.RawMessage `json:"message"`
}

type JoinRoomMessage struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

type ProgressMessage struct {
	Room     string `json:"room"`
	Progress int    `json:"progress"`
}

type ReadyMessage struct {
	Room    string `json:"room"`
	IsReady bool   `json:"is_ready"`
}

type StartGameMessage struct {
	Room string `json:"room"`
}

type Player struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
	Score        int    `json:"score"`
	Progress     int    `json:"progress"`
	Place        int    `json:"place,omitempty"`
	IsReady      bool   `json:"isReady"`
	Room         string `json:"room,omitempty"`
}

// PartySnapshot is the full room state mirrored to every member after each
// mutation. The room identifier doubles as the display name.
type PartySnapshot struct {
	Name            string   `json:"name"`
	State           string   `json:"state"`
	TargetString    string   `json:"targetString,omitempty"`
	TimerDurationMs int      `json:"timerDurationMs"`
	Players         []Player `json:"players"`
}

type ServerMessage struct {
	Event  string         `json:"event"`
	Player *Player        `json:"player,omitempty"`
	Party  *PartySnapshot `json:"party,omitempty"`
}

func PlayerFromEngine(p engine.Player, room string) Player {
	return Player{
		ConnectionID: p.ConnID,
		Name:         p.Name,
		Score:        p.Score,
		Progress:     p.Progress,
		Place:        p.Place,
		IsReady:      p.Ready,
		Room:         room,
	}
}

func SnapshotFromState(s engine.State) PartySnapshot {
	players := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, PlayerFromEngine(p, s.Room))
	}
	return PartySnapshot{
		Name:            s.Room,
		State:           string(s.Phase),
		TargetString:    s.Challenge,
		TimerDurationMs: s.Rules.RoundMs,
		Players:         players,
	}
}
