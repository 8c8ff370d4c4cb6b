package engine

import (
	"errors"
	"slices"
)

var ErrUnknownPlayer = errors.New("unknown player")
var ErrNotRunning = errors.New("round not running")
var ErrRoundInProgress = errors.New("round already in progress")
var ErrPartyNotReady = errors.New("party not ready")
var ErrInvalidProgress = errors.New("progress out of range")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseReady     Phase = "ready"
	PhasePreparing Phase = "preparing" // reserved, never entered
	PhaseStarting  Phase = "starting"
	PhaseRunning   Phase = "running"
	PhaseFinished  Phase = "finished"
)

// Player is the room-scoped record and the single source of truth for
// gameplay fields once a connection has joined a party.
type Player struct {
	ConnID   string
	Name     string
	Score    int
	Progress int
	Place    int // 0 until assigned; assigned once per round, never reassigned
	Ready    bool
}

type Rules struct {
	// RequireReady refuses StartRound unless the party is in PhaseReady.
	// The default (false) matches the historical permissive behavior where
	// any member may force a start straight from the lobby.
	RequireReady bool
	RoundMs      int
}

type State struct {
	Room      string
	Players   []Player // insertion order = join order
	Phase     Phase
	Challenge string // present only from PhaseReady onward
	Rules     Rules
}

type CommandType string

const (
	CmdJoin        CommandType = "Join"
	CmdLeave       CommandType = "Leave"
	CmdSetReady    CommandType = "SetReady"
	CmdSetProgress CommandType = "SetProgress"
	CmdStartRound  CommandType = "StartRound"
	CmdBeginRound  CommandType = "BeginRound"
	CmdExpireRound CommandType = "ExpireRound"
)

type Command struct {
	Type     CommandType
	ConnID   string
	Name     string
	Progress int
	Ready    bool
}

type EventType string

const (
	EvtPlayerJoined   EventType = "PlayerJoined"
	EvtPlayerLeft     EventType = "PlayerLeft"
	EvtPartyReady     EventType = "PartyReady"
	EvtPartyReverted  EventType = "PartyReverted"
	EvtRoundStarting  EventType = "RoundStarting"
	EvtRoundStarted   EventType = "RoundStarted"
	EvtPlayerFinished EventType = "PlayerFinished"
	EvtRoundFinished  EventType = "RoundFinished"
)

type Event struct {
	Type   EventType
	ConnID string
	Place  int
}

// Apply runs one command against the party state and returns the events it
// produced plus the resulting state. The input state is never mutated.
func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s
	newState.Players = slices.Clone(s.Players)

	switch cmd.Type {
	case CmdJoin:
		// Rejoining an already-joined room is a no-op: same membership,
		// no duplicate record.
		if findPlayer(newState.Players, cmd.ConnID) >= 0 {
			return nil, newState, nil
		}
		name := cmd.Name
		if name == "" {
			name = DefaultName
		}
		newState.Players = append(newState.Players, Player{ConnID: cmd.ConnID, Name: name})
		return []Event{{Type: EvtPlayerJoined, ConnID: cmd.ConnID}}, newState, nil

	case CmdLeave:
		i := findPlayer(newState.Players, cmd.ConnID)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		newState.Players = slices.Delete(newState.Players, i, i+1)
		return []Event{{Type: EvtPlayerLeft, ConnID: cmd.ConnID}}, newState, nil

	case CmdSetReady:
		i := findPlayer(newState.Players, cmd.ConnID)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		newState.Players[i].Ready = cmd.Ready

		// Mid-round the flag is recorded but triggers nothing; the
		// readiness cycle only moves a party between lobby, ready and
		// finished.
		if s.Phase == PhaseStarting || s.Phase == PhaseRunning {
			return nil, newState, nil
		}

		if allReady(newState.Players) {
			if s.Phase == PhaseReady {
				return nil, newState, nil
			}
			newState.Phase = PhaseReady
			ResetRoundState(newState.Players)
			newState.Challenge = NewChallenge()
			return []Event{{Type: EvtPartyReady}}, newState, nil
		}
		if s.Phase != PhaseLobby {
			newState.Phase = PhaseLobby
			newState.Challenge = ""
			return []Event{{Type: EvtPartyReverted}}, newState, nil
		}
		return nil, newState, nil

	case CmdStartRound:
		if s.Phase == PhaseStarting || s.Phase == PhaseRunning {
			return nil, s, ErrRoundInProgress
		}
		if s.Rules.RequireReady && s.Phase != PhaseReady {
			return nil, s, ErrPartyNotReady
		}
		newState.Phase = PhaseStarting
		return []Event{{Type: EvtRoundStarting}}, newState, nil

	case CmdBeginRound:
		if s.Phase != PhaseStarting {
			return nil, s, ErrUnsupportedCommand
		}
		newState.Phase = PhaseRunning
		ResetRoundState(newState.Players)
		// Readiness is consumed by the restart; the next round needs a
		// fresh cycle.
		for i := range newState.Players {
			newState.Players[i].Ready = false
		}
		// A permissive start can skip PhaseReady entirely, so the
		// challenge may not exist yet.
		if newState.Challenge == "" {
			newState.Challenge = NewChallenge()
		}
		return []Event{{Type: EvtRoundStarted}}, newState, nil

	case CmdSetProgress:
		if s.Phase != PhaseRunning {
			return nil, s, ErrNotRunning
		}
		i := findPlayer(newState.Players, cmd.ConnID)
		if i < 0 {
			return nil, s, ErrUnknownPlayer
		}
		if cmd.Progress < 0 || cmd.Progress > 100 {
			return nil, s, ErrInvalidProgress
		}
		newState.Players[i].Progress = cmd.Progress
		// Place assignment is idempotent: a player who already holds one
		// keeps it, even if progress=100 is reported again or the round
		// timer expires in the same instant.
		if cmd.Progress == 100 && newState.Players[i].Place == 0 {
			place := placesAssigned(newState.Players) + 1
			newState.Players[i].Place = place
			return []Event{{Type: EvtPlayerFinished, ConnID: cmd.ConnID, Place: place}}, newState, nil
		}
		return nil, newState, nil

	case CmdExpireRound:
		if s.Phase != PhaseRunning {
			return nil, s, ErrNotRunning
		}
		FinalizeRanking(newState.Players)
		newState.Phase = PhaseFinished
		return []Event{{Type: EvtRoundFinished}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}
