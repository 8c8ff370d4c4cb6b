package engine

// NewState returns a fresh party in the lobby phase.
func NewState(room string, rules Rules) State {
	return State{
		Room:    room,
		Players: []Player{},
		Phase:   PhaseLobby,
		Rules:   rules,
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// FindPlayer returns the room-scoped record for a connection, if joined.
func FindPlayer(s State, connID string) (Player, bool) {
	i := findPlayer(s.Players, connID)
	if i < 0 {
		return Player{}, false
	}
	return s.Players[i], true
}
