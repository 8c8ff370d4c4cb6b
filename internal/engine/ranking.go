package engine

import "sort"

// FinalizeRanking assigns places to every player still lacking one, in
// descending progress order with ties broken by join order. Already-assigned
// places are never renumbered; the sequence continues after them.
func FinalizeRanking(players []Player) {
	next := placesAssigned(players) + 1

	unplaced := make([]int, 0, len(players))
	for i := range players {
		if players[i].Place == 0 {
			unplaced = append(unplaced, i)
		}
	}

	sort.SliceStable(unplaced, func(a, b int) bool {
		return players[unplaced[a]].Progress > players[unplaced[b]].Progress
	})

	for _, i := range unplaced {
		players[i].Place = next
		next++
	}
}

// ResetRoundState clears places and progress ahead of a new round.
func ResetRoundState(players []Player) {
	for i := range players {
		players[i].Place = 0
		players[i].Progress = 0
	}
}

func placesAssigned(players []Player) int {
	n := 0
	for i := range players {
		if players[i].Place != 0 {
			n++
		}
	}
	return n
}

func allReady(players []Player) bool {
	if len(players) == 0 {
		return false
	}
	for i := range players {
		if !players[i].Ready {
			return false
		}
	}
	return true
}

func findPlayer(players []Player, connID string) int {
	for i := range players {
		if players[i].ConnID == connID {
			return i
		}
	}
	return -1
}
