package engine

import (
	"math/rand/v2"
	"strings"
)

const DefaultName = "Anonymous"

const challengeWords = 18

var wordBank = []string{
	"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog",
	"river", "stone", "window", "orange", "silver", "garden", "simple",
	"rocket", "planet", "forest", "bright", "shadow", "copper", "violet",
	"mountain", "harbor", "signal", "travel", "winter", "summer", "candle",
	"marble", "puzzle", "basket", "ladder", "meadow", "thunder", "whisper",
	"journey", "pattern", "quiet", "rapid", "steady", "gentle", "hollow",
	"golden", "frozen", "amber", "cedar", "maple", "north", "south",
}

// NewChallenge produces the target text for a round. Package-level var so
// tests can pin the output.
var NewChallenge = func() string {
	words := make([]string, challengeWords)
	for i := range words {
		words[i] = wordBank[rand.IntN(len(wordBank))]
	}
	return strings.Join(words, " ")
}
