// internal/game/scoring.go
package game

import "math"

// CluePointValue is the guesser's reward for a correct answer while the k-th
// clue is the latest revealed: 10 for the first clue down to 1 for the tenth.
// Wrong guesses do not decay the value further; only reveals do.
func CluePointValue(cluesRevealed int) int {
	return 11 - cluesRevealed
}

// PickerScore computes the custom-mode picker's reward for a resolved round.
//
// The picker is rewarded for choosing an answer that is well known (low
// obscurity) yet took the guessers many clues to get (low average points),
// with a half point per wrong guess on top. If nobody guessed correctly the
// average is treated as the full 10, the worst case for the picker.
func PickerScore(obscurity int, roundPoints []int, wrongGuesses int) (points int, avg float64) {
	avg = 10
	if len(roundPoints) > 0 {
		sum := 0
		for _, p := range roundPoints {
			sum += p
		}
		avg = float64(sum) / float64(len(roundPoints))
	}

	base := float64(10-obscurity) * (10 - avg) / 10
	bonus := float64(wrongGuesses) * 0.5
	points = int(math.Round(math.Max(0, base+bonus)))
	return points, avg
}
