package board

import "math"

// UpdateRating returns both players' new ratings after a game, using a
// K-factor of 32. result is 1 for a win by the first player, 0 for a loss,
// 0.5 for a draw.
func UpdateRating(elo, opponentElo, result float64) (float64, float64) {
	expected := 1 / (1 + math.Pow(10, (opponentElo-elo)/400))
	change := 32 * (result - expected)
	return elo + change, opponentElo - change
}
