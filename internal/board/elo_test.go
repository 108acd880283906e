package board

import (
	"math"
	"testing"
)

func TestUpdateRating(t *testing.T) {
	t.Run("equal players", func(t *testing.T) {
		winner, loser := UpdateRating(1500, 1500, 1)
		if winner != 1516 || loser != 1484 {
			t.Fatalf("UpdateRating = %v/%v, want 1516/1484", winner, loser)
		}
		a, b := UpdateRating(1500, 1500, 0.5)
		if a != 1500 || b != 1500 {
			t.Fatalf("draw moved equal ratings: %v/%v", a, b)
		}
	})

	t.Run("zero sum", func(t *testing.T) {
		tests := []struct {
			elo, opponent, result float64
		}{
			{1500, 1500, 1},
			{2000, 1000, 1},
			{1000, 2000, 1},
			{1200, 1800, 0},
		}
		for _, tt := range tests {
			a, b := UpdateRating(tt.elo, tt.opponent, tt.result)
			if diff := (a + b) - (tt.elo + tt.opponent); math.Abs(diff) > 1e-9 {
				t.Errorf("UpdateRating(%v, %v, %v) leaked %v points", tt.elo, tt.opponent, tt.result, diff)
			}
		}
	})

	t.Run("upsets pay more", func(t *testing.T) {
		favorite, _ := UpdateRating(2000, 1000, 1)
		underdog, _ := UpdateRating(1000, 2000, 1)
		if favorite-2000 >= underdog-1000 {
			t.Fatalf("favorite gained %v, underdog gained %v", favorite-2000, underdog-1000)
		}
		if favorite <= 2000 {
			t.Fatalf("winner lost points: %v", favorite)
		}
	})

	t.Run("losses cost the loser", func(t *testing.T) {
		loser, winner := UpdateRating(1500, 1500, 0)
		if loser != 1484 || winner != 1516 {
			t.Fatalf("UpdateRating = %v/%v, want 1484/1516", loser, winner)
		}
	})
}
