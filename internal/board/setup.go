package board

// SetupBudget is the maximum total point value of a custom setup.
const SetupBudget = 4800

// BoardSetup is the back two rows of one side as the owner sees them:
// row 0 is the back rank, row 1 the front, nil squares stay empty. White's
// rows land on y=7 and y=6 as given; Black's are mirrored on the x axis and
// land on y=0 and y=1, so both armies face each other the same way around.
type BoardSetup [2][8]*PieceKind

// Ptr returns a pointer to k, for building setups literally.
func (k PieceKind) Ptr() *PieceKind {
	return &k
}

// Value returns the total point cost of the setup.
func (s BoardSetup) Value() int {
	total := 0
	for _, row := range s {
		for _, k := range row {
			if k != nil {
				total += k.Value()
			}
		}
	}
	return total
}

// IsValid reports whether the setup fields exactly one king and fits the
// point budget. The 2x8 shape itself keeps pieces inside the back two rows.
func (s BoardSetup) IsValid() bool {
	kings := 0
	for _, row := range s {
		for _, k := range row {
			if k != nil && *k == King {
				kings++
			}
		}
	}
	return kings == 1 && s.Value() <= SetupBudget
}

func (s BoardSetup) place(b *Board, owner Player) {
	for r, row := range s {
		for x, k := range row {
			if k == nil {
				continue
			}
			pos := Vec2{x, 7 - r}
			if owner == Black {
				pos = Vec2{7 - x, r}
			}
			b.At(pos).Piece = NewPiece(*k, owner)
		}
	}
}

// ClassicSetup returns the standard chess army, worth 4300 points.
func ClassicSetup() BoardSetup {
	back := [8]PieceKind{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	var s BoardSetup
	for x := range back {
		s[0][x] = back[x].Ptr()
		s[1][x] = Pawn.Ptr()
	}
	return s
}
