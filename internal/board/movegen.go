package board

// Offset tables for the simple movers. Sliders walk each offset until
// blocked; steppers stop after one step.
var (
	kingOffsets = []Vec2{
		{0, 1}, {0, -1}, {1, 0}, {-1, 0},
		{-1, -1}, {-1, 1}, {1, -1}, {1, 1},
	}
	rookOffsets   = []Vec2{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
	bishopOffsets = []Vec2{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
	knightOffsets = []Vec2{
		{2, 1}, {2, -1}, {-2, 1}, {-2, -1},
		{1, 2}, {1, -2}, {-1, 2}, {-1, -2},
	}
	pawnSides = []Vec2{{-1, 0}, {1, 0}}
)

// noLimit is effectively unbounded on an 8x8 board.
const noLimit = 127

// GenerateMoves rebuilds MovePieces and Moves for the side to move, scanning
// squares y then x ascending. With deep set, moves that would leave the
// mover's king capturable are filtered out; the shallow form is used for
// attack detection and must not recurse.
func (b *Board) GenerateMoves(deep bool) {
	b.MovePieces = []Vec2{}
	b.Moves = [][]Move{}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			pos := Vec2{x, y}
			piece := b.At(pos).Piece
			if piece == nil || piece.Owner != b.Turn {
				continue
			}
			moves := b.pieceMoves(piece, pos, deep)
			if len(moves) > 0 {
				b.MovePieces = append(b.MovePieces, pos)
				b.Moves = append(b.Moves, moves)
			}
		}
	}
}

// AboutToWin reports whether the side to move can capture the opposing king.
func (b *Board) AboutToWin() bool {
	b.GenerateMoves(false)
	kingPos := b.KingPos(b.Turn.Other())
	for _, row := range b.Moves {
		for _, m := range row {
			if m.To == kingPos {
				return true
			}
		}
	}
	return false
}

// wouldCauseLose simulates the move plus the turn flip on a clone and asks
// whether the opponent could then take the mover's king. The clone's scan is
// shallow and emits no castle moves, so the probe recurses exactly one level.
func (b *Board) wouldCauseLose(m Move) bool {
	c := b.Clone()
	c.Apply(m)
	c.endTurn()
	return c.AboutToWin()
}

func (b *Board) pieceMoves(piece *Piece, pos Vec2, deep bool) []Move {
	var moves []Move
	switch piece.Kind {
	case King:
		moves = b.simpleMoves(piece, kingOffsets, 1, pos, MoveSliding)
		if deep {
			moves = append(moves, b.castleMoves(piece, pos)...)
		}
	case Queen:
		moves = b.simpleMoves(piece, kingOffsets, noLimit, pos, MoveSliding)
	case Rook:
		moves = b.simpleMoves(piece, rookOffsets, noLimit, pos, MoveSliding)
	case Bishop:
		moves = b.simpleMoves(piece, bishopOffsets, noLimit, pos, MoveSliding)
	case Knight:
		moves = b.simpleMoves(piece, knightOffsets, 1, pos, MoveJumping)
	case Pawn:
		moves = b.pawnMoves(piece, pos)
	}
	if !deep {
		return moves
	}
	legal := moves[:0]
	for _, m := range moves {
		if !b.wouldCauseLose(m) {
			legal = append(legal, m)
		}
	}
	return legal
}

// simpleMoves walks each offset up to limit steps, stopping at the first
// piece and including it as a capture when it belongs to the opponent.
func (b *Board) simpleMoves(piece *Piece, offsets []Vec2, limit int, pos Vec2, kind MoveKind) []Move {
	var moves []Move
	for _, dir := range offsets {
		to := pos.Add(dir)
		for steps := limit; to.InBounds() && steps > 0; {
			if blocking := b.At(to).Piece; blocking != nil {
				if blocking.Owner != piece.Owner {
					moves = append(moves, NewMove(kind, pos, to))
				}
				break
			}
			moves = append(moves, NewMove(kind, pos, to))
			to = to.Add(dir)
			steps--
		}
	}
	return moves
}

// castleMoves emits a Castle move toward each corner rook that may still
// castle with this king: neither has moved, the king sits on a home file,
// every square between them is empty, and no square the king crosses (its
// origin included) would leave it capturable. Only the deep pass calls this:
// a castle lands on an empty square, so it never matters for attack scans.
func (b *Board) castleMoves(king *Piece, pos Vec2) []Move {
	if king.HasMoved || (pos.X != 3 && pos.X != 4) {
		return nil
	}
	var moves []Move
corner:
	for _, rookPos := range []Vec2{{0, pos.Y}, {7, pos.Y}} {
		rook := b.At(rookPos).Piece
		if rook == nil || rook.Kind != Rook || rook.HasMoved || rook.Owner != king.Owner {
			continue
		}
		dir := Vec2{1, 0}
		if rookPos.X == 0 {
			dir = Vec2{-1, 0}
		}
		for cur := pos.Add(dir); cur.Add(dir).InBounds(); cur = cur.Add(dir) {
			if b.At(cur).Piece != nil {
				continue corner
			}
		}
		dest := pos.Add(dir.Scale(2))
		for cur := pos; ; cur = cur.Add(dir) {
			if b.wouldCauseLose(NewMove(MoveJumping, pos, cur)) {
				continue corner
			}
			if cur == dest {
				break
			}
		}
		moves = append(moves, NewCastle(pos, dest, rookPos, dest.Add(dir.Scale(-1))))
	}
	return moves
}

// pawnMoves generates advances (two squares while unmoved), diagonal
// captures, and en passant against a neighbouring pawn exactly one turn after
// its double advance. Any move reaching the final rank expands into the four
// promotion choices.
func (b *Board) pawnMoves(pawn *Piece, pos Vec2) []Move {
	limit := 2
	if pawn.HasMoved {
		limit = 1
	}
	dir := Vec2{0, -1}
	if pawn.Owner == Black {
		dir = Vec2{0, 1}
	}
	var moves []Move
	for i := 1; i <= limit; i++ {
		to := pos.Add(dir.Scale(i))
		if !to.InBounds() || b.At(to).Piece != nil {
			break
		}
		moves = append(moves, NewMove(MoveSliding, pos, to))
	}
	for _, side := range pawnSides {
		to := pos.Add(dir).Add(side)
		if !to.InBounds() {
			continue
		}
		if target := b.At(to).Piece; target != nil && target.Owner != pawn.Owner {
			moves = append(moves, NewMove(MoveSliding, pos, to))
		}
	}
	for _, side := range pawnSides {
		to := pos.Add(side).Add(dir)
		if !to.InBounds() {
			continue
		}
		neighbour := b.At(pos.Add(side)).Piece
		if neighbour != nil && neighbour.Kind == Pawn && neighbour.Owner != pawn.Owner &&
			neighbour.TurnsSinceDoubleAdvance != nil && *neighbour.TurnsSinceDoubleAdvance == 1 {
			moves = append(moves, NewMove(MoveEnPassant, pos, to))
		}
	}
	finalRank := 0
	if pawn.Owner == Black {
		finalRank = 7
	}
	var expanded []Move
	for _, m := range moves {
		if m.To.Y != finalRank {
			expanded = append(expanded, m)
			continue
		}
		for _, into := range []PieceKind{Queen, Knight, Bishop, Rook} {
			expanded = append(expanded, NewPromotion(m.From, m.To, into))
		}
	}
	return expanded
}
