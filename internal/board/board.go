package board

import (
	"errors"
	"fmt"
)

// Board is the authoritative state of one game. Squares is indexed [y][x]
// with y=0 at Black's back rank. Kings caches both king positions and is kept
// in sync by Apply. MovePieces lists every origin square with at least one
// legal move for the side to move, and Moves[i] holds the legal moves from
// MovePieces[i].
type Board struct {
	ID          string     `json:"id"`
	Turn        Player     `json:"turn"`
	WhitePlayer string     `json:"whitePlayer"`
	BlackPlayer string     `json:"blackPlayer"`
	Squares     [8][8]Tile `json:"squares"`
	Kings       [2]Vec2    `json:"kings"`
	MovePieces  []Vec2     `json:"movePieces"`
	Moves       [][]Move   `json:"moves"`
}

// ErrNoKing is returned when a setup places no king for a side.
var ErrNoKing = errors.New("setup has no king")

// New builds a board from the two players' setups and generates the opening
// move list for White. The white setup fills ranks y=7 (back row) and y=6;
// the black setup is mirrored horizontally and placed at y=0 and y=1.
func New(gameID, whiteID, blackID string, white, black BoardSetup) (*Board, error) {
	b := &Board{
		ID:          gameID,
		Turn:        White,
		WhitePlayer: whiteID,
		BlackPlayer: blackID,
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			b.Squares[y][x] = Tile{Floor: FloorAt(Vec2{x, y})}
		}
	}
	white.place(b, White)
	black.place(b, Black)
	for _, p := range []Player{White, Black} {
		pos, ok := b.findKing(p)
		if !ok {
			return nil, fmt.Errorf("%v: %w", p, ErrNoKing)
		}
		b.Kings[p] = pos
	}
	b.GenerateMoves(true)
	return b, nil
}

// At returns the tile at pos. The caller guarantees pos is in bounds.
func (b *Board) At(pos Vec2) *Tile {
	return &b.Squares[pos.Y][pos.X]
}

// KingPos returns the cached king position for a player.
func (b *Board) KingPos(p Player) Vec2 {
	return b.Kings[p]
}

// PlayerID returns the user id playing the given color.
func (b *Board) PlayerID(p Player) string {
	if p == Black {
		return b.BlackPlayer
	}
	return b.WhitePlayer
}

// TurnPlayer returns the user id of the side to move.
func (b *Board) TurnPlayer() string {
	return b.PlayerID(b.Turn)
}

// NotTurnPlayer returns the user id of the side not to move.
func (b *Board) NotTurnPlayer() string {
	return b.PlayerID(b.Turn.Other())
}

func (b *Board) findKing(p Player) (Vec2, bool) {
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			piece := b.Squares[y][x].Piece
			if piece != nil && piece.Kind == King && piece.Owner == p {
				return Vec2{x, y}, true
			}
		}
	}
	return Vec2{}, false
}

// Clone returns a deep copy, so simulated moves never touch the original.
func (b *Board) Clone() *Board {
	c := *b
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if p := b.Squares[y][x].Piece; p != nil {
				c.Squares[y][x].Piece = p.Clone()
			}
		}
	}
	c.MovePieces = append([]Vec2(nil), b.MovePieces...)
	c.Moves = make([][]Move, len(b.Moves))
	for i, row := range b.Moves {
		c.Moves[i] = append([]Move(nil), row...)
	}
	return &c
}

// Apply mutates the board by one sub-move. A TurnEnd sentinel increments
// every pawn's double-advance counter and flips the turn; any other move
// relocates the piece on From, marking it moved, recording a pawn double
// advance, keeping the king cache current, and swapping the kind on
// promotion. The rook half of castling and the captured pawn of en passant
// arrive as their own sub-moves (see EvaluateTurn).
func (b *Board) Apply(m Move) {
	if m.Kind == MoveTurnEnd {
		b.endTurn()
		return
	}
	piece := b.At(m.From).Piece
	if piece != nil {
		switch piece.Kind {
		case Pawn:
			if abs(m.From.Y-m.To.Y) > 1 {
				zero := 0
				piece.TurnsSinceDoubleAdvance = &zero
			}
		case King:
			b.Kings[piece.Owner] = m.To
		}
		if m.From != m.To {
			piece.HasMoved = true
		}
		if m.Kind == MovePromotion {
			piece.Kind = m.Into
		}
	}
	b.At(m.To).Piece = piece
	if m.From != m.To {
		b.At(m.From).Piece = nil
	}
}

func (b *Board) endTurn() {
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			p := b.Squares[y][x].Piece
			if p != nil && p.TurnsSinceDoubleAdvance != nil {
				*p.TurnsSinceDoubleAdvance++
			}
		}
	}
	b.Turn = b.Turn.Other()
}

// EvaluateTurn resolves a turn request against the current move list.
// Out-of-range indices return ok=false and leave the board untouched. The
// applied sequence starts with any synthetic companion of the chosen move
// (the captured pawn's jump for en passant, the rook's slide for castling),
// then the move itself, then a TurnEnd sentinel. After application the move
// list is regenerated for the next side; gameOver reports an empty list.
func (b *Board) EvaluateTurn(pieceIdx, moveIdx int) (applied []Move, gameOver, ok bool) {
	if pieceIdx < 0 || pieceIdx >= len(b.Moves) {
		return nil, false, false
	}
	row := b.Moves[pieceIdx]
	if moveIdx < 0 || moveIdx >= len(row) {
		return nil, false, false
	}
	m := row[moveIdx]
	applied = []Move{m}
	switch m.Kind {
	case MoveEnPassant:
		jump := NewMove(MoveJumping, Vec2{m.To.X, m.From.Y}, m.To)
		applied = append([]Move{jump}, applied...)
	case MoveCastle:
		slide := NewMove(MoveSliding, m.RookFrom, m.RookTo)
		applied = append([]Move{slide}, applied...)
	}
	applied = append(applied, NewTurnEnd())
	for _, mv := range applied {
		b.Apply(mv)
	}
	b.GenerateMoves(true)
	return applied, len(b.Moves) == 0, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
