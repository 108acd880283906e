package board

import (
	"encoding/json"
	"fmt"
)

// MoveKind discriminates the closed set of move variants.
type MoveKind uint8

const (
	MoveJumping MoveKind = iota
	MoveSliding
	MoveEnPassant
	MovePromotion
	MoveCastle
	MoveTurnEnd
)

// String returns the wire tag for the kind.
func (k MoveKind) String() string {
	switch k {
	case MoveJumping:
		return "jumpingMove"
	case MoveSliding:
		return "slidingMove"
	case MoveEnPassant:
		return "enPassant"
	case MovePromotion:
		return "promotion"
	case MoveCastle:
		return "castle"
	case MoveTurnEnd:
		return "turnEnd"
	default:
		return "unknown"
	}
}

// Move is one sub-move of a turn. Into is set for promotions; RookFrom and
// RookTo are set for castling, where From/To describe the king. A TurnEnd
// sentinel carries (-1,-1) coordinates. Moves compare with ==.
type Move struct {
	Kind     MoveKind
	From     Vec2
	To       Vec2
	Into     PieceKind
	RookFrom Vec2
	RookTo   Vec2
}

// NewMove creates a plain jumping, sliding, en passant, or turn-end move.
func NewMove(kind MoveKind, from, to Vec2) Move {
	return Move{Kind: kind, From: from, To: to}
}

// NewPromotion creates a pawn move that promotes into the given kind.
func NewPromotion(from, to Vec2, into PieceKind) Move {
	return Move{Kind: MovePromotion, From: from, To: to, Into: into}
}

// NewCastle creates a castle move; from/to are the king's squares.
func NewCastle(from, to, rookFrom, rookTo Vec2) Move {
	return Move{Kind: MoveCastle, From: from, To: to, RookFrom: rookFrom, RookTo: rookTo}
}

// NewTurnEnd creates the sentinel that closes an applied move sequence.
func NewTurnEnd() Move {
	return Move{Kind: MoveTurnEnd, From: Vec2{-1, -1}, To: Vec2{-1, -1}}
}

// String renders the move for logs and test failures, e.g. "slidingMove e2e4".
func (m Move) String() string {
	switch m.Kind {
	case MoveTurnEnd:
		return "turnEnd"
	case MovePromotion:
		return fmt.Sprintf("promotion %v%v=%v", m.From, m.To, m.Into)
	case MoveCastle:
		return fmt.Sprintf("castle %v%v rook %v%v", m.From, m.To, m.RookFrom, m.RookTo)
	default:
		return fmt.Sprintf("%v %v%v", m.Kind, m.From, m.To)
	}
}

// wireMove is the tagged JSON form shared by MarshalJSON and UnmarshalJSON.
type wireMove struct {
	Type     string     `json:"type"`
	From     Vec2       `json:"from"`
	To       Vec2       `json:"to"`
	Into     *PieceKind `json:"into,omitempty"`
	RookFrom *Vec2      `json:"rookFrom,omitempty"`
	RookTo   *Vec2      `json:"rookTo,omitempty"`
}

// MarshalJSON encodes the move as {"type":<kind>,...} with the payload
// fields of its variant.
func (m Move) MarshalJSON() ([]byte, error) {
	w := wireMove{Type: m.Kind.String(), From: m.From, To: m.To}
	switch m.Kind {
	case MovePromotion:
		into := m.Into
		w.Into = &into
	case MoveCastle:
		rookFrom, rookTo := m.RookFrom, m.RookTo
		w.RookFrom = &rookFrom
		w.RookTo = &rookTo
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged form, requiring the payload fields that
// belong to the variant.
func (m *Move) UnmarshalJSON(data []byte) error {
	var w wireMove
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Move{From: w.From, To: w.To}
	switch w.Type {
	case "jumpingMove":
		out.Kind = MoveJumping
	case "slidingMove":
		out.Kind = MoveSliding
	case "enPassant":
		out.Kind = MoveEnPassant
	case "promotion":
		if w.Into == nil {
			return fmt.Errorf("promotion move missing into")
		}
		out.Kind = MovePromotion
		out.Into = *w.Into
	case "castle":
		if w.RookFrom == nil || w.RookTo == nil {
			return fmt.Errorf("castle move missing rook squares")
		}
		out.Kind = MoveCastle
		out.RookFrom = *w.RookFrom
		out.RookTo = *w.RookTo
	case "turnEnd":
		out.Kind = MoveTurnEnd
	default:
		return fmt.Errorf("unknown move type %q", w.Type)
	}
	*m = out
	return nil
}
