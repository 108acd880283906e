package board

import (
	"encoding/json"
	"fmt"
)

// Player represents the color of a piece or player.
type Player uint8

const (
	White Player = iota
	Black
)

// Other returns the opposite player.
func (p Player) Other() Player {
	return p ^ 1
}

// String returns the player name as it appears on the wire.
func (p Player) String() string {
	if p == Black {
		return "black"
	}
	return "white"
}

// MarshalJSON encodes the player as "white" or "black".
func (p Player) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes "white" or "black".
func (p *Player) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "white":
		*p = White
	case "black":
		*p = Black
	default:
		return fmt.Errorf("unknown player %q", s)
	}
	return nil
}

// PieceKind represents the type of a chess piece.
type PieceKind uint8

const (
	King PieceKind = iota
	Queen
	Rook
	Bishop
	Knight
	Pawn
)

// PieceValue is the point cost of each kind in a custom setup, indexed by
// PieceKind. A classic army totals 4300 against the 4800 budget.
var PieceValue = [6]int{400, 900, 500, 300, 300, 100}

// Value returns the point cost of the piece kind.
func (k PieceKind) Value() int {
	return PieceValue[k]
}

// String returns the kind name as it appears on the wire.
func (k PieceKind) String() string {
	switch k {
	case King:
		return "king"
	case Queen:
		return "queen"
	case Rook:
		return "rook"
	case Bishop:
		return "bishop"
	case Knight:
		return "knight"
	case Pawn:
		return "pawn"
	default:
		return "unknown"
	}
}

// ParsePieceKind converts a wire name back to a PieceKind.
func ParsePieceKind(s string) (PieceKind, error) {
	switch s {
	case "king":
		return King, nil
	case "queen":
		return Queen, nil
	case "rook":
		return Rook, nil
	case "bishop":
		return Bishop, nil
	case "knight":
		return Knight, nil
	case "pawn":
		return Pawn, nil
	default:
		return 0, fmt.Errorf("unknown piece kind %q", s)
	}
}

// MarshalJSON encodes the kind as its lowercase name.
func (k PieceKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a lowercase kind name.
func (k *PieceKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePieceKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Piece is a piece on the board. TurnsSinceDoubleAdvance is nil until the
// pawn double-advances; it then counts turn ends, and en passant against the
// pawn is legal only while the count is exactly 1.
type Piece struct {
	Kind                    PieceKind `json:"kind"`
	Owner                   Player    `json:"owner"`
	HasMoved                bool      `json:"hasMoved"`
	TurnsSinceDoubleAdvance *int      `json:"turnsSinceDoubleAdvance,omitempty"`
}

// NewPiece creates an unmoved piece.
func NewPiece(kind PieceKind, owner Player) *Piece {
	return &Piece{Kind: kind, Owner: owner}
}

// Clone returns a deep copy of the piece.
func (p *Piece) Clone() *Piece {
	c := *p
	if p.TurnsSinceDoubleAdvance != nil {
		n := *p.TurnsSinceDoubleAdvance
		c.TurnsSinceDoubleAdvance = &n
	}
	return &c
}

// Floor is the tile color under a piece.
type Floor uint8

const (
	FloorLight Floor = iota
	FloorDark
)

// String returns the floor name as it appears on the wire.
func (f Floor) String() string {
	if f == FloorDark {
		return "dark"
	}
	return "light"
}

// MarshalJSON encodes the floor as "light" or "dark".
func (f Floor) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON decodes "light" or "dark".
func (f *Floor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "light":
		*f = FloorLight
	case "dark":
		*f = FloorDark
	default:
		return fmt.Errorf("unknown floor %q", s)
	}
	return nil
}

// FloorAt returns the tile color at a coordinate.
func FloorAt(pos Vec2) Floor {
	if (pos.X+pos.Y)%2 == 0 {
		return FloorLight
	}
	return FloorDark
}

// Tile is one board square: its floor and the piece standing on it, if any.
type Tile struct {
	Floor Floor  `json:"floor"`
	Piece *Piece `json:"piece"`
}
