package board

import (
	"encoding/json"
	"fmt"
)

// Vec2 is a board coordinate or offset. X grows toward the h-file, Y grows
// toward White's side, so (0,0) is Black's back-rank corner and (x+y)%2 == 0
// is a light square.
type Vec2 struct {
	X int
	Y int
}

// Add returns the component-wise sum of two vectors.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{v.X + o.X, v.Y + o.Y}
}

// Scale returns the vector multiplied by n.
func (v Vec2) Scale(n int) Vec2 {
	return Vec2{v.X * n, v.Y * n}
}

// InBounds reports whether the coordinate lies on the 8x8 board.
func (v Vec2) InBounds() bool {
	return v.X >= 0 && v.X < 8 && v.Y >= 0 && v.Y < 8
}

// String returns the coordinate in algebraic notation when in bounds.
func (v Vec2) String() string {
	if !v.InBounds() {
		return fmt.Sprintf("(%d,%d)", v.X, v.Y)
	}
	return fmt.Sprintf("%c%d", 'a'+rune(v.X), 8-v.Y)
}

// MarshalJSON encodes the vector as a two-element array [x,y].
func (v Vec2) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%d,%d]", v.X, v.Y)), nil
}

// UnmarshalJSON decodes a two-element array [x,y].
func (v *Vec2) UnmarshalJSON(data []byte) error {
	var arr [2]int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("vec2: %w", err)
	}
	v.X, v.Y = arr[0], arr[1]
	return nil
}
