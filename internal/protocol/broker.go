package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/duckchess/duckchess/internal/board"
)

// PlayerSetup pairs a player id with the home ranks they chose.
type PlayerSetup struct {
	ID    string           `json:"id"`
	Setup board.BoardSetup `json:"setup"`
}

// GameStart is the matchmaking handoff published to the game request stream.
// The players are already in their assigned colors.
type GameStart struct {
	GameID string      `json:"gameId"`
	White  PlayerSetup `json:"white"`
	Black  PlayerSetup `json:"black"`
}

// Turn is a played move forwarded by the edge to the game service. Player
// identifies the mover so a redelivered entry whose side already moved is
// recognized and skipped.
type Turn struct {
	GameID   string       `json:"gameId"`
	Player   board.Player `json:"player"`
	PieceIdx int          `json:"pieceIdx"`
	MoveIdx  int          `json:"moveIdx"`
}

// Forfeit reports that a player gave up or timed out of a game. On the wire
// it is the two-element array ["<gameID>","<playerID>"].
type Forfeit struct {
	GameID   string
	PlayerID string
}

// MarshalJSON encodes the forfeit as its two-element array form.
func (f Forfeit) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{f.GameID, f.PlayerID})
}

// UnmarshalJSON decodes the two-element array form.
func (f *Forfeit) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("forfeit has %d elements, want 2", len(pair))
	}
	f.GameID, f.PlayerID = pair[0], pair[1]
	return nil
}
