package session

import (
	"encoding/json"
	"fmt"

	"github.com/duckchess/duckchess/internal/board"
	"github.com/duckchess/duckchess/internal/storage"
)

// Phase is the session state machine position.
type Phase string

const (
	PhaseWaitingForSetup Phase = "waitingForSetup"
	PhaseMatchmaking     Phase = "matchmaking"
	PhaseGame            Phase = "game"
)

// State is one user's session, persisted as JSON under socket_state:<user>
// so a reconnecting socket resumes where the previous one stopped. Only the
// fields of the current phase are populated.
type State struct {
	Phase Phase `json:"type"`

	// LastMessage is the id of the last broker entry acted on. Empty means
	// the cursor has not been resolved yet; see Cursor.
	LastMessage string `json:"lastMessage,omitempty"`

	// Matchmaking.
	Elo      float64           `json:"elo,omitempty"`
	EloRange float64           `json:"eloRange,omitempty"`
	Setup    *board.BoardSetup `json:"setup,omitempty"`

	// Game.
	GameID string            `json:"gameId,omitempty"`
	MyTurn bool              `json:"myTurn,omitempty"`
	Player board.Player      `json:"player"`
	Clock  *board.ChessClock `json:"clock,omitempty"`
}

// NewState returns the fresh pre-setup state.
func NewState() *State {
	return &State{Phase: PhaseWaitingForSetup}
}

// ParseState decodes a persisted session state.
func ParseState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session state: %w", err)
	}
	switch s.Phase {
	case PhaseWaitingForSetup, PhaseMatchmaking, PhaseGame:
	default:
		return nil, fmt.Errorf("unknown session phase %q", s.Phase)
	}
	return &s, nil
}

// Encode serializes the state for the KV store.
func (s *State) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// StreamKey returns the broker stream this session listens on: the game
// stream while in Game, the user stream otherwise.
func (s *State) StreamKey(userID string) string {
	if s.Phase == PhaseGame {
		return storage.GameStream(s.GameID)
	}
	return storage.UserStream(userID)
}

// Cursor returns the stream id to read after. A game replays its stream from
// the start so a reconnect re-delivers everything not yet acted on; other
// phases want only new entries, signalled by the empty string until the
// caller resolves the current tail once.
func (s *State) Cursor() string {
	if s.LastMessage != "" {
		return s.LastMessage
	}
	if s.Phase == PhaseGame {
		return "0-0"
	}
	return ""
}

// ToMatchmaking enters the queue with the submitted layout. The cursor is
// reset so the session picks up the tail of its user stream.
func (s *State) ToMatchmaking(elo, eloRange float64, setup board.BoardSetup) {
	*s = State{
		Phase:    PhaseMatchmaking,
		Elo:      elo,
		EloRange: eloRange,
		Setup:    &setup,
	}
}

// ToGame enters a game. The player colour is provisional when the transition
// comes from a bare match notification; the replayed game_start fixes it.
func (s *State) ToGame(gameID string, player board.Player) {
	*s = State{
		Phase:  PhaseGame,
		GameID: gameID,
		Player: player,
	}
}
