// Package protocol defines the websocket envelope spoken with clients and
// the payloads exchanged with the game service over Redis streams. Every
// message is an internally tagged JSON object whose "type" field names the
// variant in lowerCamelCase.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/duckchess/duckchess/internal/board"
)

// PlayRequest is a client-to-server message.
type PlayRequest interface {
	isPlayRequest()
}

// TurnRequest plays one generated move, addressed by its position in the
// last turnStart payload.
type TurnRequest struct {
	PieceIdx int `json:"pieceIdx"`
	MoveIdx  int `json:"moveIdx"`
}

// ChatRequest sends a chat line to the opponent.
type ChatRequest struct {
	Message string `json:"message"`
}

// ExpandEloRangeRequest doubles the caller's matchmaking window.
type ExpandEloRangeRequest struct{}

// BoardSetupRequest submits the two home ranks the player wants to start
// with, entering matchmaking.
type BoardSetupRequest struct {
	Setup board.BoardSetup `json:"setup"`
}

// SurrenderRequest concedes the current game.
type SurrenderRequest struct{}

func (TurnRequest) isPlayRequest()           {}
func (ChatRequest) isPlayRequest()           {}
func (ExpandEloRangeRequest) isPlayRequest() {}
func (BoardSetupRequest) isPlayRequest()     {}
func (SurrenderRequest) isPlayRequest()      {}

// DecodeRequest parses a client message into its concrete variant. Unknown
// or malformed messages return an error; callers decide whether that drops
// the message or the connection.
func DecodeRequest(data []byte) (PlayRequest, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	switch head.Type {
	case "turn":
		var r TurnRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		return r, nil
	case "chatMessage":
		var r ChatRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		return r, nil
	case "expandEloRange":
		return ExpandEloRangeRequest{}, nil
	case "boardSetup":
		var r BoardSetupRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode board setup: %w", err)
		}
		return r, nil
	case "surrender":
		return SurrenderRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown request type %q", head.Type)
	}
}

// PlayResponse is a server-to-client message.
type PlayResponse interface {
	isPlayResponse()
}

// InvalidRequest tells the client its last message was rejected.
type InvalidRequest struct{}

// SelfInfo reports the caller's own user id right after the socket opens.
type SelfInfo struct {
	ID string `json:"id"`
}

// GameState replays the full board to a client that joined or reconnected
// mid-game.
type GameState struct {
	Board *board.Board      `json:"board"`
	Clock *board.ChessClock `json:"clock"`
}

// TurnStart announces whose turn begins and every move that side may play.
// The same shape travels from the game service over the game stream and from
// the edge to its client.
type TurnStart struct {
	Turn       board.Player      `json:"turn"`
	MovePieces []board.Vec2      `json:"movePieces"`
	Moves      [][]board.Move    `json:"moves"`
	Clock      *board.ChessClock `json:"clock"`
}

// Move echoes the primitive moves a turn resolved into, in application order.
type Move struct {
	Moves []board.Move `json:"moves"`
}

// End reports the winner's user id and closes the game.
type End struct {
	Winner string `json:"winner"`
}

// Chat delivers one chat line.
type Chat struct {
	Message ChatMessage `json:"message"`
}

// FullChat replays the retained chat history on connect.
type FullChat struct {
	Chat []ChatMessage `json:"chat"`
}

// ChatMessage is a single chat line and the id of the player who sent it.
// Service notices use an empty id.
type ChatMessage struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (InvalidRequest) isPlayResponse() {}
func (SelfInfo) isPlayResponse()       {}
func (GameState) isPlayResponse()      {}
func (TurnStart) isPlayResponse()      {}
func (Move) isPlayResponse()           {}
func (End) isPlayResponse()            {}
func (Chat) isPlayResponse()           {}
func (FullChat) isPlayResponse()       {}

// EncodeResponse renders a response with its type tag first. Embedding keeps
// the variant's own fields at the top level next to the tag.
func EncodeResponse(r PlayResponse) ([]byte, error) {
	switch v := r.(type) {
	case InvalidRequest:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{"invalidRequest"})
	case SelfInfo:
		return json.Marshal(struct {
			Type string `json:"type"`
			SelfInfo
		}{"selfInfo", v})
	case GameState:
		return json.Marshal(struct {
			Type string `json:"type"`
			GameState
		}{"gameState", v})
	case TurnStart:
		return json.Marshal(struct {
			Type string `json:"type"`
			TurnStart
		}{"turnStart", v})
	case Move:
		return json.Marshal(struct {
			Type string `json:"type"`
			Move
		}{"move", v})
	case End:
		return json.Marshal(struct {
			Type string `json:"type"`
			End
		}{"end", v})
	case Chat:
		return json.Marshal(struct {
			Type string `json:"type"`
			Chat
		}{"chatMessage", v})
	case FullChat:
		return json.Marshal(struct {
			Type string `json:"type"`
			FullChat
		}{"fullChat", v})
	default:
		return nil, fmt.Errorf("unknown response %T", r)
	}
}
