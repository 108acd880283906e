package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/duckchess/duckchess/internal/board"
	"github.com/duckchess/duckchess/internal/protocol"
	"github.com/duckchess/duckchess/internal/storage"
)

// matchmake runs one pass of the queue algorithm: pair up with the oldest
// candidate whose rating window mutually overlaps ours, or stand in line.
// On a match this session is the initiator: it creates the game id, tells
// the partner and hands the game service the two setups.
func (s *Socket) matchmake(ctx context.Context) error {
	if s.state.Phase != PhaseMatchmaking {
		return nil
	}
	setup, err := json.Marshal(s.state.Setup)
	if err != nil {
		return err
	}
	partner, err := s.queue.Matchmake(ctx, storage.QueueEntry{
		ID:         s.userID,
		Elo:        s.state.Elo,
		EloRange:   s.state.EloRange,
		BoardSetup: string(setup),
	})
	if err != nil {
		return err
	}
	if partner == nil {
		return nil // queued; a later entrant pairs with us
	}
	return s.startGame(ctx, partner)
}

func (s *Socket) startGame(ctx context.Context, partner *storage.QueueEntry) error {
	var partnerSetup board.BoardSetup
	if err := json.Unmarshal([]byte(partner.BoardSetup), &partnerSetup); err != nil {
		return fmt.Errorf("partner setup: %w", err)
	}
	gameID := newID()
	white := protocol.PlayerSetup{ID: s.userID, Setup: *s.state.Setup}
	black := protocol.PlayerSetup{ID: partner.ID, Setup: partnerSetup}
	if s.coinFlip() {
		white, black = black, white
	}
	start, err := json.Marshal(protocol.GameStart{GameID: gameID, White: white, Black: black})
	if err != nil {
		return err
	}
	// The partner's actor reads its user stream while queued; the
	// matchmaking stream carries a copy for a session caught mid-transition.
	for _, stream := range []string{storage.UserStream(partner.ID), storage.MatchmakingStream(partner.ID)} {
		if err := s.store.Publish(ctx, stream, storage.FieldMatch, gameID); err != nil {
			return err
		}
	}
	if err := s.store.Publish(ctx, storage.GameRequestsStream, storage.FieldGameStart, string(start)); err != nil {
		return err
	}
	player := board.Black
	if white.ID == s.userID {
		player = board.White
	}
	s.state.ToGame(gameID, player)
	return nil
}
