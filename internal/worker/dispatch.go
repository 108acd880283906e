package worker

import (
	"context"
	"encoding/json"

	"github.com/duckchess/duckchess/internal/board"
	"github.com/duckchess/duckchess/internal/protocol"
	"github.com/duckchess/duckchess/internal/storage"
)

// dispatch processes every request field one entry carries. Malformed
// payloads are logged and dropped; they would fail identically on every
// redelivery.
func (w *Worker) dispatch(ctx context.Context, entry storage.StreamEntry) error {
	if v, ok := entry.Values[storage.FieldGameStart]; ok {
		if err := w.gameStart(ctx, v); err != nil {
			return err
		}
	}
	if v, ok := entry.Values[storage.FieldTurn]; ok {
		if err := w.turn(ctx, v); err != nil {
			return err
		}
	}
	if v, ok := entry.Values[storage.FieldForfeit]; ok {
		if err := w.forfeit(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// gameStart builds the authoritative board and clock, persists them, and
// announces the game on the game stream and both players' user streams.
func (w *Worker) gameStart(ctx context.Context, value string) error {
	var start protocol.GameStart
	if err := json.Unmarshal([]byte(value), &start); err != nil {
		w.log.WithError(err).Warn("dropping malformed game_start")
		return nil
	}
	b, err := board.New(start.GameID, start.White.ID, start.Black.ID, start.White.Setup, start.Black.Setup)
	if err != nil {
		w.log.WithError(err).WithField("game_id", start.GameID).Warn("rejecting unplayable setup")
		return nil
	}
	clock := board.NewChessClock(w.seconds)
	clock.PlayerTimer(board.White).Start()
	if err := w.store.SaveBoard(ctx, b); err != nil {
		return err
	}
	if err := w.store.SaveClock(ctx, b.ID, clock); err != nil {
		return err
	}
	turnStart, err := json.Marshal(protocol.TurnStart{
		Turn:       b.Turn,
		MovePieces: b.MovePieces,
		Moves:      b.Moves,
		Clock:      clock,
	})
	if err != nil {
		return err
	}
	streams := []string{
		storage.GameStream(b.ID),
		storage.UserStream(start.White.ID),
		storage.UserStream(start.Black.ID),
	}
	for _, stream := range streams {
		if err := w.store.Publish(ctx, stream,
			storage.FieldGameStart, value,
			storage.FieldTurnStart, string(turnStart),
		); err != nil {
			return err
		}
	}
	if len(b.Moves) == 0 {
		// White cannot move at all against this setup pairing.
		return w.endGame(ctx, b, b.WhitePlayer)
	}
	return nil
}

// turn applies one submitted move. Redeliveries and requests that no longer
// address the current move list are no-ops, which keeps at-least-once
// delivery safe.
func (w *Worker) turn(ctx context.Context, value string) error {
	var t protocol.Turn
	if err := json.Unmarshal([]byte(value), &t); err != nil {
		w.log.WithError(err).Warn("dropping malformed turn")
		return nil
	}
	b, err := w.store.LoadBoard(ctx, t.GameID)
	if err != nil {
		return err
	}
	if b == nil {
		return nil // game already over
	}
	if t.Player != b.Turn {
		return nil // stale redelivery or an out-of-turn submission
	}
	clock, err := w.store.LoadClock(ctx, t.GameID)
	if err != nil {
		return err
	}
	if clock != nil && !clock.PlayerTimer(b.Turn).HasTime() {
		return w.endGame(ctx, b, b.NotTurnPlayer())
	}
	applied, gameOver, ok := b.EvaluateTurn(t.PieceIdx, t.MoveIdx)
	if !ok {
		return nil
	}
	if clock != nil {
		clock.PlayerTimer(t.Player).Pause()
		clock.PlayerTimer(b.Turn).Start()
	}
	if err := w.store.SaveBoard(ctx, b); err != nil {
		return err
	}
	if clock != nil {
		if err := w.store.SaveClock(ctx, t.GameID, clock); err != nil {
			return err
		}
	}
	moves, err := json.Marshal(applied)
	if err != nil {
		return err
	}
	turnStart, err := json.Marshal(protocol.TurnStart{
		Turn:       b.Turn,
		MovePieces: b.MovePieces,
		Moves:      b.Moves,
		Clock:      clock,
	})
	if err != nil {
		return err
	}
	if err := w.store.Publish(ctx, storage.GameStream(b.ID),
		storage.FieldMoves, string(moves),
		storage.FieldTurnStart, string(turnStart),
	); err != nil {
		return err
	}
	if gameOver {
		// The flip already happened, so the side that just moved is the one
		// whose turn it is not.
		return w.endGame(ctx, b, b.NotTurnPlayer())
	}
	return nil
}

// forfeit ends the game in favour of the player who stayed.
func (w *Worker) forfeit(ctx context.Context, value string) error {
	var f protocol.Forfeit
	if err := json.Unmarshal([]byte(value), &f); err != nil {
		w.log.WithError(err).Warn("dropping malformed forfeit")
		return nil
	}
	b, err := w.store.LoadBoard(ctx, f.GameID)
	if err != nil {
		return err
	}
	if b == nil {
		return nil // game already over
	}
	winner := b.WhitePlayer
	if f.PlayerID == b.WhitePlayer {
		winner = b.BlackPlayer
	}
	return w.endGame(ctx, b, winner)
}

// endGame announces the winner in one entry carrying both a service chat
// notice and the end marker, then lets the game's keys age out.
func (w *Worker) endGame(ctx context.Context, b *board.Board, winnerID string) error {
	colour := "white"
	if winnerID == b.BlackPlayer {
		colour = "black"
	}
	notice, err := json.Marshal(protocol.ChatMessage{Message: colour + " wins"})
	if err != nil {
		return err
	}
	if err := w.store.Publish(ctx, storage.GameStream(b.ID),
		storage.FieldChat, string(notice),
		storage.FieldEnd, winnerID,
	); err != nil {
		return err
	}
	w.log.WithField("game_id", b.ID).WithField("winner", winnerID).Info("game over")
	return w.store.ExpireGameKeys(ctx, b.ID)
}
