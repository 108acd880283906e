// Package worker implements the game service: a consumer-group member that
// owns every board it touches, turning game_requests entries into board
// updates and stream fan-out for the edge sessions.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/duckchess/duckchess/internal/board"
	"github.com/duckchess/duckchess/internal/config"
	"github.com/duckchess/duckchess/internal/storage"
)

const readCount = 100

// Store is the Redis surface the worker needs.
type Store interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]storage.StreamEntry, error)
	AutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, start string) ([]storage.StreamEntry, string, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	SaveBoard(ctx context.Context, b *board.Board) error
	LoadBoard(ctx context.Context, gameID string) (*board.Board, error)
	SaveClock(ctx context.Context, gameID string, clock *board.ChessClock) error
	LoadClock(ctx context.Context, gameID string) (*board.ChessClock, error)
	Publish(ctx context.Context, stream string, pairs ...any) error
	ExpireGameKeys(ctx context.Context, gameID string) error
}

// Worker consumes game requests. Multiple workers may share the consumer
// group; each entry is processed by exactly one of them, and auto-claim
// retries entries a crashed sibling left pending.
type Worker struct {
	store   Store
	group   string
	id      string
	minIdle time.Duration
	seconds uint64
	log     *logrus.Entry
}

func New(store Store, cfg config.Worker, log *logrus.Entry) *Worker {
	return &Worker{
		store:   store,
		group:   cfg.ConsumerGroup,
		id:      cfg.ConsumerID,
		minIdle: time.Duration(cfg.AutoClaimTimeMS) * time.Millisecond,
		seconds: cfg.GameClockSeconds,
		log:     log,
	}
}

// Run consumes until the context is cancelled. A store failure re-enters the
// outer loop, which re-creates the consumer group in case the broker lost it,
// without acknowledging, so the failed entry is redelivered here or claimed
// by a sibling.
func (w *Worker) Run(ctx context.Context) error {
	w.log.WithField("group", w.group).Info("game worker starting")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.store.EnsureGroup(ctx, storage.GameRequestsStream, w.group); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.WithError(err).Error("creating consumer group")
			time.Sleep(time.Second)
			continue
		}
		for {
			if err := w.iterate(ctx); err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return nil
				}
				w.log.WithError(err).Error("consumer iteration failed")
				break
			}
		}
	}
}

// iterate runs one pass: reclaim entries idle past the threshold, then read
// a fresh batch.
func (w *Worker) iterate(ctx context.Context) error {
	cursor := "0-0"
	for {
		entries, next, err := w.store.AutoClaim(ctx, storage.GameRequestsStream, w.group, w.id, w.minIdle, cursor)
		if err != nil {
			return err
		}
		if err := w.processBatch(ctx, entries); err != nil {
			return err
		}
		if next == "0-0" {
			break
		}
		cursor = next
	}
	entries, err := w.store.ReadGroup(ctx, storage.GameRequestsStream, w.group, w.id, readCount, time.Second)
	if err != nil {
		return err
	}
	return w.processBatch(ctx, entries)
}

// processBatch dispatches entries in order and acknowledges what succeeded.
// Business-level rejections count as success; only store failures leave an
// entry pending for redelivery.
func (w *Worker) processBatch(ctx context.Context, entries []storage.StreamEntry) error {
	if len(entries) == 0 {
		return nil
	}
	acked := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := w.dispatch(ctx, entry); err != nil {
			if ackErr := w.store.Ack(ctx, storage.GameRequestsStream, w.group, acked...); ackErr != nil {
				w.log.WithError(ackErr).Error("acknowledging processed prefix")
			}
			return err
		}
		acked = append(acked, entry.ID)
	}
	return w.store.Ack(ctx, storage.GameRequestsStream, w.group, acked...)
}
