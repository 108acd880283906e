package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duckchess/duckchess/internal/board"
	"github.com/duckchess/duckchess/internal/protocol"
)

// gameExpiry is how long a finished game's keys stay readable.
const gameExpiry = 30 * time.Second

// Redis wraps the Redis client with the domain's key layout: hot KV state
// plus the broker streams.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects using a redis:// URL.
func OpenRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Close releases the client's connections.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SaveSocketState overwrites a user's serialized session state.
func (r *Redis) SaveSocketState(ctx context.Context, userID string, state []byte) error {
	return r.client.Set(ctx, socketStateKey(userID), state, 0).Err()
}

// LoadSocketState returns a user's serialized session state, or nil when the
// user has none.
func (r *Redis) LoadSocketState(ctx context.Context, userID string) ([]byte, error) {
	data, err := r.client.Get(ctx, socketStateKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// SetDisconnectSnowflake records the token a disconnect grace timer will
// compare against before cleaning up.
func (r *Redis) SetDisconnectSnowflake(ctx context.Context, userID, token string) error {
	return r.client.Set(ctx, snowflakeKey(userID), token, 0).Err()
}

// DisconnectSnowflake returns the current token, or "" when none is set.
func (r *Redis) DisconnectSnowflake(ctx context.Context, userID string) (string, error) {
	token, err := r.client.Get(ctx, snowflakeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

// DeleteUserKeys removes the per-user keys terminal cleanup owns: the session
// state, the match-notification stream, and the disconnect snowflake.
func (r *Redis) DeleteUserKeys(ctx context.Context, userID string) error {
	return r.client.Del(ctx,
		socketStateKey(userID),
		MatchmakingStream(userID),
		snowflakeKey(userID),
	).Err()
}

// SaveBoard overwrites a game's authoritative board.
func (r *Redis) SaveBoard(ctx context.Context, b *board.Board) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal board: %w", err)
	}
	return r.client.Set(ctx, boardKey(b.ID), data, 0).Err()
}

// LoadBoard returns a game's board, or nil when the game is unknown or
// already expired.
func (r *Redis) LoadBoard(ctx context.Context, gameID string) (*board.Board, error) {
	data, err := r.client.Get(ctx, boardKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var b board.Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal board %s: %w", gameID, err)
	}
	return &b, nil
}

// SaveClock overwrites a game's chess clock.
func (r *Redis) SaveClock(ctx context.Context, gameID string, clock *board.ChessClock) error {
	data, err := json.Marshal(clock)
	if err != nil {
		return fmt.Errorf("marshal clock: %w", err)
	}
	return r.client.Set(ctx, clockKey(gameID), data, 0).Err()
}

// LoadClock returns a game's clock, or nil when the game is unknown.
func (r *Redis) LoadClock(ctx context.Context, gameID string) (*board.ChessClock, error) {
	data, err := r.client.Get(ctx, clockKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var clock board.ChessClock
	if err := json.Unmarshal(data, &clock); err != nil {
		return nil, fmt.Errorf("unmarshal clock %s: %w", gameID, err)
	}
	return &clock, nil
}

// AppendChat pushes a chat line and trims the history to the last
// chatHistoryLen entries.
func (r *Redis) AppendChat(ctx context.Context, gameID string, msg protocol.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, chatKey(gameID), data)
	pipe.LTrim(ctx, chatKey(gameID), -chatHistoryLen, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// ChatHistory returns a game's retained chat, oldest first.
func (r *Redis) ChatHistory(ctx context.Context, gameID string) ([]protocol.ChatMessage, error) {
	lines, err := r.client.LRange(ctx, chatKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	chat := make([]protocol.ChatMessage, 0, len(lines))
	for _, line := range lines {
		var msg protocol.ChatMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal chat line: %w", err)
		}
		chat = append(chat, msg)
	}
	return chat, nil
}

// Publish appends one entry of field/value pairs to a stream, trimming it to
// its approximate cap.
func (r *Redis) Publish(ctx context.Context, stream string, pairs ...any) error {
	maxLen := int64(fanoutStreamMaxLen)
	if stream == GameRequestsStream {
		maxLen = requestStreamMaxLen
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		ID:     "*",
		Values: pairs,
	}).Err()
}

// StreamEntry is one broker message.
type StreamEntry struct {
	ID     string
	Values map[string]string
}

// ReadStream blocks up to the given duration for the first entry after
// lastID. A nil entry means the wait timed out.
func (r *Redis) ReadStream(ctx context.Context, stream, lastID string, block time.Duration) (*StreamEntry, error) {
	res, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   1,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, s := range res {
		for _, msg := range s.Messages {
			entry := toEntry(msg)
			return &entry, nil
		}
	}
	return nil, nil
}

// LastStreamID returns the id of a stream's newest entry, or "0-0" for an
// empty stream. Session setup resolves the "only new messages" cursor with
// it exactly once, so later reads cannot skip entries that land between two
// blocking calls.
func (r *Redis) LastStreamID(ctx context.Context, stream string) (string, error) {
	msgs, err := r.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

// EnsureGroup creates the consumer group at the stream tail, tolerating a
// group that already exists.
func (r *Redis) EnsureGroup(ctx context.Context, stream, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if isBusyGroup(err) {
		return nil
	}
	return err
}

// ReadGroup blocks up to the given duration for entries not yet delivered to
// the group.
func (r *Redis) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error) {
	res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []StreamEntry
	for _, s := range res {
		for _, msg := range s.Messages {
			entries = append(entries, toEntry(msg))
		}
	}
	return entries, nil
}

// AutoClaim transfers entries pending longer than minIdle to this consumer,
// returning the cursor for the next page.
func (r *Redis) AutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, start string) ([]StreamEntry, string, error) {
	msgs, next, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    start,
		Count:    100,
	}).Result()
	if err != nil {
		return nil, "", err
	}
	entries := make([]StreamEntry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, toEntry(msg))
	}
	return entries, next, nil
}

// Ack acknowledges processed entries for the group.
func (r *Redis) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.client.XAck(ctx, stream, group, ids...).Err()
}

// ExpireGameKeys puts the short post-game TTL on everything keyed by the
// game so late reconnects can still replay the ending.
func (r *Redis) ExpireGameKeys(ctx context.Context, gameID string) error {
	pipe := r.client.TxPipeline()
	for _, key := range []string{boardKey(gameID), GameStream(gameID), chatKey(gameID), clockKey(gameID)} {
		pipe.Expire(ctx, key, gameExpiry)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func toEntry(msg redis.XMessage) StreamEntry {
	values := make(map[string]string, len(msg.Values))
	for field, value := range msg.Values {
		if s, ok := value.(string); ok {
			values[field] = s
		}
	}
	return StreamEntry{ID: msg.ID, Values: values}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
