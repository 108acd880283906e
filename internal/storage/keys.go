// Package storage wraps the two backing stores: Redis for hot per-game state
// and the broker streams, Postgres for the user table and the matchmaking
// queue.
package storage

// GameRequestsStream is the single stream the game service consumes under a
// consumer group.
const GameRequestsStream = "game_requests"

// Stream entry field names. Each entry carries one or more of these; the
// value is the JSON payload for the field, except match and end whose values
// are raw id strings.
const (
	FieldGameStart = "game_start"
	FieldTurn      = "turn"
	FieldForfeit   = "forfeit"
	FieldTurnStart = "turn_start"
	FieldMoves     = "moves"
	FieldChat      = "chat"
	FieldEnd       = "end"
	FieldMatch     = "match"
)

// Stream caps and retention, applied as approximate MAXLEN trims.
const (
	fanoutStreamMaxLen  = 1000
	requestStreamMaxLen = 10000
	chatHistoryLen      = 100
)

// GameStream fans out to every socket tuned to one game.
func GameStream(gameID string) string {
	return "game:" + gameID
}

// UserStream fans out to one user's socket across matchmaking and game
// transitions.
func UserStream(userID string) string {
	return "user:" + userID
}

// MatchmakingStream carries match notifications to a waiting partner.
func MatchmakingStream(userID string) string {
	return "matchmaking:" + userID
}

func boardKey(gameID string) string {
	return "board:" + gameID
}

func clockKey(gameID string) string {
	return "clock:" + gameID
}

func chatKey(gameID string) string {
	return "chat:" + gameID
}

func socketStateKey(userID string) string {
	return "socket_state:" + userID
}

func snowflakeKey(userID string) string {
	return "disconnect_snowflake:" + userID
}
