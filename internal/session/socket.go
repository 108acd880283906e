// Package session implements the per-connection actor of the edge service:
// one goroutine per websocket bridging the client to the matchmaking queue
// and to the game streams, with its state persisted so a reconnecting socket
// resumes where the last one stopped.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/duckchess/duckchess/internal/board"
	"github.com/duckchess/duckchess/internal/protocol"
	"github.com/duckchess/duckchess/internal/storage"
)

const (
	// readBlock bounds one broker read so the loop stays responsive to the
	// shutdown signal and runs its tick about once a second.
	readBlock = time.Second

	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	gracePeriod  = 5 * time.Second

	maxChatLen      = 1024
	initialEloRange = 200
)

// Conn is the subset of *websocket.Conn the session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Store is the KV and stream surface the session needs.
type Store interface {
	LoadSocketState(ctx context.Context, userID string) ([]byte, error)
	SaveSocketState(ctx context.Context, userID string, state []byte) error
	SetDisconnectSnowflake(ctx context.Context, userID, token string) error
	DisconnectSnowflake(ctx context.Context, userID string) (string, error)
	DeleteUserKeys(ctx context.Context, userID string) error
	LoadBoard(ctx context.Context, gameID string) (*board.Board, error)
	LoadClock(ctx context.Context, gameID string) (*board.ChessClock, error)
	AppendChat(ctx context.Context, gameID string, msg protocol.ChatMessage) error
	ChatHistory(ctx context.Context, gameID string) ([]protocol.ChatMessage, error)
	Publish(ctx context.Context, stream string, pairs ...any) error
	ReadStream(ctx context.Context, stream, lastID string, block time.Duration) (*storage.StreamEntry, error)
	LastStreamID(ctx context.Context, stream string) (string, error)
}

// Queue is the SQL matchmaking surface the session needs.
type Queue interface {
	UserElo(ctx context.Context, id string) (float64, error)
	Matchmake(ctx context.Context, self storage.QueueEntry) (*storage.QueueEntry, error)
	UpdateEloRange(ctx context.Context, id string, eloRange float64) (bool, error)
	LeaveQueue(ctx context.Context, id string) error
}

// exitStatus describes how the main loop ended. allowReconnect defers
// cleanup behind the snowflake grace period; surrender turns the eventual
// cleanup into a forfeit when a game is running; shutdown leaves the session
// untouched so the client can rejoin a healthy replica.
type exitStatus struct {
	reason         string
	allowReconnect bool
	surrender      bool
	shutdown       bool
}

type clientMessage struct {
	data []byte
	err  error
}

type streamResult struct {
	stream string
	entry  *storage.StreamEntry
	err    error
}

var errSocketWrite = errors.New("socket write failed")

// Socket is the actor for one connected player.
type Socket struct {
	userID   string
	conn     Conn
	store    Store
	queue    Queue
	registry *Registry
	log      *logrus.Entry

	state       *State
	gracePeriod time.Duration
	coinFlip    func() bool
	lastPing    time.Time

	inbound  chan clientMessage
	inflight chan streamResult
	done     chan struct{}
}

// New wires a socket actor. Run drives it.
func New(userID string, conn Conn, store Store, queue Queue, registry *Registry, log *logrus.Entry) *Socket {
	return &Socket{
		userID:      userID,
		conn:        conn,
		store:       store,
		queue:       queue,
		registry:    registry,
		log:         log,
		gracePeriod: gracePeriod,
		coinFlip:    func() bool { return rand.Intn(2) == 0 },
		lastPing:    time.Now(),
		inbound:     make(chan clientMessage, 1),
		done:        make(chan struct{}),
	}
}

// Run services the connection until the client leaves, the game ends, or the
// server shuts down, then settles the session per the exit cause. It blocks
// for the lifetime of the socket.
func (s *Socket) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(s.done)

	s.registry.register(s)
	defer s.registry.unregister(s)

	exit := s.connect(ctx)
	if exit == nil {
		go s.readPump()
		exit = s.loop(ctx)
	}
	s.disconnected(*exit)
}

// connect restores or creates the session state, claims the disconnect
// snowflake so a pending grace timer stands down, and replays whatever the
// restored state owes the client.
func (s *Socket) connect(ctx context.Context) *exitStatus {
	raw, err := s.store.LoadSocketState(ctx, s.userID)
	if err != nil {
		return s.failure(err)
	}
	if raw == nil {
		s.state = NewState()
	} else if s.state, err = ParseState(raw); err != nil {
		s.log.WithError(err).Warn("discarding corrupt session state")
		s.state = NewState()
	}
	if err := s.store.SetDisconnectSnowflake(ctx, s.userID, newID()); err != nil {
		return s.failure(err)
	}
	if err := s.send(protocol.SelfInfo{ID: s.userID}); err != nil {
		return s.failure(err)
	}
	if err := s.sendGameState(ctx); err != nil {
		return s.failure(err)
	}
	if s.state.Phase == PhaseMatchmaking {
		// The previous socket's exit removed the queue row, so re-enqueue.
		if err := s.matchmake(ctx); err != nil {
			return s.failure(err)
		}
	}
	if err := s.saveState(ctx); err != nil {
		return s.failure(err)
	}
	return nil
}

func (s *Socket) loop(ctx context.Context) *exitStatus {
	for {
		if s.inflight == nil {
			if err := s.resolveCursor(ctx); err != nil {
				return s.failure(err)
			}
			s.startStreamRead(ctx)
		}
		var exit *exitStatus
		var err error
		select {
		case msg := <-s.inbound:
			if msg.err != nil {
				return &exitStatus{reason: "client disconnected", allowReconnect: true, surrender: true}
			}
			exit, err = s.handleRequest(ctx, msg.data)
		case res := <-s.inflight:
			s.inflight = nil
			exit, err = s.handleStreamResult(ctx, res)
		case <-ctx.Done():
			return &exitStatus{reason: "server closed", allowReconnect: true, shutdown: true}
		}
		if err != nil {
			return s.failure(err)
		}
		if exit != nil {
			return exit
		}
		if exit := s.tick(); exit != nil {
			return exit
		}
	}
}

// failure maps an internal error onto the exit taxonomy: a dead socket counts
// as a client disconnect, anything else closes with reconnect allowed.
func (s *Socket) failure(err error) *exitStatus {
	if errors.Is(err, errSocketWrite) {
		return &exitStatus{reason: "client disconnected", allowReconnect: true, surrender: true}
	}
	s.log.WithError(err).Error("session store failure")
	return &exitStatus{reason: "internal error", allowReconnect: true}
}

func (s *Socket) readPump() {
	for {
		_, data, err := s.conn.ReadMessage()
		select {
		case s.inbound <- clientMessage{data: data, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// resolveCursor pins the "only new entries" default to a concrete id once.
// Re-deriving it from $ on every read would drop entries produced between
// two reads.
func (s *Socket) resolveCursor(ctx context.Context) error {
	if s.state.LastMessage != "" || s.state.Phase == PhaseGame {
		return nil
	}
	id, err := s.store.LastStreamID(ctx, s.state.StreamKey(s.userID))
	if err != nil {
		return err
	}
	s.state.LastMessage = id
	return nil
}

// startStreamRead issues the single in-flight broker read for the stream the
// state currently selects. The result is tagged with that stream so a result
// arriving after a transition is recognisable as stale.
func (s *Socket) startStreamRead(ctx context.Context) {
	stream := s.state.StreamKey(s.userID)
	cursor := s.state.Cursor()
	ch := make(chan streamResult, 1)
	s.inflight = ch
	go func() {
		entry, err := s.store.ReadStream(ctx, stream, cursor, readBlock)
		ch <- streamResult{stream: stream, entry: entry, err: err}
	}()
}

func (s *Socket) handleStreamResult(ctx context.Context, res streamResult) (*exitStatus, error) {
	if res.stream != s.state.StreamKey(s.userID) {
		// Read for a stream the state no longer selects; drop it without
		// touching the cursor.
		return nil, nil
	}
	if res.err != nil {
		return nil, res.err
	}
	if res.entry == nil {
		return nil, nil
	}
	exit, err := s.dispatch(ctx, *res.entry)
	if err != nil {
		return nil, err
	}
	// Advance the cursor only when the entry's stream is still selected; a
	// transition resets it so the new stream replays from its own default.
	if res.stream == s.state.StreamKey(s.userID) {
		s.state.LastMessage = res.entry.ID
	}
	if err := s.saveState(ctx); err != nil {
		return nil, err
	}
	return exit, nil
}

// handleRequest applies one client message. Malformed messages and requests
// that are not legal in the current state are dropped without a reply.
func (s *Socket) handleRequest(ctx context.Context, data []byte) (*exitStatus, error) {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		s.log.WithError(err).Debug("dropping malformed request")
		return nil, nil
	}
	switch req := req.(type) {
	case protocol.TurnRequest:
		if s.state.Phase != PhaseGame || !s.state.MyTurn {
			return nil, nil
		}
		// Cleared before the server echoes, locking out double submission.
		s.state.MyTurn = false
		payload, err := json.Marshal(protocol.Turn{
			GameID:   s.state.GameID,
			Player:   s.state.Player,
			PieceIdx: req.PieceIdx,
			MoveIdx:  req.MoveIdx,
		})
		if err != nil {
			return nil, err
		}
		if err := s.store.Publish(ctx, storage.GameRequestsStream, storage.FieldTurn, string(payload)); err != nil {
			return nil, err
		}
		return nil, s.saveState(ctx)
	case protocol.ChatRequest:
		if s.state.Phase != PhaseGame || len(req.Message) > maxChatLen {
			return nil, nil
		}
		msg := protocol.ChatMessage{ID: s.userID, Message: req.Message}
		payload, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		if err := s.store.Publish(ctx, storage.GameStream(s.state.GameID), storage.FieldChat, string(payload)); err != nil {
			return nil, err
		}
		// The game stream dispatch skips own messages, so echo here.
		if err := s.send(protocol.Chat{Message: msg}); err != nil {
			return nil, err
		}
		return nil, s.store.AppendChat(ctx, s.state.GameID, msg)
	case protocol.ExpandEloRangeRequest:
		if s.state.Phase != PhaseMatchmaking {
			return nil, nil
		}
		s.state.EloRange *= 2
		ok, err := s.queue.UpdateEloRange(ctx, s.userID, s.state.EloRange)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Row gone: a partner matched us and the notification is already
			// on its way. Re-queueing here would enter a second game.
			return nil, nil
		}
		if err := s.matchmake(ctx); err != nil {
			return nil, err
		}
		return nil, s.saveState(ctx)
	case protocol.BoardSetupRequest:
		if s.state.Phase != PhaseWaitingForSetup || !req.Setup.IsValid() {
			return nil, nil
		}
		elo, err := s.queue.UserElo(ctx, s.userID)
		if err != nil {
			return nil, err
		}
		s.state.ToMatchmaking(elo, initialEloRange, req.Setup)
		if err := s.matchmake(ctx); err != nil {
			return nil, err
		}
		return nil, s.saveState(ctx)
	case protocol.SurrenderRequest:
		if s.state.Phase != PhaseGame {
			return nil, nil
		}
		return &exitStatus{reason: "player surrendered", surrender: true}, nil
	}
	return nil, nil
}

// dispatch processes every broker field one entry carries, in production
// order: a single entry may announce a match, start the game and hand White
// its first turn.
func (s *Socket) dispatch(ctx context.Context, entry storage.StreamEntry) (*exitStatus, error) {
	if id, ok := entry.Values[storage.FieldMatch]; ok {
		s.matched(id)
	}
	if v, ok := entry.Values[storage.FieldGameStart]; ok {
		if err := s.gameStarted(ctx, v); err != nil {
			return nil, err
		}
	}
	if v, ok := entry.Values[storage.FieldMoves]; ok {
		if err := s.movesPlayed(v); err != nil {
			return nil, err
		}
	}
	if v, ok := entry.Values[storage.FieldTurnStart]; ok {
		if err := s.turnStarted(v); err != nil {
			return nil, err
		}
	}
	if v, ok := entry.Values[storage.FieldChat]; ok {
		if err := s.chatReceived(v); err != nil {
			return nil, err
		}
	}
	if id, ok := entry.Values[storage.FieldEnd]; ok {
		if err := s.send(protocol.End{Winner: id}); err != nil {
			return nil, err
		}
		return &exitStatus{reason: "game ended"}, nil
	}
	return nil, nil
}

// matched moves the session into the announced game. The colour here is
// provisional; the game_start replayed from the game stream fixes it.
func (s *Socket) matched(gameID string) {
	s.state.ToGame(gameID, board.White)
}

func (s *Socket) gameStarted(ctx context.Context, value string) error {
	var start protocol.GameStart
	if err := json.Unmarshal([]byte(value), &start); err != nil {
		s.log.WithError(err).Warn("dropping malformed game_start entry")
		return nil
	}
	player := board.Black
	if start.White.ID == s.userID {
		player = board.White
	}
	s.state.ToGame(start.GameID, player)
	return s.sendGameState(ctx)
}

func (s *Socket) turnStarted(value string) error {
	if s.state.Phase != PhaseGame {
		return nil
	}
	var ts protocol.TurnStart
	if err := json.Unmarshal([]byte(value), &ts); err != nil {
		s.log.WithError(err).Warn("dropping malformed turn_start entry")
		return nil
	}
	s.state.MyTurn = ts.Turn == s.state.Player
	s.state.Clock = ts.Clock
	return s.send(ts)
}

func (s *Socket) movesPlayed(value string) error {
	var moves []board.Move
	if err := json.Unmarshal([]byte(value), &moves); err != nil {
		s.log.WithError(err).Warn("dropping malformed moves entry")
		return nil
	}
	return s.send(protocol.Move{Moves: moves})
}

func (s *Socket) chatReceived(value string) error {
	var msg protocol.ChatMessage
	if err := json.Unmarshal([]byte(value), &msg); err != nil {
		s.log.WithError(err).Warn("dropping malformed chat entry")
		return nil
	}
	if msg.ID == s.userID {
		return nil // echoed when it was sent
	}
	return s.send(protocol.Chat{Message: msg})
}

// sendGameState replays the current board, clock and chat history to the
// client. Outside a game, or when the board already expired, there is
// nothing to replay.
func (s *Socket) sendGameState(ctx context.Context) error {
	if s.state.Phase != PhaseGame {
		return nil
	}
	b, err := s.store.LoadBoard(ctx, s.state.GameID)
	if err != nil {
		return err
	}
	if b == nil {
		return nil
	}
	clock, err := s.store.LoadClock(ctx, s.state.GameID)
	if err != nil {
		return err
	}
	if err := s.send(protocol.GameState{Board: b, Clock: clock}); err != nil {
		return err
	}
	chat, err := s.store.ChatHistory(ctx, s.state.GameID)
	if err != nil {
		return err
	}
	return s.send(protocol.FullChat{Chat: chat})
}

func (s *Socket) send(resp protocol.PlayResponse) error {
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", errSocketWrite, err)
	}
	return nil
}

// tick runs once per loop iteration: a rate-limited keepalive ping, and the
// flag-fall check that ends the session when the player's own clock ran out
// on their turn. The opponent's side is settled by the worker.
func (s *Socket) tick() *exitStatus {
	if time.Since(s.lastPing) >= pingInterval {
		s.lastPing = time.Now()
		if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return &exitStatus{reason: "client disconnected", allowReconnect: true, surrender: true}
		}
	}
	if s.state.Phase == PhaseGame && s.state.MyTurn && s.state.Clock != nil &&
		!s.state.Clock.PlayerTimer(s.state.Player).HasTime() {
		return &exitStatus{reason: "out of time", surrender: true}
	}
	return nil
}

// disconnected settles the session after the loop ended. The queue row goes
// synchronously in every case so nobody matches against a dead socket.
func (s *Socket) disconnected(exit exitStatus) {
	ctx := context.Background()
	log := s.log.WithField("reason", exit.reason)
	log.Info("socket closed")
	if err := s.queue.LeaveQueue(ctx, s.userID); err != nil {
		log.WithError(err).Error("leaving matchmaking queue")
	}
	s.closeConn(exit.reason)
	switch {
	case !exit.allowReconnect:
		s.cleanup(ctx, exit.surrender)
	case exit.shutdown:
		// State stays put; the client rejoins a healthy replica.
	default:
		token := newID()
		if err := s.store.SetDisconnectSnowflake(ctx, s.userID, token); err != nil {
			log.WithError(err).Error("arming disconnect grace period")
			return
		}
		go s.graceCleanup(token, exit.surrender)
	}
}

// graceCleanup waits out the reconnect window. A new socket for the same
// user rewrites the snowflake, so finding our own token means nobody came
// back.
func (s *Socket) graceCleanup(token string, surrender bool) {
	time.Sleep(s.gracePeriod)
	ctx := context.Background()
	current, err := s.store.DisconnectSnowflake(ctx, s.userID)
	if err != nil {
		s.log.WithError(err).Error("reading disconnect snowflake")
		return
	}
	if current != token {
		return
	}
	s.cleanup(ctx, surrender)
}

// cleanup removes the per-user keys and queue row, and forfeits a running
// game when the exit was the player's own doing.
func (s *Socket) cleanup(ctx context.Context, surrender bool) {
	s.log.Info("cleaning up session")
	if err := s.store.DeleteUserKeys(ctx, s.userID); err != nil {
		s.log.WithError(err).Error("deleting session keys")
	}
	if err := s.queue.LeaveQueue(ctx, s.userID); err != nil {
		s.log.WithError(err).Error("leaving matchmaking queue")
	}
	if s.state.Phase != PhaseGame || !surrender {
		return
	}
	payload, err := json.Marshal(protocol.Forfeit{GameID: s.state.GameID, PlayerID: s.userID})
	if err != nil {
		s.log.WithError(err).Error("encoding forfeit")
		return
	}
	if err := s.store.Publish(ctx, storage.GameRequestsStream, storage.FieldForfeit, string(payload)); err != nil {
		s.log.WithError(err).Error("publishing forfeit")
	}
}

func (s *Socket) closeConn(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.log.WithError(err).Debug("writing close frame")
	}
	if err := s.conn.Close(); err != nil {
		s.log.WithError(err).Debug("closing socket")
	}
}

func (s *Socket) saveState(ctx context.Context) error {
	data, err := s.state.Encode()
	if err != nil {
		return err
	}
	return s.store.SaveSocketState(ctx, s.userID, data)
}

// newID returns a time-ordered unique id, used for games and disconnect
// snowflakes.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
