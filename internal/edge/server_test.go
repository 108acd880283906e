package edge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/duckchess/duckchess/internal/board"
	"github.com/duckchess/duckchess/internal/config"
	"github.com/duckchess/duckchess/internal/protocol"
	"github.com/duckchess/duckchess/internal/storage"
)

type fakeAccounts struct {
	mu      sync.Mutex
	created []string
}

func (f *fakeAccounts) CreateUser(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, id)
	return nil
}

func (f *fakeAccounts) UserElo(ctx context.Context, id string) (float64, error) {
	return 1500, nil
}

func (f *fakeAccounts) Matchmake(ctx context.Context, self storage.QueueEntry) (*storage.QueueEntry, error) {
	return nil, nil
}

func (f *fakeAccounts) UpdateEloRange(ctx context.Context, id string, eloRange float64) (bool, error) {
	return true, nil
}

func (f *fakeAccounts) LeaveQueue(ctx context.Context, id string) error {
	return nil
}

func (f *fakeAccounts) createdIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// fakeStore is just enough session storage for a socket to greet and idle.
type fakeStore struct {
	mu     sync.Mutex
	states map[string][]byte
	flakes map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string][]byte), flakes: make(map[string]string)}
}

func (f *fakeStore) LoadSocketState(ctx context.Context, userID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[userID], nil
}

func (f *fakeStore) SaveSocketState(ctx context.Context, userID string, state []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[userID] = state
	return nil
}

func (f *fakeStore) SetDisconnectSnowflake(ctx context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flakes[userID] = token
	return nil
}

func (f *fakeStore) DisconnectSnowflake(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flakes[userID], nil
}

func (f *fakeStore) DeleteUserKeys(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, userID)
	delete(f.flakes, userID)
	return nil
}

func (f *fakeStore) LoadBoard(ctx context.Context, gameID string) (*board.Board, error) {
	return nil, nil
}

func (f *fakeStore) LoadClock(ctx context.Context, gameID string) (*board.ChessClock, error) {
	return nil, nil
}

func (f *fakeStore) AppendChat(ctx context.Context, gameID string, msg protocol.ChatMessage) error {
	return nil
}

func (f *fakeStore) ChatHistory(ctx context.Context, gameID string) ([]protocol.ChatMessage, error) {
	return nil, nil
}

func (f *fakeStore) Publish(ctx context.Context, stream string, pairs ...any) error {
	return nil
}

func (f *fakeStore) ReadStream(ctx context.Context, stream, lastID string, block time.Duration) (*storage.StreamEntry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return nil, nil
	}
}

func (f *fakeStore) LastStreamID(ctx context.Context, stream string) (string, error) {
	return "0-0", nil
}

func newTestServer(t *testing.T) (*Server, *fakeAccounts) {
	t.Helper()
	t.Setenv("COOKIE_SECRET", "test-secret")
	cfg, err := config.LoadEdge("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	accounts := &fakeAccounts{}
	return NewServer(cfg, newFakeStore(), accounts, logrus.NewEntry(log)), accounts
}

func doLogin(t *testing.T, handler http.Handler, cookie *http.Cookie) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	res := w.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", res.StatusCode)
	}
	var id string
	if err := json.NewDecoder(res.Body).Decode(&id); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	return res, id
}

func identityCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatal("no identity cookie set")
	return nil
}

func TestLoginMintsSignedIdentity(t *testing.T) {
	srv, accounts := newTestServer(t)
	handler := srv.Handler()

	res, id := doLogin(t, handler, nil)
	if id == "" {
		t.Fatal("empty user id")
	}
	if created := accounts.createdIDs(); len(created) != 1 || created[0] != id {
		t.Errorf("created = %v, want [%s]", created, id)
	}

	cookie := identityCookie(t, res)
	if !cookie.HttpOnly || !cookie.Secure || cookie.MaxAge <= 0 {
		t.Errorf("cookie attributes = httpOnly %v, secure %v, maxAge %d", cookie.HttpOnly, cookie.Secure, cookie.MaxAge)
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(cookie.Value, &claims, func(*jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("cookie does not verify: %v", err)
	}
	if claims.Subject != id {
		t.Errorf("cookie subject = %q, want %q", claims.Subject, id)
	}
}

func TestLoginEchoesExistingIdentity(t *testing.T) {
	srv, accounts := newTestServer(t)
	handler := srv.Handler()

	res, id := doLogin(t, handler, nil)
	_, again := doLogin(t, handler, identityCookie(t, res))
	if again != id {
		t.Errorf("second login returned %q, want %q", again, id)
	}
	if created := accounts.createdIDs(); len(created) != 1 {
		t.Errorf("created %d users across two logins with one identity", len(created))
	}
}

func TestLoginRejectsForgedCookie(t *testing.T) {
	srv, accounts := newTestServer(t)
	handler := srv.Handler()

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "intruder"}).
		SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}
	_, id := doLogin(t, handler, &http.Cookie{Name: cookieName, Value: forged})
	if id == "intruder" {
		t.Fatal("forged identity accepted")
	}
	if created := accounts.createdIDs(); len(created) != 1 || created[0] != id {
		t.Errorf("created = %v, want a fresh id", created)
	}
}

func TestLoginRejectsNonGET(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestPlayRequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"garbage cookie", &http.Cookie{Name: cookieName, Value: "not-a-token"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestPlayUpgradesAndGreets(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, id := doLogin(t, srv.Handler(), nil)
	cookie := identityCookie(t, res)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	pair := http.Cookie{Name: cookieName, Value: cookie.Value}
	header := http.Header{"Cookie": {pair.String()}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	var greeting struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &greeting); err != nil {
		t.Fatalf("unmarshal greeting: %v", err)
	}
	if greeting.Type != "selfInfo" || greeting.ID != id {
		t.Fatalf("greeting = %+v, want selfInfo for %s", greeting, id)
	}
}

func TestOriginPolicy(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	tests := []struct {
		name   string
		cfg    config.Edge
		origin string
		want   bool
	}{
		{"allow all", config.Edge{CORSAllowAllOrigins: true}, "https://anywhere.example", true},
		{"listed origin", config.Edge{CORSAllowedOrigins: []string{"https://duckchess.example"}}, "https://duckchess.example", true},
		{"listed origin case folded", config.Edge{CORSAllowedOrigins: []string{"https://DuckChess.example"}}, "https://duckchess.example", true},
		{"unlisted origin", config.Edge{CORSAllowedOrigins: []string{"https://duckchess.example"}}, "https://evil.example", false},
		{"no origin header", config.Edge{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&tt.cfg, newFakeStore(), &fakeAccounts{}, logrus.NewEntry(log))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := srv.originAllowed(req); got != tt.want {
				t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
