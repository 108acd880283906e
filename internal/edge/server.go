// Package edge implements the player-facing HTTP surface: a login endpoint
// issuing the signed identity cookie, and the websocket endpoint that runs
// one session actor per connection.
package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/duckchess/duckchess/internal/config"
	"github.com/duckchess/duckchess/internal/session"
)

const (
	cookieName   = "user_id"
	cookieMaxAge = 365 * 24 * time.Hour
)

// Accounts extends the matchmaking queue with user provisioning. The
// concrete Postgres store satisfies it.
type Accounts interface {
	session.Queue
	CreateUser(ctx context.Context, id string) error
}

// Server holds the route handlers and the per-process socket registry.
type Server struct {
	cfg      *config.Edge
	store    session.Store
	accounts Accounts
	registry *session.Registry
	log      *logrus.Entry
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Edge, store session.Store, accounts Accounts, log *logrus.Entry) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		accounts: accounts,
		registry: session.NewRegistry(),
		log:      log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

// Handler returns the routed handler wrapped with the CORS policy.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.login)
	mux.HandleFunc("/", s.play)

	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet},
		AllowedHeaders:   []string{"Authorization", "Accept"},
		AllowCredentials: true,
	}
	if s.cfg.CORSAllowAllOrigins {
		opts.AllowOriginFunc = func(string) bool { return true }
	} else {
		opts.AllowedOrigins = s.cfg.CORSAllowedOrigins
	}
	return cors.New(opts).Handler(mux)
}

// login returns the caller's user id as a JSON string, minting a fresh
// identity and user row when the request carries no valid cookie. The cookie
// is (re)issued either way, which keeps its expiry sliding.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	id, ok := s.userID(r)
	if !ok {
		id = uuid.Must(uuid.NewV7()).String()
		if err := s.accounts.CreateUser(r.Context(), id); err != nil {
			s.log.WithError(err).Error("creating user")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}
	if err := s.setUserCookie(w, id); err != nil {
		s.log.WithError(err).Error("signing identity cookie")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(id); err != nil {
		s.log.WithError(err).Warn("writing login response")
	}
}

// play upgrades the connection and blocks in the session actor until the
// player leaves. The request context is the actor's shutdown signal; main
// ties it to the process signal context through BaseContext.
func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	userID, ok := s.userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its error response.
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	log := s.log.WithField("user_id", userID)
	session.New(userID, conn, s.store, s.accounts, s.registry, log).Run(r.Context())
}

func (s *Server) setUserCookie(w http.ResponseWriter, id string) error {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: id}).
		SignedString([]byte(s.cfg.CookieSecret))
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: s.cfg.SameSite(),
	})
	return nil
}

// userID extracts the user id from a verified identity cookie.
func (s *Server) userID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(cookie.Value, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.CookieSecret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// originAllowed mirrors the CORS policy for the websocket handshake, which
// the CORS middleware does not cover.
func (s *Server) originAllowed(r *http.Request) bool {
	if s.cfg.CORSAllowAllOrigins {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.CORSAllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}
