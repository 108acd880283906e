// Package config loads service configuration from an optional TOML file,
// then applies environment variable overrides.
package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Edge configures the websocket edge service.
type Edge struct {
	ListenAddr          string   `toml:"listen_addr"`
	RedisURL            string   `toml:"redis_url"`
	PostgresURL         string   `toml:"postgres_url"`
	CORSAllowedOrigins  []string `toml:"cors_allowed_origins"`
	CORSAllowAllOrigins bool     `toml:"cors_allow_all_origins"`
	CookiesSameSite     string   `toml:"cookies_same_site"`
	CookieSecret        string   `toml:"cookie_secret"`

	sameSite http.SameSite
}

// Worker configures the game service.
type Worker struct {
	RedisURL         string `toml:"redis_url"`
	AutoClaimTimeMS  int64  `toml:"autoclaim_time_ms"`
	ConsumerID       string `toml:"consumer_id"`
	ConsumerGroup    string `toml:"consumer_group"`
	GameClockSeconds uint64 `toml:"game_clock_seconds"`
}

// LoadEdge reads the edge configuration. A non-empty path names a TOML file
// that must exist; environment variables win over file values.
func LoadEdge(path string) (*Edge, error) {
	cfg := &Edge{
		ListenAddr:      ":8000",
		RedisURL:        "redis://localhost:6379",
		PostgresURL:     "postgres://localhost:5432/duckchess?sslmode=disable",
		CookiesSameSite: "Lax",
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	envString("LISTEN_ADDR", &cfg.ListenAddr)
	envString("REDIS_URL", &cfg.RedisURL)
	envString("POSTGRES_URL", &cfg.PostgresURL)
	envStrings("CORS_ALLOWED_ORIGINS", &cfg.CORSAllowedOrigins)
	if err := envBool("CORS_ALLOW_ALL_ORIGINS", &cfg.CORSAllowAllOrigins); err != nil {
		return nil, err
	}
	envString("COOKIES_SAME_SITE", &cfg.CookiesSameSite)
	envString("COOKIE_SECRET", &cfg.CookieSecret)

	same, err := parseSameSite(cfg.CookiesSameSite)
	if err != nil {
		return nil, err
	}
	cfg.sameSite = same
	if cfg.CookieSecret == "" {
		return nil, fmt.Errorf("cookie_secret is required")
	}
	return cfg, nil
}

// SameSite returns the validated cookie policy.
func (c *Edge) SameSite() http.SameSite {
	return c.sameSite
}

// LoadWorker reads the worker configuration. ConsumerID and ConsumerGroup
// have no sensible defaults and must be set.
func LoadWorker(path string) (*Worker, error) {
	cfg := &Worker{
		RedisURL:         "redis://localhost:6379",
		AutoClaimTimeMS:  30000,
		GameClockSeconds: 600,
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	envString("REDIS_URL", &cfg.RedisURL)
	if err := envInt64("AUTOCLAIM_TIME_MS", &cfg.AutoClaimTimeMS); err != nil {
		return nil, err
	}
	envString("CONSUMER_ID", &cfg.ConsumerID)
	envString("CONSUMER_GROUP", &cfg.ConsumerGroup)
	if err := envUint64("GAME_CLOCK_SECONDS", &cfg.GameClockSeconds); err != nil {
		return nil, err
	}

	if cfg.ConsumerID == "" {
		return nil, fmt.Errorf("consumer_id is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("consumer_group is required")
	}
	if cfg.AutoClaimTimeMS <= 0 {
		return nil, fmt.Errorf("autoclaim_time_ms must be positive")
	}
	if cfg.GameClockSeconds == 0 {
		return nil, fmt.Errorf("game_clock_seconds must be positive")
	}
	return cfg, nil
}

func parseSameSite(s string) (http.SameSite, error) {
	switch s {
	case "Lax":
		return http.SameSiteLaxMode, nil
	case "Strict":
		return http.SameSiteStrictMode, nil
	case "None":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("cookies_same_site is %q, want Lax, Strict, or None", s)
	}
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envStrings(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func envBool(key string, dst *bool) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envInt64(key string, dst *int64) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envUint64(key string, dst *uint64) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
