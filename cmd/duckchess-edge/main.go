// Command duckchess-edge serves the login endpoint and the player websocket,
// one session actor per connection.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/duckchess/duckchess/internal/config"
	"github.com/duckchess/duckchess/internal/edge"
	"github.com/duckchess/duckchess/internal/storage"
)

const shutdownWait = 5 * time.Second

func main() {
	log := logrus.New()

	cfg, err := config.LoadEdge(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	redis, err := storage.OpenRedis(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("connecting to redis")
	}
	defer redis.Close()

	pg, err := storage.OpenPostgres(cfg.PostgresURL)
	if err != nil {
		log.WithError(err).Fatal("connecting to postgres")
	}
	defer pg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := redis.Ping(ctx); err != nil {
		log.WithError(err).Fatal("pinging redis")
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("ensuring schema")
	}

	server := edge.NewServer(cfg, redis, pg, logrus.NewEntry(log))
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
		// Hijacked websocket connections watch the request context for
		// shutdown; Server.Shutdown alone never reaches them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.ListenAddr).Info("edge service listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("edge service failed")
	}
	log.Info("edge service stopped")
}
