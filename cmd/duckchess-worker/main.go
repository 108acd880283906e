// Command duckchess-worker runs one game service consumer: it joins the
// game_requests consumer group and owns the boards of the games it processes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/duckchess/duckchess/internal/config"
	"github.com/duckchess/duckchess/internal/storage"
	"github.com/duckchess/duckchess/internal/worker"
)

func main() {
	log := logrus.New()

	cfg, err := config.LoadWorker(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	redis, err := storage.OpenRedis(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("connecting to redis")
	}
	defer redis.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := redis.Ping(ctx); err != nil {
		log.WithError(err).Fatal("pinging redis")
	}

	entry := logrus.NewEntry(log).WithField("consumer", cfg.ConsumerID)
	if err := worker.New(redis, *cfg, entry).Run(ctx); err != nil {
		log.WithError(err).Fatal("game service failed")
	}
	log.Info("game service stopped")
}
