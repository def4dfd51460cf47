// Command worker runs a standalone pool of ingestion workers that
// drain queued tasks without serving the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"semanticgallery/app"
	"semanticgallery/config"
	"semanticgallery/queue"
	"semanticgallery/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("APP_DEBUG") != "" {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	state, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initializing application")
	}
	defer state.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := queue.NewClient(ctx, cfg.Queue, log)
	if err != nil {
		log.WithError(err).Fatal("connecting to queue")
	}
	defer q.Close()

	pool := worker.NewPool(q, state.Ingestor, cfg.Queue.WorkerCount, log)
	pool.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("stopping workers")
	cancel()
	pool.Stop()
	log.Info("workers stopped")
}
